/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

// FieldMaskFormat defines possible values for field mask formats.
type FieldMaskFormat string

// Field mask formats.
const (
	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	FieldMaskFormatJSON       FieldMaskFormat = "json"
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
)

// MaskingRuleConfig is a configuration for a single masking rule.
type MaskingRuleConfig struct {
	Field   string            `mapstructure:"field" yaml:"field" json:"field"`
	Formats []FieldMaskFormat `mapstructure:"formats" yaml:"formats" json:"formats"`
	Masks   []MaskConfig      `mapstructure:"masks" yaml:"masks" json:"masks"`
}

// MaskConfig is a configuration for a single mask.
type MaskConfig struct {
	RegExp string `mapstructure:"regexp" yaml:"regexp" json:"regexp"`
	Mask   string `mapstructure:"mask" yaml:"mask" json:"mask"`
}

// DefaultMasks hides credentials that usually travel in request URLs, bodies and headers.
var DefaultMasks = []MaskingRuleConfig{
	{Field: "Authorization", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader}},
	{Field: "password", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "client_secret", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "access_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "refresh_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "api_key", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
}

type mask struct {
	re   *regexp.Regexp
	repl string
}

type fieldMasker struct {
	field string // lower-cased
	masks []mask
}

// Masker replaces secrets in strings according to masking rules.
type Masker struct {
	fields []fieldMasker
}

// NewMasker compiles masking rules. It panics if a rule contains an invalid regular expression.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{fields: make([]fieldMasker, 0, len(rules))}
	for _, rule := range rules {
		fm := fieldMasker{field: strings.ToLower(rule.Field)}
		for _, mc := range rule.Masks {
			fm.masks = append(fm.masks, mask{regexp.MustCompile(mc.RegExp), mc.Mask})
		}
		for _, format := range rule.Formats {
			var mc MaskConfig
			switch format {
			case FieldMaskFormatHTTPHeader:
				mc = MaskConfig{`(?i)` + rule.Field + `: .+?\r\n`, rule.Field + ": ***\r\n"}
			case FieldMaskFormatJSON:
				mc = MaskConfig{`(?i)"` + rule.Field + `"\s*:\s*".*?[^\\]"`, `"` + rule.Field + `": "***"`}
			case FieldMaskFormatURLEncoded:
				mc = MaskConfig{`(?i)` + rule.Field + `\s*=\s*[^&\s]+`, rule.Field + "=***"}
			default:
				continue
			}
			fm.masks = append(fm.masks, mask{regexp.MustCompile(mc.RegExp), mc.Mask})
		}
		m.fields = append(m.fields, fm)
	}
	return m
}

// Mask returns s with all matched secrets replaced.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.fields {
		if !strings.Contains(lower, fm.field) {
			continue
		}
		for _, msk := range fm.masks {
			s = msk.re.ReplaceAllString(s, msk.repl)
		}
	}
	return s
}
