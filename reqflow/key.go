/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Key identifies "the same logical request" in the tracking tables.
type Key uint32

func (k Key) String() string {
	return fmt.Sprintf("%08x", uint32(k))
}

// KeyStrictness defines which parts of the request are used for deriving its key.
type KeyStrictness string

// Key strictness levels.
const (
	// KeyByEndpoint derives the key from the target URL and method only,
	// so requests to the same endpoint with different payloads are considered the same.
	KeyByEndpoint KeyStrictness = "endpoint"

	// KeyByPayload additionally takes query parameters and body into account.
	KeyByPayload KeyStrictness = "payload"
)

// IsValid checks if the key strictness is supported.
func (s KeyStrictness) IsValid() bool {
	return s == KeyByEndpoint || s == KeyByPayload
}

// KeyDeriver derives the key of the request.
type KeyDeriver func(req *Request) Key

// NewKeyDeriver returns a KeyDeriver for the given strictness. KeyByEndpoint is used for unknown values.
func NewKeyDeriver(strictness KeyStrictness) KeyDeriver {
	if strictness == KeyByPayload {
		return derivePayloadKey
	}
	return func(req *Request) Key {
		return DeriveKey(req.URL, req.Method)
	}
}

type keyFields struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Params string `json:"params,omitempty"`
	Body   string `json:"body,omitempty"`
}

// DeriveKey returns the key of the request by its target URL and method.
// Method is case-insensitive.
func DeriveKey(target, method string) Key {
	return hashKeyFields(keyFields{URL: target, Method: strings.ToUpper(method)})
}

func derivePayloadKey(req *Request) Key {
	fields := keyFields{URL: req.URL, Method: strings.ToUpper(req.Method), Params: req.Params.Encode()}
	switch body := req.Body.(type) {
	case nil:
	case []byte:
		fields.Body = string(body)
	case string:
		fields.Body = body
	default:
		if data, err := json.Marshal(body); err == nil {
			fields.Body = string(data)
		} else {
			fields.Body = fmt.Sprintf("%#v", body)
		}
	}
	return hashKeyFields(fields)
}

func hashKeyFields(fields keyFields) Key {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(fields) // Marshaling of a struct with string fields never fails.
	return hashString(strings.TrimSuffix(buf.String(), "\n"))
}

// hashString computes h = h*31 + c over UTF-16 code units of s with 32-bit overflow.
func hashString(s string) Key {
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + uint32(c)
	}
	return Key(h)
}
