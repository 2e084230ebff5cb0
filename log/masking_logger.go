/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/ssgreg/logf"
)

// StringMasker hides secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

// MaskingLogger is a logger that masks secrets in messages, string fields and errors.
// A request URL like "/items?api_key=<secret>" ends up in dispatch logs and transport errors,
// so the dispatcher logger is usually wrapped with it.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger wraps l with masking.
func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{l, m}
}

// With returns a new logger with the given additional fields.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

// Debug logs a message at "debug" level.
func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

// Info logs a message at "info" level.
func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

// Warn logs a message at "warn" level.
func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

// Error logs a message at "error" level.
func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

// Debugf logs a formatted message at "debug" level.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at "info" level.
func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at "warn" level.
func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at "error" level.
func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel calls the given fn if logging a message at the specified level is enabled.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

// WithLevel returns a new logger with additional level check.
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

// maskFields returns fields with masked string and error values. Other field types are passed as is.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var res []Field
	for i := range fields {
		field := fields[i]
		var masked Field
		var changed bool
		switch field.Type {
		case logf.FieldTypeBytesToString:
			s := *(*string)(unsafe.Pointer(&field.Bytes)) // nolint: gosec
			if m := l.masker.Mask(s); m != s {
				masked, changed = String(field.Key, m), true
			}
		case logf.FieldTypeError:
			if err, ok := field.Any.(error); ok && err != nil {
				if m := l.masker.Mask(err.Error()); m != err.Error() {
					masked, changed = NamedError(field.Key, errors.New(m)), true
				}
			}
		}
		if !changed {
			continue
		}
		if res == nil {
			res = make([]Field, len(fields))
			copy(res, fields)
		}
		res[i] = masked
	}
	if res == nil {
		return fields
	}
	return res
}
