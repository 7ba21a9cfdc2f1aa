// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package validation wraps go-playground/validator v10 behind a singleton
// with dashboard-specific rules and human-readable messages.
//
// The validator instance caches struct metadata, so sharing one instance
// across handlers is both a correctness and a performance choice.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var botIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// FieldError is one failed field with a ready-to-render message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestError is the full outcome of validating one request struct.
type RequestError struct {
	fields []FieldError
}

// Fields returns the per-field errors in struct order.
func (e *RequestError) Fields() []FieldError {
	return e.fields
}

// Error joins the field messages, matching the API's detail string.
func (e *RequestError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.fields))
	for i, f := range e.fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Get returns the singleton validator with the bot_id rule registered.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// bot_id: [a-zA-Z0-9_-]{1,100} with at least one alphanumeric.
		validate.RegisterValidation("bot_id", func(fl validator.FieldLevel) bool {
			id := fl.Field().String()
			if !botIDRe.MatchString(id) {
				return false
			}
			return strings.ContainsFunc(id, func(r rune) bool {
				return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
			})
		})

		// Report json tag names so messages match the wire format.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s, returning nil or a *RequestError.
func Struct(s any) *RequestError {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{fields: []FieldError{{Field: "request", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{Field: fe.Field(), Message: message(fe)}
	}
	return &RequestError{fields: fields}
}

var messageTemplates = map[string]string{
	"required": "%s is required",
	"bot_id":   "%s must be 1-100 characters of letters, digits, underscore or hyphen",
	"url":      "%s must be a valid URL",
}

var messageTemplatesWithParam = map[string]string{
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"oneof": "%s must be one of: %s",
	"len":   "%s must be exactly %s characters",
}

func message(fe validator.FieldError) string {
	if tmpl, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	if tmpl, ok := messageTemplatesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
