// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package validation provides struct validation for API request surfaces
// using go-playground/validator v10. A thread-safe singleton instance
// carries the custom validators the authorization domain needs: HTTP
// method tokens and rule path patterns.
package validation

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// httpMethods are the tokens the `httpmethod` validator accepts.
var httpMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"PATCH": true, "DELETE": true, "OPTIONS": true, "TRACE": true,
	"CONNECT": true,
}

// GetValidator returns the singleton validator instance with the custom
// validators registered. Thread-safe.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// httpmethod: a standard HTTP method token, case-insensitive.
		_ = validate.RegisterValidation("httpmethod", func(fl validator.FieldLevel) bool {
			return httpMethods[strings.ToUpper(fl.Field().String())]
		})

		// rulepath: an absolute path pattern with at most one wildcard,
		// which must be trailing. Same shape the snapshot builder accepts.
		_ = validate.RegisterValidation("rulepath", func(fl validator.FieldLevel) bool {
			p := fl.Field().String()
			if p == "" || p == "*" || !strings.HasPrefix(p, "/") {
				return false
			}
			if i := strings.Index(p, "*"); i >= 0 && i != len(p)-1 {
				return false
			}
			return true
		})
	})

	return validate
}

// FieldError is one field's validation failure.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// RequestError is a collection of validation failures for one request.
type RequestError struct {
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + " failed " + f.Tag
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a struct using the singleton validator. Returns
// nil on success, or *RequestError describing every failed field.
func ValidateStruct(s interface{}) *RequestError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{}
	}

	out := &RequestError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
