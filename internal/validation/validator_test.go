// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package validation

import "testing"

type checkParams struct {
	Path   string `validate:"required,rulepath"`
	Method string `validate:"required,httpmethod"`
	Limit  int    `validate:"min=0,max=10000"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name  string
		in    checkParams
		valid bool
	}{
		{"valid", checkParams{Path: "/api/users", Method: "GET", Limit: 10}, true},
		{"valid wildcard", checkParams{Path: "/api/*", Method: "delete"}, true},
		{"missing path", checkParams{Method: "GET"}, false},
		{"relative path", checkParams{Path: "api/users", Method: "GET"}, false},
		{"bare wildcard", checkParams{Path: "*", Method: "GET"}, false},
		{"interior wildcard", checkParams{Path: "/a/*/b", Method: "GET"}, false},
		{"bogus method", checkParams{Path: "/a", Method: "FROB"}, false},
		{"limit out of range", checkParams{Path: "/a", Method: "GET", Limit: 99999}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.in)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateStruct(%+v) err = %v, want valid=%v", tt.in, err, tt.valid)
			}
		})
	}
}

func TestRequestErrorReportsEveryField(t *testing.T) {
	err := ValidateStruct(&checkParams{Path: "*", Method: "FROB"})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if len(err.Fields) != 2 {
		t.Errorf("fields = %+v, want 2 failures", err.Fields)
	}
	if err.Error() == "" {
		t.Error("Error() returned empty message")
	}
}
