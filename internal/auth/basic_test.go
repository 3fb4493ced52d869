// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestBasicAuthenticate(t *testing.T) {
	a := NewBasicAuthenticator("test")
	if err := a.AddUser("alice", "s3cret", "admin", "user"); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.SetBasicAuth("alice", "s3cret")

		id, err := a.Authenticate(context.Background(), r)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if id.Principal != "alice" || id.Anonymous {
			t.Errorf("identity = %+v", id)
		}
		if !id.HasRole("admin") || !id.HasRole("user") {
			t.Errorf("roles = %v, want admin and user", id.Roles)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.SetBasicAuth("alice", "wrong")

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.SetBasicAuth("mallory", "s3cret")

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("no authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("err = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("non-basic scheme", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer sometoken")

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("err = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("malformed base64", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic not-base64!!!")

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("missing colon separator", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("nocolon")))

		if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestBasicAddUserValidation(t *testing.T) {
	a := NewBasicAuthenticator("")

	if err := a.AddUser("", "pw"); err == nil {
		t.Error("empty username accepted")
	}
	if err := a.AddUser("bob", ""); err == nil {
		t.Error("empty password accepted")
	}
	if err := a.AddUserHash("bob", []byte("not-a-bcrypt-hash")); err == nil {
		t.Error("invalid hash accepted")
	}
}

func TestBasicWWWAuthenticate(t *testing.T) {
	a := NewBasicAuthenticator("gatehouse")
	want := `Basic realm="gatehouse", charset="UTF-8"`
	if got := a.WWWAuthenticate(); got != want {
		t.Errorf("WWWAuthenticate = %q, want %q", got, want)
	}
}
