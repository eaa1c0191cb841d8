/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package identity

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	is := NewIssuer("test-secret", "rajarani", time.Hour)

	token, err := is.Mint(Identity{UserID: "user-1", Name: "Asha"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := is.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "user-1" || got.Name != "Asha" {
		t.Errorf("verified identity = %+v", got)
	}
}

func TestMintRequiresIdentity(t *testing.T) {
	is := NewIssuer("test-secret", "rajarani", time.Hour)
	if _, err := is.Mint(Identity{Name: "nameless"}); !errors.Is(err, ErrRequired) {
		t.Errorf("mint without user id: %v, want ErrRequired", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	is := NewIssuer("test-secret", "rajarani", time.Hour)
	token, err := is.Mint(Identity{UserID: "user-1", Name: "Asha"})
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	parts[1] = string(payload)

	if _, err := is.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalid) {
		t.Errorf("tampered token: %v, want ErrInvalid", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	minter := NewIssuer("secret-a", "rajarani", time.Hour)
	verifier := NewIssuer("secret-b", "rajarani", time.Hour)

	token, err := minter.Mint(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Errorf("wrong-secret token: %v, want ErrInvalid", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	is := NewIssuer("test-secret", "rajarani", time.Hour)
	is.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := is.Mint(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := is.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Errorf("expired token: %v, want ErrInvalid", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	is := NewIssuer("test-secret", "rajarani", time.Hour)
	for _, tok := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := is.Verify(tok); !errors.Is(err, ErrInvalid) {
			t.Errorf("Verify(%q) = %v, want ErrInvalid", tok, err)
		}
	}
}

func TestNewUserIDDistinct(t *testing.T) {
	a, b := NewUserID(), NewUserID()
	if a == "" || a == b {
		t.Errorf("user ids %q and %q", a, b)
	}
}
