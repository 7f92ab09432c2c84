package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/crediflow/crediflow/internal/identity"
)

var secret = []byte(strings.Repeat("s", 32))

func TestTokenIssuer_roundTrip(t *testing.T) {
	issuer, err := identity.NewTokenIssuer(secret, "https://gateway.example", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := issuer.Issue("addr_caller_1")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Address != "addr_caller_1" {
		t.Errorf("address = %q, want addr_caller_1", claims.Address)
	}
}

func TestTokenIssuer_rejectsWeakSecret(t *testing.T) {
	if _, err := identity.NewTokenIssuer([]byte("short"), "x", 0); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestTokenIssuer_rejectsExpired(t *testing.T) {
	issuer, err := identity.NewTokenIssuer(secret, "x", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	token, err := issuer.Issue("addr_caller_1")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expected expiry error")
	}
}

func TestTokenIssuer_rejectsForeignSignature(t *testing.T) {
	a, _ := identity.NewTokenIssuer(secret, "x", time.Hour)
	b, _ := identity.NewTokenIssuer([]byte(strings.Repeat("t", 32)), "x", time.Hour)

	token, err := a.Issue("addr_caller_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("token signed with another secret must not verify")
	}
}

func TestTokenIssuer_rejectsMalformedAddress(t *testing.T) {
	issuer, _ := identity.NewTokenIssuer(secret, "x", time.Hour)
	if _, err := issuer.Issue("has spaces"); err == nil {
		t.Error("expected validation error")
	}
}
