package security

import (
	"errors"
	"testing"
	"time"

	"github.com/campuslink/campus-iam/internal/core/domain"
)

func testIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()

	keys, err := NewEphemeralKeyProvider()
	if err != nil {
		t.Fatalf("key provider failed: %v", err)
	}
	return NewTokenIssuer(keys, "campus-iam", ttl)
}

func TestTokenIssueAndParse(t *testing.T) {
	issuer := testIssuer(t, 15*time.Minute)

	account := domain.Account{
		ID:       "acc-1",
		Username: "rohit",
		Email:    "rohit@campus.edu",
		Role:     domain.RoleFaculty,
	}

	token, err := issuer.Issue(account)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.UserID != "acc-1" {
		t.Fatalf("expected uid acc-1, got %s", claims.UserID)
	}
	if claims.Username != "rohit" {
		t.Fatalf("expected username rohit, got %s", claims.Username)
	}
	if claims.Role != domain.RoleFaculty {
		t.Fatalf("expected faculty role, got %s", claims.Role)
	}
}

func TestTokenParseRejectsForeignSignature(t *testing.T) {
	issuer := testIssuer(t, 15*time.Minute)
	other := testIssuer(t, 15*time.Minute)

	token, err := other.Issue(domain.Account{ID: "acc-2", Username: "x", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestTokenIssueRequiresAccountID(t *testing.T) {
	issuer := testIssuer(t, time.Minute)

	if _, err := issuer.Issue(domain.Account{Username: "anon"}); err == nil {
		t.Fatalf("expected error for missing account id")
	}
}
