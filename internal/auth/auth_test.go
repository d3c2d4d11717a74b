package auth

import (
	"testing"
	"time"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	user := &model.User{ID: "user-1", Email: "a@b.com", Role: model.RoleAdmin}

	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identity, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if identity.ID != "user-1" || identity.Role != model.RoleAdmin {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestTokenRejectedAfterExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(&model.User{ID: "user-1", Role: model.RoleParticipant})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Still valid just before the TTL elapses.
	issuer.now = func() time.Time { return issued.Add(TokenTTL - time.Minute) }
	if _, err := issuer.Parse(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	issuer.now = func() time.Time { return issued.Add(TokenTTL + time.Minute) }
	_, err = issuer.Parse(token)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error after expiry, got %v", err)
	}
}

func TestTokenRejectedWithWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").Issue(&model.User{ID: "user-1", Role: model.RoleParticipant})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b").Parse(token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}
