package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier([]byte("test-secret"), "rentdesk", "rentdesk-api", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	access, refresh, expiresAt, err := v.Issue("sub-1", "a@example.com", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if expiresAt.Before(time.Now()) {
		t.Fatalf("expiresAt in the past: %v", expiresAt)
	}
	id, err := v.Verify(access)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if id.Subject != "sub-1" || id.Email != "a@example.com" || id.Role != "owner" || id.TokenType != "access" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	rid, err := v.Verify(refresh)
	if err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
	if rid.TokenType != "refresh" {
		t.Fatalf("refresh token type: %q", rid.TokenType)
	}
}

func TestBearerToken(t *testing.T) {
	if _, err := BearerToken(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty header: %v", err)
	}
	// A header that does not carry a Bearer credential at all counts as
	// missing, not malformed; only token parsing reports malformed.
	if _, err := BearerToken("Basic abc"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("wrong scheme: %v", err)
	}
	if _, err := BearerToken("Bearer "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty credential: %v", err)
	}
	tok, err := BearerToken("bearer abc.def.ghi")
	if err != nil || tok != "abc.def.ghi" {
		t.Fatalf("lowercase scheme: %q %v", tok, err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	v := newTestVerifier(t)
	access, _, _, err := v.Issue("sub-1", "a@example.com", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Flip a character in the signature segment.
	parts := strings.Split(access, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)
	_, err = v.Verify(strings.Join(parts, "."))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered token: got %v, want ErrBadSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	v := newTestVerifier(t)
	other, _ := NewVerifier([]byte("other-secret"), "rentdesk", "rentdesk-api", 15*time.Minute, time.Hour)
	access, _, _, _ := other.Issue("sub-1", "a@example.com", "owner")
	if _, err := v.Verify(access); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong key: got %v, want ErrBadSignature", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	v := newTestVerifier(t)
	issued := time.Now().Add(-2 * time.Hour)
	v.now = func() time.Time { return issued }
	access, _, _, err := v.Issue("sub-1", "a@example.com", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	v.now = time.Now
	_, err = v.Verify(access)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token: got %v, want ErrTokenExpired", err)
	}
	// Expired must not be reported as a signature problem.
	if errors.Is(err, ErrBadSignature) {
		t.Fatalf("expired token also matches ErrBadSignature")
	}
}

func TestVerifyMalformed(t *testing.T) {
	v := newTestVerifier(t)
	for _, raw := range []string{"not-a-token", "a.b", "....."} {
		if _, err := v.Verify(raw); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Verify(%q): got %v, want ErrMalformedToken", raw, err)
		}
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	v := newTestVerifier(t)
	other, _ := NewVerifier([]byte("test-secret"), "someone-else", "rentdesk-api", 15*time.Minute, time.Hour)
	access, _, _, _ := other.Issue("sub-1", "a@example.com", "owner")
	if _, err := v.Verify(access); err == nil {
		t.Fatal("token with wrong issuer verified")
	}
}
