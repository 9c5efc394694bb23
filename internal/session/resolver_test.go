package session

import (
	"context"
	"errors"
	"testing"

	"rentdesk/internal/auth"
	"rentdesk/internal/authz"
	"rentdesk/internal/model"
	"rentdesk/internal/store"
)

func TestResolveKnownSubject(t *testing.T) {
	m := store.NewMemory()
	prof := model.Profile{Subject: "sub-1", Email: "a@example.com", Role: "landlord", Status: "active"}
	if err := m.CreateProfile(context.Background(), prof); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	r := NewResolver(m)
	pr, err := r.Resolve(context.Background(), auth.Identity{Subject: "sub-1", Role: "guest"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pr.Subject != "sub-1" || pr.Email != "a@example.com" {
		t.Fatalf("unexpected principal: %+v", pr)
	}
	// Profile role wins over whatever the token claimed.
	if pr.Role() != authz.RoleOwner {
		t.Fatalf("role: got %q, want %q", pr.Role(), authz.RoleOwner)
	}
}

func TestResolveUnknownSubject(t *testing.T) {
	r := NewResolver(store.NewMemory())
	_, err := r.Resolve(context.Background(), auth.Identity{Subject: "ghost"})
	if !errors.Is(err, auth.ErrUnknownSubject) {
		t.Fatalf("got %v, want ErrUnknownSubject", err)
	}
}

func TestResolveDisabledAccount(t *testing.T) {
	m := store.NewMemory()
	_ = m.CreateProfile(context.Background(), model.Profile{Subject: "sub-1", Email: "a@example.com", Role: "owner", Status: "disabled"})
	r := NewResolver(m)
	_, err := r.Resolve(context.Background(), auth.Identity{Subject: "sub-1"})
	if !errors.Is(err, auth.ErrUnknownSubject) {
		t.Fatalf("got %v, want ErrUnknownSubject", err)
	}
}
