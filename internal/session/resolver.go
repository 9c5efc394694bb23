// Package session maps verified token identities onto application user
// records.
package session

import (
	"context"
	"errors"
	"fmt"

	"rentdesk/internal/auth"
	"rentdesk/internal/authz"
	"rentdesk/internal/model"
	"rentdesk/internal/store"
)

// Principal is the caller for the remainder of one request. It is built
// fresh per request and discarded; the profile's role, not the token's,
// is authoritative.
type Principal struct {
	Subject string
	Email   string
	Profile model.Profile
}

func (p Principal) Role() authz.Role { return authz.ParseRole(p.Profile.Role) }

// Resolver looks up the subject's profile. It never creates one: profile
// creation is an explicit registration step.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the principal for a verified identity. A validly signed
// token for a deleted or never-registered subject is ErrUnknownSubject,
// deliberately distinct from the token error modes.
func (r *Resolver) Resolve(ctx context.Context, id auth.Identity) (Principal, error) {
	prof, err := r.store.GetProfileBySubject(ctx, id.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, fmt.Errorf("%w: %s", auth.ErrUnknownSubject, id.Subject)
	}
	if err != nil {
		return Principal{}, err
	}
	if prof.Status == "disabled" {
		return Principal{}, fmt.Errorf("%w: account disabled", auth.ErrUnknownSubject)
	}
	return Principal{Subject: id.Subject, Email: prof.Email, Profile: prof}, nil
}
