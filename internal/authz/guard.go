package authz

import (
	"context"
	"errors"
	"time"

	"rentdesk/internal/store"
)

// Reason classifies an authorization outcome. NotOwner and NotFound must be
// indistinguishable in responses; they stay separate here only for metrics
// and logs.
type Reason string

const (
	ReasonOK       Reason = "ok"
	ReasonNotOwner Reason = "not_owner"
	ReasonNotFound Reason = "not_found"
	ReasonNoCap    Reason = "no_capability"
)

// Decision is computed per request and never cached: tokens expire
// mid-session and resources get deleted.
type Decision struct {
	Allow  bool
	Reason Reason
	// Record is the fetched resource on ALLOW so handlers do not re-read.
	Record store.Record
}

// Guard compares a resource's owner with the caller's subject.
type Guard struct {
	store   store.Store
	timeout time.Duration
}

func NewGuard(s store.Store, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Guard{store: s, timeout: timeout}
}

// Authorize fetches the record by id alone and compares its owner to the
// caller's subject. Store failures are returned as errors, never folded
// into a deny. The lookup is bounded so a slow backend cannot hang the
// request.
func (g *Guard) Authorize(ctx context.Context, subject string, role Role, rtype, id string, action Action) (Decision, error) {
	if !role.Can(CapabilityFor(action)) {
		return Decision{Reason: ReasonNoCap}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rec, err := g.store.Get(ctx, rtype, id)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	if role.Can(CapManageAll) {
		return Decision{Allow: true, Reason: ReasonOK, Record: rec}, nil
	}
	if rec.OwnerID != subject {
		return Decision{Reason: ReasonNotOwner}, nil
	}
	return Decision{Allow: true, Reason: ReasonOK, Record: rec}, nil
}

// Scope is the owner predicate list endpoints must push into the query
// layer. When All is set the query may span owners (admin only); otherwise
// only rows with owner_id == OwnerID may leave the store.
type Scope struct {
	OwnerID string
	All     bool
}

// Scope returns the scoping predicate for collection reads. There is no
// fetch-all-then-filter path: callers hand this to the store, which applies
// it server-side.
func (g *Guard) Scope(subject string, role Role) Scope {
	if role.Can(CapManageAll) {
		return Scope{All: true}
	}
	return Scope{OwnerID: subject}
}

// Query runs an owner-scoped collection read under the guard's timeout.
func (g *Guard) Query(ctx context.Context, subject string, role Role, rtype string) ([]store.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	sc := g.Scope(subject, role)
	if sc.All {
		return g.store.QueryAll(ctx, rtype, 0)
	}
	return g.store.QueryByOwner(ctx, rtype, sc.OwnerID)
}
