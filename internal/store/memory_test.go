package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rentdesk/internal/model"
)

func TestMemoryCreateGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := Record{Type: "property", ID: "p1", OwnerID: "alice", Doc: json.RawMessage(`{"id":"p1"}`)}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create(ctx, rec); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create: got %v, want ErrConflict", err)
	}
	got, err := m.Get(ctx, "property", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OwnerID != "alice" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := m.Get(ctx, "property", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get: %v", err)
	}
	if err := m.Delete(ctx, "property", "p1", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "property", "p1", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestMemoryOwnerPrecondition(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := Record{Type: "property", ID: "p1", OwnerID: "alice", Doc: json.RawMessage(`{"v":1}`)}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A write conditioned on the wrong owner must not go through.
	if _, err := m.PutIfOwnerUnchanged(ctx, "property", "p1", "bob", json.RawMessage(`{"v":2}`)); !errors.Is(err, ErrConflict) {
		t.Fatalf("wrong-owner put: got %v, want ErrConflict", err)
	}
	if err := m.Delete(ctx, "property", "p1", "bob"); !errors.Is(err, ErrConflict) {
		t.Fatalf("wrong-owner delete: got %v, want ErrConflict", err)
	}
	got, _ := m.Get(ctx, "property", "p1")
	if string(got.Doc) != `{"v":1}` {
		t.Fatalf("doc changed despite failed precondition: %s", got.Doc)
	}
	// The matching owner may replace the document; owner survives.
	saved, err := m.PutIfOwnerUnchanged(ctx, "property", "p1", "alice", json.RawMessage(`{"v":2}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if saved.OwnerID != "alice" || string(saved.Doc) != `{"v":2}` {
		t.Fatalf("unexpected saved record: %+v", saved)
	}
	if _, err := m.PutIfOwnerUnchanged(ctx, "property", "missing", "alice", json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing put: %v", err)
	}
	// Re-applying the same conditional update succeeds and leaves the
	// owner untouched.
	again, err := m.PutIfOwnerUnchanged(ctx, "property", "p1", "alice", json.RawMessage(`{"v":2}`))
	if err != nil {
		t.Fatalf("repeat put: %v", err)
	}
	if again.OwnerID != "alice" || string(again.Doc) != `{"v":2}` {
		t.Fatalf("repeat put changed state: %+v", again)
	}
}

func TestMemoryQueryByOwnerScoping(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, r := range []Record{
		{Type: "property", ID: "a1", OwnerID: "alice"},
		{Type: "property", ID: "a2", OwnerID: "alice"},
		{Type: "loan", ID: "a3", OwnerID: "alice"},
		{Type: "property", ID: "b1", OwnerID: "bob"},
	} {
		if err := m.Create(ctx, r); err != nil {
			t.Fatalf("Create %s: %v", r.ID, err)
		}
	}
	recs, err := m.QueryByOwner(ctx, "property", "alice")
	if err != nil {
		t.Fatalf("QueryByOwner: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.OwnerID != "alice" {
			t.Fatalf("foreign record leaked: %+v", r)
		}
	}
	all, err := m.QueryAll(ctx, "property", 0)
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("QueryAll got %d, want 3", len(all))
	}
}

func TestMemoryProfiles(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p := model.Profile{Subject: "sub-1", Email: "A@Example.com", Role: "owner", PasswordHash: "h", FirstName: "Ann"}
	if err := m.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := m.CreateProfile(ctx, model.Profile{Subject: "sub-2", Email: "a@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
	got, err := m.GetProfileByEmail(ctx, "a@example.COM")
	if err != nil || got.Subject != "sub-1" {
		t.Fatalf("GetProfileByEmail: %+v %v", got, err)
	}
	// Updates must not touch email, role, or the password hash.
	upd := got
	upd.FirstName = "Anne"
	upd.Email = "evil@example.com"
	upd.Role = "admin"
	upd.PasswordHash = ""
	saved, err := m.UpdateProfile(ctx, upd)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if saved.Email != "A@Example.com" || saved.Role != "owner" || saved.PasswordHash != "h" {
		t.Fatalf("identity fields changed: %+v", saved)
	}
	if saved.FirstName != "Anne" {
		t.Fatalf("mutable field not updated: %+v", saved)
	}
}

func TestMemoryDeliveries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, err := m.CreateSubscription(ctx, model.Subscription{OwnerID: "alice", URL: "https://example.invalid/hook", Events: []string{"property.created"}, Secret: "shh"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	matched, _ := m.GetSubscriptionsForEvent(ctx, "alice", "property.created")
	if len(matched) != 1 {
		t.Fatalf("matched %d subscriptions, want 1", len(matched))
	}
	if got, _ := m.GetSubscriptionsForEvent(ctx, "alice", "loan.created"); len(got) != 0 {
		t.Fatalf("event filter leaked: %d", len(got))
	}
	id, err := m.EnqueueDelivery(ctx, "alice", sub.ID, "property.created", sub.URL, sub.Secret, []byte(`{}`))
	if err != nil {
		t.Fatalf("EnqueueDelivery: %v", err)
	}
	due, _ := m.FetchDueDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due deliveries: %+v", due)
	}
	// A failed attempt with a future retry time leaves it pending but not due.
	next := time.Now().Add(time.Hour)
	if err := m.MarkDelivery(ctx, id, false, &next, "boom", 500); err != nil {
		t.Fatalf("MarkDelivery: %v", err)
	}
	if due, _ = m.FetchDueDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retried delivery already due: %+v", due)
	}
}

func TestRetryReadsRecoversFromUnavailable(t *testing.T) {
	flaky := &flakyStore{Store: NewMemory(), failures: 2}
	_ = flaky.Store.Create(context.Background(), Record{Type: "property", ID: "p1", OwnerID: "alice"})
	r := WithReadRetries(flaky, 3, time.Millisecond)
	if _, err := r.Get(context.Background(), "property", "p1"); err != nil {
		t.Fatalf("Get after retries: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("got %d calls, want 3", flaky.calls)
	}
}

func TestRetryReadsGivesUp(t *testing.T) {
	flaky := &flakyStore{Store: NewMemory(), failures: 10}
	r := WithReadRetries(flaky, 2, time.Millisecond)
	if _, err := r.Get(context.Background(), "property", "p1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, rtype, id string) (Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return Record{}, ErrUnavailable
	}
	return f.Store.Get(ctx, rtype, id)
}
