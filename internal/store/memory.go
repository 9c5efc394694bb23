package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/model"
)

type recKey struct{ rtype, id string }

// Memory is a mutex-guarded in-process store used by tests and when no
// DATABASE_URL is configured.
type Memory struct {
	mu         sync.Mutex
	recs       map[recKey]Record
	byOwner    map[string][]recKey // ownerID -> keys in insertion order
	profiles   map[string]model.Profile
	byEmail    map[string]string // lower(email) -> subject
	subs       map[string][]model.Subscription
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
	now        func() time.Time
}

type memDelivery struct {
	Delivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
}

func NewMemory() *Memory {
	return &Memory{
		recs:       map[recKey]Record{},
		byOwner:    map[string][]recKey{},
		profiles:   map[string]model.Profile{},
		byEmail:    map[string]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		now:        time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, rtype, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[recKey{rtype, id}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Create(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey{rec.Type, rec.ID}
	if _, ok := m.recs[k]; ok {
		return ErrConflict
	}
	now := m.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.recs[k] = rec
	m.byOwner[rec.OwnerID] = append(m.byOwner[rec.OwnerID], k)
	return nil
}

func (m *Memory) PutIfOwnerUnchanged(ctx context.Context, rtype, id, expectedOwner string, doc json.RawMessage) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey{rtype, id}
	r, ok := m.recs[k]
	if !ok {
		return Record{}, ErrNotFound
	}
	if r.OwnerID != expectedOwner {
		return Record{}, ErrConflict
	}
	r.Doc = doc
	r.UpdatedAt = m.now().UTC()
	m.recs[k] = r
	return r, nil
}

func (m *Memory) Delete(ctx context.Context, rtype, id, expectedOwner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey{rtype, id}
	r, ok := m.recs[k]
	if !ok {
		return ErrNotFound
	}
	if r.OwnerID != expectedOwner {
		return ErrConflict
	}
	delete(m.recs, k)
	keys := m.byOwner[r.OwnerID]
	for i, kk := range keys {
		if kk == k {
			m.byOwner[r.OwnerID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) QueryByOwner(ctx context.Context, rtype, ownerID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, k := range m.byOwner[ownerID] {
		if k.rtype != rtype {
			continue
		}
		out = append(out, m.recs[k])
	}
	return out, nil
}

func (m *Memory) QueryAll(ctx context.Context, rtype string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []Record{}
	for k, r := range m.recs {
		if k.rtype != rtype {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetProfileBySubject(ctx context.Context, subject string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[subject]
	if !ok {
		return model.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetProfileByEmail(ctx context.Context, email string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subj, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return model.Profile{}, ErrNotFound
	}
	return m.profiles[subj], nil
}

func (m *Memory) CreateProfile(ctx context.Context, p model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(p.Email)
	if _, ok := m.profiles[p.Subject]; ok {
		return ErrConflict
	}
	if _, ok := m.byEmail[key]; ok {
		return ErrConflict
	}
	m.profiles[p.Subject] = p
	m.byEmail[key] = p.Subject
	return nil
}

func (m *Memory) UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[p.Subject]
	if !ok {
		return model.Profile{}, ErrNotFound
	}
	// Email and role changes go through dedicated flows, not profile update.
	p.Email = cur.Email
	p.Role = cur.Role
	p.PasswordHash = cur.PasswordHash
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = model.Timestamp(m.now())
	m.profiles[p.Subject] = p
	return p, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	m.subs[sub.OwnerID] = append(m.subs[sub.OwnerID], sub)
	return sub, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, ownerID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription{}, m.subs[ownerID]...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[ownerID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[ownerID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, ownerID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[ownerID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueDelivery(ctx context.Context, ownerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{Delivery: Delivery{
		ID:             id,
		OwnerID:        ownerID,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
	}}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []Delivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.Delivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	if success {
		d.Status = "delivered"
		return nil
	}
	if nextAttemptAt == nil {
		d.Status = "failed"
		return nil
	}
	d.NextAttemptAt = *nextAttemptAt
	return nil
}
