// Package store is the narrow document-store boundary behind the API.
// Every resource lives in one logical table keyed by (type, id) with an
// immutable owner_id; all owner-conditional writes are atomic at the
// store so there is no read-then-write gap above it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"rentdesk/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a conditional write whose owner precondition
	// (or uniqueness constraint) did not hold.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks transient backend failures; reads may retry,
	// writes must surface it immediately.
	ErrUnavailable = errors.New("store unavailable")
)

// Record is a stored resource envelope. Doc carries the resource body;
// OwnerID duplicates the body's owner field so ownership checks and
// scoped queries never parse documents.
type Record struct {
	Type      string
	ID        string
	OwnerID   string
	Doc       json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence interface used by the API server.
type Store interface {
	// Resources
	Get(ctx context.Context, rtype, id string) (Record, error)
	Create(ctx context.Context, rec Record) error
	// PutIfOwnerUnchanged replaces the document only when the stored
	// owner still equals expectedOwner. The owner field itself is never
	// rewritten. Returns ErrConflict when the precondition fails and
	// ErrNotFound when no record exists.
	PutIfOwnerUnchanged(ctx context.Context, rtype, id, expectedOwner string, doc json.RawMessage) (Record, error)
	Delete(ctx context.Context, rtype, id, expectedOwner string) error
	// QueryByOwner applies the owner scope server-side; rows for other
	// owners never leave the backend.
	QueryByOwner(ctx context.Context, rtype, ownerID string) ([]Record, error)
	QueryAll(ctx context.Context, rtype string, limit int) ([]Record, error)

	// Profiles
	GetProfileBySubject(ctx context.Context, subject string) (model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (model.Profile, error)
	CreateProfile(ctx context.Context, p model.Profile) error
	UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error)

	// Webhook subscriptions and deliveries
	CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, ownerID, id string) error
	GetSubscriptionsForEvent(ctx context.Context, ownerID, eventType string) ([]model.Subscription, error)
	EnqueueDelivery(ctx context.Context, ownerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
}

// Delivery is one pending webhook dispatch.
type Delivery struct {
	ID             string
	OwnerID        string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Attempts       int
	Status         string // pending, delivered, failed
}
