// Package events fans resource-change events out to the owner's webhook
// subscriptions. Delivery is asynchronous: Emit only enqueues.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentdesk/internal/store"
)

// Event types emitted on resource mutations.
const (
	PropertyCreated = "property.created"
	PropertyUpdated = "property.updated"
	PropertyDeleted = "property.deleted"
	FinanceCreated  = "finance.created"
	FinanceUpdated  = "finance.updated"
	FinanceDeleted  = "finance.deleted"
	LoanCreated     = "loan.created"
	LoanUpdated     = "loan.updated"
	LoanDeleted     = "loan.deleted"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for every matching subscription the owner holds.
// Failures here never fail the originating request.
func (p *Publisher) Emit(ctx context.Context, ownerID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, ownerID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":      fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":    eventType,
		"ownerId": ownerID,
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"data":    data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueDelivery(ctx, ownerID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
