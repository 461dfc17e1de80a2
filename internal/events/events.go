// Package events publishes domain events after their transaction commits.
// Delivery is best effort: a failed publish is logged and never fails the
// request that caused it.
package events

import (
	"context"
	"sync"
	"time"
)

// Routing keys.
const (
	ProductCreated    = "product.created"
	ProductUpdated    = "product.updated"
	ProductDeleted    = "product.deleted"
	ProductSynced     = "product.synced"
	ProductVisibility = "product.visibility_changed"
	ModuleEntitlement = "module.entitlement_changed"
	ModuleCreated     = "module.created"
	ModuleUpdated     = "module.updated"
	TenantCreated     = "tenant.created"
	TenantUpdated     = "tenant.updated"
	TenantDeactivated = "tenant.deactivated"
)

type Event struct {
	Type       string         `json:"type"`
	TenantID   *string        `json:"tenant_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	ResourceID string         `json:"resource_id"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the routing keys published so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
