package entitlement

import (
	"context"
	"time"

	"github.com/featuregate/backend/internal/domain/shared"
)

// SubscriptionStatus is the lifecycle state of an external subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// IsEntitled reports whether the status still grants plan access
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription mirrors a subject's subscription as reported by an external
// billing provider. The price id links it back to a plan's provider price
// identifiers.
type Subscription struct {
	shared.BaseEntity
	SubjectType string
	SubjectID   string
	Provider    string // Billing provider name (e.g. "stripe")
	PriceID     string // Provider price identifier the subject pays for
	Status      SubscriptionStatus
	EndsAt      *time.Time // When set, access lapses after this instant
}

// Subject returns the subscription's ledger identity
func (s *Subscription) Subject() Subject {
	return Subject{Type: s.SubjectType, ID: s.SubjectID}
}

// IsEntitledAt reports whether the subscription grants access at the given
// instant
func (s *Subscription) IsEntitledAt(at time.Time) bool {
	if !s.Status.IsEntitled() {
		return false
	}
	if s.EndsAt != nil && at.After(*s.EndsAt) {
		return false
	}
	return true
}

// SubscriptionRepository persists provider subscription snapshots
type SubscriptionRepository interface {
	// FindForSubject returns the subject's most recent subscription, or
	// shared.ErrNotFound when none exists
	FindForSubject(ctx context.Context, subject Subject) (*Subscription, error)
	Save(ctx context.Context, subscription *Subscription) error
}
