// Package billing implements plan resolvers against external billing state.
// The consumption engine only sees the entitlement.PlanResolver contract.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/featuregate/backend/internal/domain/entitlement"
	"github.com/featuregate/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SubscriptionProvider resolves plans from stored subscription snapshots:
// the subject's active subscription's price id is matched against the plan
// catalog's provider price identifiers. Subjects without an entitled
// subscription fall back to the default plan, when one is configured.
type SubscriptionProvider struct {
	subscriptions  entitlement.SubscriptionRepository
	plans          entitlement.PlanRepository
	defaultPlanKey string
	logger         *zap.Logger
	now            func() time.Time
}

// NewSubscriptionProvider creates a subscription-backed plan resolver. An
// empty defaultPlanKey disables the fallback.
func NewSubscriptionProvider(
	subscriptions entitlement.SubscriptionRepository,
	plans entitlement.PlanRepository,
	defaultPlanKey string,
	logger *zap.Logger,
) *SubscriptionProvider {
	return &SubscriptionProvider{
		subscriptions:  subscriptions,
		plans:          plans,
		defaultPlanKey: defaultPlanKey,
		logger:         logger,
		now:            time.Now,
	}
}

// ResolvePlan implements entitlement.PlanResolver
func (p *SubscriptionProvider) ResolvePlan(ctx context.Context, subject entitlement.Subject) (*entitlement.Plan, error) {
	sub, err := p.subscriptions.FindForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return p.fallback(ctx, subject)
		}
		return nil, err
	}
	if !sub.IsEntitledAt(p.now()) {
		p.logger.Debug("Subscription no longer entitled",
			zap.String("subject", subject.String()),
			zap.String("status", string(sub.Status)))
		return p.fallback(ctx, subject)
	}

	plans, err := p.plans.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ProviderMonthlyID == sub.PriceID || plans[i].ProviderYearlyID == sub.PriceID {
			return &plans[i], nil
		}
	}

	p.logger.Warn("Subscription price matches no plan",
		zap.String("subject", subject.String()),
		zap.String("price_id", sub.PriceID))
	return p.fallback(ctx, subject)
}

func (p *SubscriptionProvider) fallback(ctx context.Context, subject entitlement.Subject) (*entitlement.Plan, error) {
	if p.defaultPlanKey == "" {
		return nil, nil
	}
	plan, err := p.plans.FindByKey(ctx, p.defaultPlanKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.logger.Error("Default plan missing from catalog",
				zap.String("plan", p.defaultPlanKey),
				zap.String("subject", subject.String()))
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}
