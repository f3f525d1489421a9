package store

import (
	"context"
	"errors"
	"time"

	"loadplan/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, plan model.Plan) (model.Plan, error)
	GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error)
	ListPlans(ctx context.Context, tenantID, status, cursor string, limit int) (items []model.PlanSummary, nextCursor string, err error)
	// SetPlanRunning moves a queued plan to running. ErrNotFound means the
	// plan is missing or no longer queued (e.g. canceled while waiting), in
	// which case the caller must not run it.
	SetPlanRunning(ctx context.Context, tenantID, planID string) error
	CompletePlan(ctx context.Context, tenantID, planID string, result model.PlanResult) error
	FailPlan(ctx context.Context, tenantID, planID, reason string) error
	CancelPlan(ctx context.Context, tenantID, planID string) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueDelivery(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	PendingDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailDelivery(ctx context.Context, id, lastError string, responseCode int, latencyMs int) error
	ListDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryDelivery(ctx context.Context, tenantID, id string) error

	// Health
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// Terminal reports whether a plan status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case model.PlanCompleted, model.PlanFailed, model.PlanCanceled:
		return true
	}
	return false
}
