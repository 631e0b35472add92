package ports

import (
	"context"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
)

// EventPublisher emits lifecycle events after they are persisted. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}
