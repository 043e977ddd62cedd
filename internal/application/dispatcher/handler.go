package dispatcher

import (
	"context"

	"github.com/garyjia/closeflow/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
	// Wildcard handlers receive every event type
	Wildcard bool
}

// anyType keys wildcard subscriptions
const anyType event.Type = "*"
