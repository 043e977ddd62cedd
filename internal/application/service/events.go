package service

import (
	"context"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/domain/event"
)

// emitter dispatches audit events synchronously. Handler failures are logged and
// never fail the operation that produced the event.
type emitter struct {
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

func (e emitter) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil || evt == nil {
		return
	}
	// audit rows must still be written when the caller's context is already cancelled
	if err := e.dispatcher.Dispatch(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.Error("Failed to dispatch event",
			"event_type", evt.Type,
			"entity", evt.Entity,
			"error", err,
		)
	}
}

func (e emitter) emitAll(ctx context.Context, events []*event.Event) {
	for _, evt := range events {
		e.emit(ctx, evt)
	}
}
