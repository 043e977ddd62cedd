package service

import (
	"context"
	"fmt"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
)

// AuditRecorder persists dispatched events to the audit log.
// Dry-run events are observed but never written.
type AuditRecorder struct {
	audits port.AuditRepository
	logger Logger
}

// NewAuditRecorder creates a new AuditRecorder
func NewAuditRecorder(audits port.AuditRepository, logger Logger) *AuditRecorder {
	return &AuditRecorder{audits: audits, logger: orNop(logger)}
}

// Register subscribes the recorder to every event type
func (r *AuditRecorder) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("audit-recorder", r.Handle)
}

// Handle appends one audit entry for evt
func (r *AuditRecorder) Handle(ctx context.Context, evt *event.Event) error {
	if evt.IsDryRun() {
		return nil
	}

	details := make(map[string]interface{}, len(evt.Payload)+2)
	for k, v := range evt.Payload {
		details[k] = v
	}
	details["period"] = evt.Period
	if evt.CorrelationID != "" {
		details["correlation_id"] = evt.CorrelationID
	}

	entry := &entity.AuditEntry{
		EventID:   evt.ID,
		EventType: string(evt.Type),
		Entity:    evt.Entity,
		GLCode:    evt.GLCode,
		Actor:     evt.Actor,
		Details:   details,
		CreatedAt: evt.Timestamp,
	}
	if err := r.audits.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry for %s: %w", evt.Type, err)
	}
	return nil
}

// History returns recent audit entries, newest first
func (r *AuditRecorder) History(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	return r.audits.List(ctx, filter)
}
