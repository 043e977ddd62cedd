package entity

import "time"

// AuditEntry is a persisted audit event consumed by reporting collaborators
type AuditEntry struct {
	ID        int64                  `json:"id"`
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Entity    string                 `json:"entity"`
	GLCode    string                 `json:"gl_code,omitempty"`
	Actor     string                 `json:"actor"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}
