package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit agents identify which subsystem wrote a log entry.
const (
	AuditAgentIngest   = "report-ingest"
	AuditAgentAnalysis = "vision-analysis"
	AuditAgentHotspot  = "hotspot-aggregator"
	AuditAgentChat     = "chat-orchestrator"
)

// AuditEntry records a significant system action for operator review.
type AuditEntry struct {
	ID           uuid.UUID  `json:"id"`
	Agent        string     `json:"agent"`
	Action       string     `json:"action"`
	Details      string     `json:"details"`
	RelatedID    *uuid.UUID `json:"related_id,omitempty"`
	RelatedTable string     `json:"related_table,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
