// Package audit provides security audit logging for SIEM consumption.
// Security-relevant events are logged as structured JSON under a dedicated
// logger namespace so they can be filtered and alerted on independently of
// application logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventQueryRejected is logged when the query gateway refuses a
	// model-generated statement before execution.
	EventQueryRejected SecurityEventType = "query_rejected"
	// EventQueryExecution is logged for queries that passed validation and ran.
	// Can be high volume.
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent is the wire format written to the security audit stream.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// QueryRejectionDetails records why the gateway refused a statement.
type QueryRejectionDetails struct {
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor writing under the "security_audit"
// logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogQueryRejected records a statement the gateway refused to run. Rejections
// are usually the model writing bad SQL, but a rejected DML statement or an
// injection fingerprint in a literal is worth alerting on, so these are
// logged at WARN with "warning" severity.
func (a *SecurityAuditor) LogQueryRejected(ctx context.Context, details QueryRejectionDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventQueryRejected,
		UserID:    userIDString(ctx),
		Details:   details,
		Severity:  "warning",
	}

	// Marshaling known types should never fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Gateway query rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("reason", details.Reason),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records a successful gateway query for the audit trail.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, query string, rowCount int) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventQueryExecution,
		UserID:    userIDString(ctx),
		Details: map[string]any{
			"query":     query,
			"row_count": rowCount,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Gateway query executed",
		zap.String("event_json", string(eventJSON)),
		zap.Int("row_count", rowCount),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)
}

func userIDString(ctx context.Context) string {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return ""
	}
	return userID.String()
}
