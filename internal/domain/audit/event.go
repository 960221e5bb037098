package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
)

// EventType classifies audit events emitted by the risk engine
type EventType string

const (
	// EventAnalysisCompleted records every finished analysis, including
	// duplicate blocks, which are deliberately logged as normal events.
	EventAnalysisCompleted EventType = "fraud.analysis_completed"

	// EventTransactionBlocked is the security-severity record for hard
	// blocks from scoring or impossible travel.
	EventTransactionBlocked EventType = "fraud.transaction_blocked"

	// EventFalsePositiveMarked records a reviewer overturning an analysis.
	EventFalsePositiveMarked EventType = "fraud.false_positive_marked"

	// EventAnalysisFailed records the fail-safe path firing.
	EventAnalysisFailed EventType = "fraud.analysis_failed"
)

// Severity grades an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents an immutable audit log entry. All validation happens in
// the constructor; fields are never modified after creation.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`

	// Actor is who performed the action: a user ID, reviewer ID, or "system"
	ActorID   string `json:"actor_id"`
	ActorIP   string `json:"actor_ip,omitempty"`

	// Target is what was acted upon, typically a transaction ID
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`

	Action string `json:"action"`
	Result string `json:"result"` // success, failure

	SessionID string `json:"session_id,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates a validated audit event with info severity defaults
func NewEvent(eventType EventType, actorID, targetID, action string) (*Event, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("MISSING_EVENT_TYPE", "event type is required")
	}
	if actorID == "" {
		return nil, errors.NewValidationError("MISSING_ACTOR_ID", "actor ID is required")
	}
	if targetID == "" {
		return nil, errors.NewValidationError("MISSING_TARGET_ID", "target ID is required")
	}
	if action == "" {
		return nil, errors.NewValidationError("MISSING_ACTION", "action is required")
	}

	return &Event{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		Type:       eventType,
		Severity:   SeverityInfo,
		ActorID:    actorID,
		TargetID:   targetID,
		TargetType: "transaction",
		Action:     action,
		Result:     "success",
		Metadata:   make(map[string]interface{}),
	}, nil
}

// WithSeverity returns the event with its severity raised
func (e *Event) WithSeverity(s Severity) *Event {
	e.Severity = s
	return e
}

// WithResult sets the action result
func (e *Event) WithResult(result string) *Event {
	e.Result = result
	return e
}

// WithMetadata merges additional context into the event
func (e *Event) WithMetadata(md map[string]interface{}) *Event {
	for k, v := range md {
		e.Metadata[k] = v
	}
	return e
}
