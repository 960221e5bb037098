package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meridianpay/risk-engine/internal/domain/audit"
	"github.com/meridianpay/risk-engine/internal/domain/errors"
)

// AuditRepository is the append-only audit trail. Normal and security events
// share one table; security events additionally land in a dedicated table
// that feeds escalation tooling.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// LogEvent appends one event to the audit trail
func (r *AuditRepository) LogEvent(ctx context.Context, event *audit.Event) error {
	return r.insert(ctx, "audit_events", event)
}

// LogSecurityEvent appends a high-severity event to both the audit trail and
// the security event table.
func (r *AuditRepository) LogSecurityEvent(ctx context.Context, event *audit.Event) error {
	if err := r.insert(ctx, "audit_events", event); err != nil {
		return err
	}
	return r.insert(ctx, "security_events", event)
}

func (r *AuditRepository) insert(ctx context.Context, table string, event *audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return errors.NewInternalError("failed to marshal event metadata").WithCause(err)
	}

	query := `
		INSERT INTO ` + table + ` (
			id, occurred_at, event_type, severity,
			actor_id, actor_ip, target_id, target_type,
			action, result, session_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		event.ActorID,
		nullable(event.ActorIP),
		event.TargetID,
		event.TargetType,
		event.Action,
		event.Result,
		nullable(event.SessionID),
		metadata,
	)
	if err != nil {
		r.logger.Error("audit insert failed",
			zap.String("table", table),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return errors.NewInfrastructureError("audit_trail", "audit insert failed").WithCause(err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
