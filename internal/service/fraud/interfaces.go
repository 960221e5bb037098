package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/audit"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

// Service is the transaction risk-scoring and decision engine
type Service interface {
	// AnalyzeTransaction scores one transaction and returns a decision.
	// The only caller-visible error is input validation; every
	// infrastructure failure is absorbed into a fail-safe review result.
	AnalyzeTransaction(ctx context.Context, tx *transaction.Context, opts *AnalysisOptions) (*analysis.RiskScore, error)

	// MarkFalsePositive records a reviewer overturning a prior analysis.
	// Historical statistics counters are not rewritten; the false-positive
	// rate is derived from the flag at query time.
	MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error

	// GetStatistics returns aggregate counts, optionally bounded by
	// analysis creation time, plus in-process current metrics.
	GetStatistics(ctx context.Context, timeRange *analysis.TimeRange) (*analysis.Statistics, error)
}

// AnalysisOptions is caller-supplied per-analysis configuration.
// The zero value is the default: standard thresholds, condensed reasons.
type AnalysisOptions struct {
	// EnhancedChecks lowers the challenge/review bands and surfaces every
	// detector reason instead of only the dominant ones.
	EnhancedChecks bool
}

// HistoryStore provides read-only access to a user's recent activity,
// bounded by a lookback window. Read path only; no locking discipline needed.
type HistoryStore interface {
	FindRecentTransactions(ctx context.Context, userID, accountID uuid.UUID, lookback time.Duration) ([]*transaction.HistoryRecord, error)
	FindLoginHistory(ctx context.Context, userID uuid.UUID) ([]*transaction.LoginRecord, error)
	FindDeviceHistory(ctx context.Context, userID uuid.UUID) ([]*transaction.DeviceRecord, error)
}

// DuplicateCache is the short-TTL fingerprint store backing exact-duplicate
// detection. Best-effort: two identical transactions racing before either
// records its fingerprint may both pass.
type DuplicateCache interface {
	// Seen reports whether a fingerprint is currently cached
	Seen(ctx context.Context, fingerprint string) (bool, error)
	// Record stores a fingerprint with the given TTL
	Record(ctx context.Context, fingerprint string, ttl time.Duration) error
}

// RiskModel produces a fraud probability in [0,1] from extracted features.
// Implementations may be slow, fail, or panic; the engine's adapter absorbs
// all of that and degrades to rule-only scoring.
type RiskModel interface {
	Predict(ctx context.Context, features Features) (float64, error)
}

// Features is the flat numeric feature vector handed to the risk model
type Features map[string]float64

// AuditTrail is the append-only analysis log. LogEvent records routine
// analyses; LogSecurityEvent records high-severity outcomes for escalation.
type AuditTrail interface {
	LogEvent(ctx context.Context, event *audit.Event) error
	LogSecurityEvent(ctx context.Context, event *audit.Event) error
}

// AlertBus delivers critical-risk notifications to monitoring subscribers
type AlertBus interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// AnalysisStore persists analysis results and serves aggregate counts
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, result *analysis.RiskScore) error
	GetAnalysis(ctx context.Context, transactionID string) (*analysis.RiskScore, error)
	MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error
	CountAnalyses(ctx context.Context, timeRange *analysis.TimeRange) (analysis.Counts, error)
}

// Alert is the payload published on the alert bus for critical-risk events
type Alert struct {
	Transaction *transaction.Context `json:"transaction"`
	Result      *analysis.RiskScore  `json:"result"`
	EmittedAt   time.Time            `json:"emitted_at"`
}
