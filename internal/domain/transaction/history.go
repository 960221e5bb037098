package transaction

import (
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/values"
)

// HistoryStatus is the settlement status of a prior transaction
type HistoryStatus string

const (
	StatusCompleted HistoryStatus = "completed"
	StatusPending   HistoryStatus = "pending"
	StatusFailed    HistoryStatus = "failed"
)

// HistoryRecord is a read-only snapshot of one prior transaction for a user.
// Owned by the history store; the engine treats it as immutable.
type HistoryRecord struct {
	ID                string        `json:"id"`
	Amount            values.Money  `json:"amount"`
	Timestamp         time.Time     `json:"timestamp"`
	Status            HistoryStatus `json:"status"`
	Type              Type          `json:"type"`
	Geolocation       *Geolocation  `json:"geolocation,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
}

// Settled reports whether the record counts toward velocity windows
// (completed or still pending, but not failed).
func (r *HistoryRecord) Settled() bool {
	return r.Status == StatusCompleted || r.Status == StatusPending
}

// LoginRecord is one prior login event with its observed location
type LoginRecord struct {
	Timestamp   time.Time    `json:"timestamp"`
	ClientIP    string       `json:"client_ip,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
	Success     bool         `json:"success"`
}

// DeviceRecord is one device fingerprint previously seen for a user
type DeviceRecord struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Country     string    `json:"country,omitempty"`
}
