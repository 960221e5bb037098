package transaction

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/values"
)

// Type classifies a transaction
type Type string

const (
	TypePayment    Type = "payment"
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
)

// IsValid checks whether the type is one of the known values
func (t Type) IsValid() bool {
	switch t {
	case TypePayment, TypeDeposit, TypeWithdrawal, TypeTransfer:
		return true
	}
	return false
}

// Geolocation is an optional location attached to a transaction or event
type Geolocation struct {
	Country   string  `json:"country"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Context is the immutable input to a risk analysis. Constructed by the
// caller through NewContext; the engine never mutates it.
type Context struct {
	TransactionID      string             `json:"transaction_id"`
	UserID             uuid.UUID          `json:"user_id"`
	AccountID          uuid.UUID          `json:"account_id"`
	Amount             values.Money       `json:"amount"`
	Type               Type               `json:"type"`
	SourceAccount      string             `json:"source_account,omitempty"`
	DestinationAccount string             `json:"destination_account,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
	ClientIP           string             `json:"client_ip,omitempty"`
	UserAgent          string             `json:"user_agent,omitempty"`
	SessionID          string             `json:"session_id,omitempty"`
	DeviceFingerprint  string             `json:"device_fingerprint,omitempty"`
	Geolocation        *Geolocation       `json:"geolocation,omitempty"`
}

// NewContext validates and builds a transaction context. Validation failures
// here are the only errors the analysis pipeline surfaces to callers.
func NewContext(
	transactionID string,
	userID, accountID uuid.UUID,
	amount values.Money,
	txType Type,
	timestamp time.Time,
) (*Context, error) {
	if transactionID == "" {
		return nil, errors.NewValidationError("MISSING_TRANSACTION_ID", "transaction ID is required")
	}
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user ID is required")
	}
	if accountID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ACCOUNT_ID", "account ID is required")
	}
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if !txType.IsValid() {
		return nil, errors.NewValidationError("INVALID_TYPE", "unknown transaction type")
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return &Context{
		TransactionID: transactionID,
		UserID:        userID,
		AccountID:     accountID,
		Amount:        amount,
		Type:          txType,
		Timestamp:     timestamp,
	}, nil
}

// Validate re-checks an already constructed context, including the optional
// fields a caller may have set after NewContext.
func (c *Context) Validate() error {
	if c == nil {
		return errors.NewValidationError("NIL_CONTEXT", "transaction context is required")
	}
	if c.TransactionID == "" {
		return errors.NewValidationError("MISSING_TRANSACTION_ID", "transaction ID is required")
	}
	if c.UserID == uuid.Nil {
		return errors.NewValidationError("MISSING_USER_ID", "user ID is required")
	}
	if c.AccountID == uuid.Nil {
		return errors.NewValidationError("MISSING_ACCOUNT_ID", "account ID is required")
	}
	if !c.Amount.IsPositive() {
		return errors.NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if !c.Type.IsValid() {
		return errors.NewValidationError("INVALID_TYPE", "unknown transaction type")
	}
	if c.ClientIP != "" && net.ParseIP(c.ClientIP) == nil {
		return errors.NewValidationError("INVALID_CLIENT_IP", "client IP is not a valid address")
	}
	if c.Geolocation != nil {
		if c.Geolocation.Latitude < -90 || c.Geolocation.Latitude > 90 {
			return errors.NewValidationError("INVALID_LATITUDE", "latitude out of range")
		}
		if c.Geolocation.Longitude < -180 || c.Geolocation.Longitude > 180 {
			return errors.NewValidationError("INVALID_LONGITUDE", "longitude out of range")
		}
	}
	return nil
}
