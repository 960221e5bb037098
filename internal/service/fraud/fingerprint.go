package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

// fingerprintBucket is the time quantum folded into the fingerprint so that
// identical transactions land on the same key within a short window.
const fingerprintBucket = 300 // seconds

// Fingerprint derives the deterministic duplicate-detection key for a
// transaction from its identity-relevant attributes and a coarse time bucket.
// Transaction ID is deliberately excluded: a replay carries a new ID but the
// same user, account, amount and destination.
func Fingerprint(tx *transaction.Context) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d",
		tx.UserID,
		tx.AccountID,
		tx.Amount.String(),
		tx.DestinationAccount,
		tx.Timestamp.Unix()/fingerprintBucket,
	)

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
