package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
	"github.com/meridianpay/risk-engine/internal/domain/values"
)

// historyFetchLimit bounds each history query so a hot account cannot drag
// an analysis into scanning thousands of rows.
const historyFetchLimit = 500

// HistoryRepository serves the fraud service's read-only view of user
// activity from PostgreSQL.
type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// FindRecentTransactions returns the user's transactions inside the lookback
// window, newest first.
func (r *HistoryRepository) FindRecentTransactions(ctx context.Context, userID, accountID uuid.UUID, lookback time.Duration) ([]*transaction.HistoryRecord, error) {
	query := `
		SELECT id, amount, currency, occurred_at, status, tx_type,
		       geo_country, geo_region, geo_city, geo_latitude, geo_longitude,
		       device_fingerprint
		FROM transaction_history
		WHERE user_id = $1 AND account_id = $2 AND occurred_at >= $3
		ORDER BY occurred_at DESC
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, userID, accountID, time.Now().UTC().Add(-lookback), historyFetchLimit)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "transaction history query failed").WithCause(err)
	}
	defer rows.Close()

	var records []*transaction.HistoryRecord
	for rows.Next() {
		var (
			rec      transaction.HistoryRecord
			amount   string
			currency string
			status   string
			txType   string
			country  *string
			region   *string
			city     *string
			lat      *float64
			lon      *float64
			device   *string
		)
		if err := rows.Scan(&rec.ID, &amount, &currency, &rec.Timestamp, &status, &txType,
			&country, &region, &city, &lat, &lon, &device); err != nil {
			return nil, errors.NewInfrastructureError("history_store", "transaction history scan failed").WithCause(err)
		}

		money, err := values.NewMoneyFromString(amount, currency)
		if err != nil {
			return nil, errors.NewInfrastructureError("history_store", "stored amount is unreadable").WithCause(err)
		}
		rec.Amount = money
		rec.Status = transaction.HistoryStatus(status)
		rec.Type = transaction.Type(txType)
		if device != nil {
			rec.DeviceFingerprint = *device
		}
		if country != nil && lat != nil && lon != nil {
			rec.Geolocation = &transaction.Geolocation{
				Country:   *country,
				Latitude:  *lat,
				Longitude: *lon,
			}
			if region != nil {
				rec.Geolocation.Region = *region
			}
			if city != nil {
				rec.Geolocation.City = *city
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInfrastructureError("history_store", "transaction history iteration failed").WithCause(err)
	}
	return records, nil
}

// FindLoginHistory returns the user's recent logins, newest first
func (r *HistoryRepository) FindLoginHistory(ctx context.Context, userID uuid.UUID) ([]*transaction.LoginRecord, error) {
	query := `
		SELECT occurred_at, client_ip, geo_country, geo_latitude, geo_longitude, success
		FROM login_history
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, historyFetchLimit)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "login history query failed").WithCause(err)
	}
	defer rows.Close()

	var records []*transaction.LoginRecord
	for rows.Next() {
		var (
			rec     transaction.LoginRecord
			ip      *string
			country *string
			lat     *float64
			lon     *float64
		)
		if err := rows.Scan(&rec.Timestamp, &ip, &country, &lat, &lon, &rec.Success); err != nil {
			return nil, errors.NewInfrastructureError("history_store", "login history scan failed").WithCause(err)
		}
		if ip != nil {
			rec.ClientIP = *ip
		}
		if country != nil {
			rec.Geolocation = &transaction.Geolocation{Country: *country}
			if lat != nil && lon != nil {
				rec.Geolocation.Latitude = *lat
				rec.Geolocation.Longitude = *lon
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInfrastructureError("history_store", "login history iteration failed").WithCause(err)
	}
	return records, nil
}

// FindDeviceHistory returns every device fingerprint seen for the user
func (r *HistoryRepository) FindDeviceHistory(ctx context.Context, userID uuid.UUID) ([]*transaction.DeviceRecord, error) {
	query := `
		SELECT fingerprint, first_seen, last_seen, geo_country
		FROM device_history
		WHERE user_id = $1
		ORDER BY last_seen DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, historyFetchLimit)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "device history query failed").WithCause(err)
	}
	defer rows.Close()

	var records []*transaction.DeviceRecord
	for rows.Next() {
		var (
			rec     transaction.DeviceRecord
			country *string
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.FirstSeen, &rec.LastSeen, &country); err != nil {
			return nil, errors.NewInfrastructureError("history_store", "device history scan failed").WithCause(err)
		}
		if country != nil {
			rec.Country = *country
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInfrastructureError("history_store", "device history iteration failed").WithCause(err)
	}
	return records, nil
}
