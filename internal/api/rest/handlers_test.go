package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
	"github.com/meridianpay/risk-engine/internal/service/fraud"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) AnalyzeTransaction(ctx context.Context, tx *transaction.Context, opts *fraud.AnalysisOptions) (*analysis.RiskScore, error) {
	args := m.Called(ctx, tx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.RiskScore), args.Error(1)
}

func (m *mockService) MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error {
	args := m.Called(ctx, transactionID, reviewerID, reason)
	return args.Error(0)
}

func (m *mockService) GetStatistics(ctx context.Context, timeRange *analysis.TimeRange) (*analysis.Statistics, error) {
	args := m.Called(ctx, timeRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.Statistics), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveAnalysis(ctx context.Context, result *analysis.RiskScore) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *mockStore) GetAnalysis(ctx context.Context, transactionID string) (*analysis.RiskScore, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.RiskScore), args.Error(1)
}

func (m *mockStore) MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error {
	args := m.Called(ctx, transactionID, reviewerID, reason)
	return args.Error(0)
}

func (m *mockStore) CountAnalyses(ctx context.Context, timeRange *analysis.TimeRange) (analysis.Counts, error) {
	args := m.Called(ctx, timeRange)
	return args.Get(0).(analysis.Counts), args.Error(1)
}

func testServer(t *testing.T, svc *mockService, store *mockStore) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	handler := NewHandler(svc, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyses", handler.AnalyzeTransaction)
	mux.HandleFunc("GET /api/v1/analyses/{id}", handler.GetAnalysis)
	mux.HandleFunc("POST /api/v1/analyses/{id}/false-positive", handler.MarkFalsePositive)
	mux.HandleFunc("GET /api/v1/statistics", handler.GetStatistics)
	mux.HandleFunc("GET /healthz", handler.Health)
	return mux
}

func validAnalyzeBody() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": "tx-100",
		"user_id":        uuid.NewString(),
		"account_id":     uuid.NewString(),
		"amount":         "99.95",
		"currency":       "USD",
		"type":           "payment",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeTransactionHandler(t *testing.T) {
	t.Run("valid request returns the analysis", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		expected := &analysis.RiskScore{
			TransactionID: "tx-100",
			Decision:      analysis.DecisionApprove,
			OverallRisk:   12,
		}
		svc.On("AnalyzeTransaction", mock.Anything, mock.AnythingOfType("*transaction.Context"), &fraud.AnalysisOptions{}).
			Return(expected, nil)

		rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses", validAnalyzeBody())

		require.Equal(t, http.StatusOK, rec.Code)
		var got analysis.RiskScore
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, expected.Decision, got.Decision)
		assert.Equal(t, expected.OverallRisk, got.OverallRisk)
	})

	t.Run("enhanced checks flag is forwarded", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		svc.On("AnalyzeTransaction", mock.Anything, mock.Anything, &fraud.AnalysisOptions{EnhancedChecks: true}).
			Return(&analysis.RiskScore{Decision: analysis.DecisionApprove}, nil)

		body := validAnalyzeBody()
		body["enhanced_checks"] = true
		rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses", body)

		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("malformed JSON is a 400", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString("{broken"))
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "AnalyzeTransaction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation failures are 400s", func(t *testing.T) {
		for name, mutate := range map[string]func(map[string]interface{}){
			"missing transaction ID": func(b map[string]interface{}) { delete(b, "transaction_id") },
			"bad user UUID":          func(b map[string]interface{}) { b["user_id"] = "not-a-uuid" },
			"unknown type":           func(b map[string]interface{}) { b["type"] = "chargeback" },
			"bad currency":           func(b map[string]interface{}) { b["currency"] = "DOLLARS" },
			"bad client IP":          func(b map[string]interface{}) { b["client_ip"] = "999.1.2.3" },
		} {
			t.Run(name, func(t *testing.T) {
				svc, store := new(mockService), new(mockStore)
				body := validAnalyzeBody()
				mutate(body)
				rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses", body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("service validation error keeps its code", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		svc.On("AnalyzeTransaction", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.NewValidationError("INVALID_AMOUNT", "amount must be positive"))

		rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses", validAnalyzeBody())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_AMOUNT", body.Error.Code)
	})
}

func TestGetAnalysisHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		store.On("GetAnalysis", mock.Anything, "tx-100").
			Return(&analysis.RiskScore{TransactionID: "tx-100", Decision: analysis.DecisionBlock}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/tx-100", nil)
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got analysis.RiskScore
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, analysis.DecisionBlock, got.Decision)
	})

	t.Run("not found", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		store.On("GetAnalysis", mock.Anything, "tx-missing").
			Return(nil, errors.NewNotFoundError("analysis"))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/tx-missing", nil)
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMarkFalsePositiveHandler(t *testing.T) {
	t.Run("marks with reviewer from body", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		svc.On("MarkFalsePositive", mock.Anything, "tx-100", "reviewer-7", "verified with customer").Return(nil)

		rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses/tx-100/false-positive", map[string]string{
			"reviewer_id": "reviewer-7",
			"reason":      "verified with customer",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown analysis is a 404", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		svc.On("MarkFalsePositive", mock.Anything, "tx-x", mock.Anything, mock.Anything).
			Return(errors.NewNotFoundError("analysis"))

		rec := postJSON(t, testServer(t, svc, store), "/api/v1/analyses/tx-x/false-positive", map[string]string{})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetStatisticsHandler(t *testing.T) {
	t.Run("without range", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		stats := analysis.NewStatistics(analysis.Counts{
			TotalAnalyzed: 200, TotalBlocked: 10, TotalReviewed: 30, TotalFalsePositives: 1,
		}, analysis.CurrentMetrics{})
		svc.On("GetStatistics", mock.Anything, (*analysis.TimeRange)(nil)).Return(stats, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil)
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got analysis.Statistics
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "5.00%", got.BlockRate)
		assert.Equal(t, "10.00%", got.FalsePositiveRate)
	})

	t.Run("with range", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		svc.On("GetStatistics", mock.Anything, mock.AnythingOfType("*analysis.TimeRange")).
			Return(analysis.NewStatistics(analysis.Counts{}, analysis.CurrentMetrics{}), nil)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/statistics?start=2026-01-01T00:00:00Z&end=2026-02-01T00:00:00Z", nil)
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad start is a 400", func(t *testing.T) {
		svc, store := new(mockService), new(mockStore)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics?start=yesterday", nil)
		rec := httptest.NewRecorder()
		testServer(t, svc, store).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	svc, store := new(mockService), new(mockStore)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	testServer(t, svc, store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
