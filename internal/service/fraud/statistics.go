package fraud

import (
	"sync/atomic"
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
)

// statsAggregator tracks in-process counters with atomics; safe for
// concurrent analyses without a lock. Counters reset on restart, so the
// durable counts always come from the analysis store.
type statsAggregator struct {
	analyzed      atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
}

func newStatsAggregator() *statsAggregator {
	return &statsAggregator{}
}

// recordAnalysis counts one completed analysis and its wall-clock duration
func (s *statsAggregator) recordAnalysis(elapsed time.Duration) {
	s.analyzed.Add(1)
	s.totalDuration.Add(int64(elapsed))
}

func (s *statsAggregator) snapshot() analysis.CurrentMetrics {
	analyzed := s.analyzed.Load()
	var avg time.Duration
	if analyzed > 0 {
		avg = time.Duration(s.totalDuration.Load() / analyzed)
	}
	return analysis.CurrentMetrics{
		TransactionsAnalyzed: analyzed,
		AvgProcessingTime:    avg,
	}
}
