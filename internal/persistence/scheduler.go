package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Scheduler aligns flushes to wall-clock boundaries:
//
//	delay = ceil(now/interval)*interval - now - 20ms
//	if delay < 1000ms, add one full interval
//
// This staggers flushes to the start of each interval bucket while leaving
// a 20ms safety gap. Grounded on persist/retention.go's and
// internal/archive/archiver.go's ticker-loop shape; the alignment formula
// itself is new arithmetic the teacher does not have (it flushes on a
// fixed interval via time.NewTicker with no alignment).
type Scheduler struct {
	interval time.Duration
	chunk    *Chunk
	storages []Storage
	log      zerolog.Logger
	nowFunc  func() int64 // injectable for virtual-time tests

	flushTotal  *prometheus.CounterVec
	flushErrors *prometheus.CounterVec
	chunkSize   prometheus.Gauge
}

// NewScheduler creates a Scheduler. nowFunc defaults to wall-clock
// milliseconds if nil.
func NewScheduler(interval time.Duration, chunk *Chunk, storages []Storage, log zerolog.Logger, nowFunc func() int64, reg prometheus.Registerer) *Scheduler {
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMilli() }
	}
	s := &Scheduler{
		interval: interval,
		chunk:    chunk,
		storages: storages,
		log:      log.With().Str("component", "persistence").Logger(),
		nowFunc:  nowFunc,
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggr_flush_total",
			Help: "Number of successful storage flushes, per storage.",
		}, []string{"storage"}),
		flushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggr_flush_errors_total",
			Help: "Number of failed storage flushes, per storage.",
		}, []string{"storage"}),
		chunkSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggr_chunk_pending_trades",
			Help: "Number of trades currently pending the next flush.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.flushTotal, s.flushErrors, s.chunkSize)
	}
	return s
}

// AlignedDelay computes the delay until the next wall-clock-aligned
// boundary, given the current time in ms.
func AlignedDelay(now int64, interval time.Duration) time.Duration {
	intervalMs := interval.Milliseconds()
	if intervalMs <= 0 {
		return 0
	}
	boundary := ((now + intervalMs - 1) / intervalMs) * intervalMs
	delayMs := boundary - now - 20
	if delayMs < 1000 {
		delayMs += intervalMs
	}
	return time.Duration(delayMs) * time.Millisecond
}

// Run drives the aligned flush loop until ctx is cancelled. On
// cancellation it performs one final exit flush, awaiting all storages,
// before returning.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		delay := AlignedDelay(s.nowFunc(), s.interval)
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.flush(context.Background(), true)
			return
		case <-timer.C:
			s.flush(ctx, false)
		}
	}
}

// flush performs one swap-and-save cycle. Failures are logged per storage
// but do not abort other storages.
func (s *Scheduler) flush(ctx context.Context, isExitFlush bool) {
	batch := s.chunk.Swap()
	s.chunkSize.Set(0)
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, st := range s.storages {
		wg.Add(1)
		go func(st Storage) {
			defer wg.Done()
			if err := st.Save(ctx, batch, isExitFlush); err != nil {
				s.flushErrors.WithLabelValues(st.Name()).Inc()
				s.log.Error().Err(err).Str("storage", st.Name()).Int("batch", len(batch)).Msg("storage save failed")
				return
			}
			s.flushTotal.WithLabelValues(st.Name()).Inc()
		}(st)
	}
	wg.Wait()
}
