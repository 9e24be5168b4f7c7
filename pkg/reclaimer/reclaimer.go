// Package reclaimer periodically transitions stale non-terminal
// allocations to timeout.
package reclaimer

import (
	"sync"
	"time"

	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/metrics"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/rs/zerolog"
)

// DefaultThreshold is N in the sweep: allocations dispatched more
// than this long ago and still non-terminal are reclaimed.
const DefaultThreshold = 30 * time.Minute

// DefaultInterval is the background sweep cadence when Start is used
// instead of calling Reclaim directly after a manual dispatch.
const DefaultInterval = time.Minute

// Reclaimer sweeps the allocation store for stale rows.
type Reclaimer struct {
	store     storage.Store
	threshold time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	mu        sync.RWMutex
	stopCh    chan struct{}
}

// New builds a Reclaimer with DefaultThreshold and DefaultInterval.
func New(store storage.Store) *Reclaimer {
	return &Reclaimer{
		store:     store,
		threshold: DefaultThreshold,
		interval:  DefaultInterval,
		logger:    log.WithComponent("reclaimer"),
		stopCh:    make(chan struct{}),
	}
}

// WithThreshold overrides the staleness window (N ).
func (r *Reclaimer) WithThreshold(d time.Duration) *Reclaimer {
	r.threshold = d
	return r
}

// WithInterval overrides the background sweep cadence.
func (r *Reclaimer) WithInterval(d time.Duration) *Reclaimer {
	r.interval = d
	return r
}

// Start begins the background sweep loop.
func (r *Reclaimer) Start() {
	go r.run()
}

// Stop halts the background sweep loop.
func (r *Reclaimer) Stop() {
	close(r.stopCh)
}

func (r *Reclaimer) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reclaimer started")

	for {
		select {
		case <-ticker.C:
			if _, err := r.Reclaim(); err != nil {
				r.logger.Error().Err(err).Msg("reclaim sweep failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reclaimer stopped")
			return
		}
	}
}

// Reclaim performs one sweep, transitioning every non-terminal
// allocation dispatched more than r.threshold ago to timeout.
func (r *Reclaimer) Reclaim() (int, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReclaimDuration)
		metrics.ReclaimCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.store.ReclaimStale(r.threshold)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AllocationsReclaimedTotal.Add(float64(n))
		r.logger.Warn().Int("count", n).Dur("threshold", r.threshold).Msg("reclaimed stale allocations")
	}
	return n, nil
}
