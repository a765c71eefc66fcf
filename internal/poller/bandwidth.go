package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Telestream/srtStreamer/internal/appstate"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
)

// Bandwidth refreshes per-destination rates for every stream in the current set.
type Bandwidth struct {
	src      BandwidthSource
	session  Session
	state    *appstate.State
	interval time.Duration
	logger   *slog.Logger
}

func NewBandwidth(src BandwidthSource, session Session, state *appstate.State, interval time.Duration, logger *slog.Logger) *Bandwidth {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bandwidth{src: src, session: session, state: state, interval: interval, logger: logger}
}

// Poll fetches every current stream concurrently and returns once all requests
// finished. It reports how many responses were written.
func (b *Bandwidth) Poll(ctx context.Context) int {
	if !b.session.IsValid() {
		return 0
	}
	gen := b.session.Generation()
	epoch := b.state.Epoch()
	ids := b.state.StreamIDs()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		written int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			rates, err := b.src.Bandwidth(ctx, id)
			if err != nil {
				if clienthttp.IsNotFound(err) {
					b.logger.Debug("no bandwidth samples yet", "stream_id", id)
				} else {
					b.logger.Warn("bandwidth fetch failed", "stream_id", id, "error", err)
				}
				return
			}
			if !b.session.ValidAt(gen) {
				return
			}
			if b.state.MergeBandwidth(epoch, id, rates) {
				mu.Lock()
				written++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return written
}

// Run polls until ctx is done. A slow round delays the next tick rather than overlapping it.
func (b *Bandwidth) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b.Poll(ctx)
	}
}
