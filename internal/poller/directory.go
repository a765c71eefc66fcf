package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Telestream/srtStreamer/internal/appstate"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
)

// Directory replaces the known stream set on a fixed cadence and on demand.
type Directory struct {
	src      DirectorySource
	session  Session
	state    *appstate.State
	interval time.Duration
	logger   *slog.Logger

	kick chan struct{}

	mu       sync.Mutex
	failures int
	onChange []func()
}

func NewDirectory(src DirectorySource, session Session, state *appstate.State, interval time.Duration, logger *slog.Logger) *Directory {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		src:      src,
		session:  session,
		state:    state,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// OnChange registers a callback run after every applied replacement.
func (d *Directory) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Refresh fetches the directory once. On failure the previous set is kept.
// A response issued under another session, or older than one already applied,
// is dropped without error.
func (d *Directory) Refresh(ctx context.Context) error {
	if !d.session.IsValid() {
		return clienthttp.ErrNotAuthenticated
	}
	gen := d.session.Generation()
	seq := d.state.NextSeq()

	records, err := d.src.ActiveStreams(ctx)
	if err != nil {
		d.mu.Lock()
		d.failures++
		n := d.failures
		d.mu.Unlock()
		d.logger.Warn("directory refresh failed", "error", err, "failures", n)
		return err
	}

	d.mu.Lock()
	if d.failures > 0 {
		d.logger.Info("directory refresh recovered", "failures", d.failures)
	}
	d.failures = 0
	d.mu.Unlock()

	if !d.session.ValidAt(gen) {
		d.logger.Debug("directory response dropped", "reason", "session changed")
		return nil
	}
	if !d.state.ReplaceStreams(seq, records) {
		d.logger.Debug("directory response dropped", "reason", "stale", "seq", seq)
		return nil
	}
	d.logger.Debug("directory refreshed", "streams", len(records), "seq", seq)
	d.notify()
	return nil
}

func (d *Directory) notify() {
	d.mu.Lock()
	fns := append([]func(){}, d.onChange...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RequestRefresh asks Run for an immediate refresh. Requests made while one is
// already pending collapse into it.
func (d *Directory) RequestRefresh() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Failures returns the number of consecutive failed refreshes.
func (d *Directory) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Run polls until ctx is done. Ticks are skipped while there is no valid session.
func (d *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kick:
		}
		if !d.session.IsValid() {
			continue
		}
		_ = d.Refresh(ctx)
	}
}
