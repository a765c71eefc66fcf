package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Telestream/srtStreamer/internal/appstate"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
	"github.com/Telestream/srtStreamer/internal/command"
	"github.com/Telestream/srtStreamer/internal/config"
	"github.com/Telestream/srtStreamer/internal/feed"
	"github.com/Telestream/srtStreamer/internal/poller"
	"github.com/Telestream/srtStreamer/internal/session"
	"github.com/Telestream/srtStreamer/internal/upload"
	"github.com/Telestream/srtStreamer/internal/view"
	"github.com/Telestream/srtStreamer/pkg/protocol"
)

// Version is reported on the live feed.
var Version = "dev"

// Options override the pieces tests need to control.
type Options struct {
	Fs        afero.Fs
	Now       func() time.Time
	Transport http.RoundTripper
}

// App wires the session, the pollers, the command dispatcher and the upload tracker.
type App struct {
	cfg    config.ClientConfig
	logger *slog.Logger

	Session   *session.Store
	State     *appstate.State
	Client    *clienthttp.Client
	Directory *poller.Directory
	Bandwidth *poller.Bandwidth
	Commands  *command.Dispatcher
	Uploads   *upload.Tracker

	hub *feed.Hub

	mu       sync.Mutex
	wasValid bool
}

func New(cfg config.ClientConfig, logger *slog.Logger) (*App, error) {
	return NewWithOptions(cfg, logger, Options{})
}

func NewWithOptions(cfg config.ClientConfig, logger *slog.Logger, opt Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs := opt.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}

	var persister session.Persister
	if cfg.CredentialsPath != "" {
		persister = session.NewFilePersister(fs, cfg.CredentialsPath)
	}
	store := session.NewStoreWithNow(persister, now)
	state := appstate.NewWithNow(now)

	client, err := clienthttp.NewClient(clienthttp.ClientOptions{
		BaseURL:   cfg.ServerURL,
		Insecure:  cfg.Insecure,
		HTTP3:     cfg.HTTP3,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "streamctl/" + Version,
		Logger:    logger,
		Transport: opt.Transport,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("service client: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		Session: store,
		State:   state,
		Client:  client,
		hub:     feed.NewHub(),
	}
	a.Directory = poller.NewDirectory(client, store, state, cfg.PollInterval, logger)
	a.Bandwidth = poller.NewBandwidth(client, store, state, cfg.PollInterval, logger)
	a.Commands = command.NewDispatcher(client, state, a.Directory, logger)
	a.Uploads = upload.NewTracker(client, fs, logger)
	a.Uploads.OnSuccess(func(clienthttp.UploadResult) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if _, err := a.RefreshFiles(ctx); err != nil {
			a.logger.Warn("files refresh after upload failed", "error", err)
		}
	})
	return a, nil
}

// Restore reinstalls a persisted session, if any.
func (a *App) Restore() bool {
	ok, err := a.Session.Restore()
	if err != nil {
		a.logger.Warn("stored session discarded", "error", err)
	}
	a.setValid(ok)
	if ok {
		a.logger.Info("session restored", "expires_at", a.Session.ExpiresAt())
	}
	return ok
}

// Login exchanges credentials for a session and loads the directory right away.
func (a *App) Login(ctx context.Context, username, password string) error {
	res, err := a.Client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	expiresAt := session.FromEpochSeconds(res.Expiration)
	a.State.Reset()
	if err := a.Session.Set(res.APIKey, expiresAt); err != nil {
		a.logger.Warn("session not persisted", "error", err)
	}
	if !a.Session.IsValid() {
		return &clienthttp.AuthError{Detail: "session already expired"}
	}
	a.setValid(true)
	a.logger.Info("logged in", "user", username, "expires_at", expiresAt)

	if err := a.Directory.Refresh(ctx); err != nil {
		a.logger.Warn("initial directory refresh failed", "error", err)
	}
	return nil
}

// Logout destroys the session and everything learned under it.
func (a *App) Logout() error {
	a.Uploads.Cancel()
	err := a.Session.Clear()
	a.State.Reset()
	a.setValid(false)
	a.logger.Info("logged out")
	return err
}

// RefreshFiles reloads the media catalog. A reply that outlived its session
// is dropped and the catalog currently held is returned instead.
func (a *App) RefreshFiles(ctx context.Context) ([]string, error) {
	gen := a.Session.Generation()
	epoch := a.State.Epoch()
	files, err := a.Client.Files(ctx)
	if err != nil {
		return nil, err
	}
	if !a.Session.ValidAt(gen) || !a.State.SetFiles(epoch, files) {
		a.logger.Debug("stale files response dropped", "count", len(files))
		return a.State.Files(), nil
	}
	return files, nil
}

func (a *App) Files() []string { return a.State.Files() }

func (a *App) LoggedIn() bool { return a.Session.IsValid() }

func (a *App) RequestRefresh() { a.Directory.RequestRefresh() }

func (a *App) StartStream(ctx context.Context, in command.StartInput) (clienthttp.StartResult, error) {
	return a.Commands.StartStream(ctx, in)
}

func (a *App) StopStream(ctx context.Context, streamID string) error {
	return a.Commands.StopStream(ctx, streamID)
}

func (a *App) StopRandomSource(ctx context.Context, streamID string) (clienthttp.StopSourceResult, error) {
	return a.Commands.StopRandomSource(ctx, streamID)
}

// StartUpload begins a background upload bound to ctx.
func (a *App) StartUpload(ctx context.Context, path string, expireMinutes *int) (string, error) {
	if !a.Session.IsValid() {
		return "", clienthttp.ErrNotAuthenticated
	}
	return a.Uploads.Start(ctx, path, expireMinutes)
}

// View renders the current frame.
func (a *App) View() view.View {
	snap := a.State.Snapshot()
	in := view.Input{Streams: snap.Streams, Bandwidth: snap.Bandwidth}
	if task, ok := a.Uploads.Snapshot(); ok {
		in.Upload = &task
	}
	return view.Render(in)
}

// Status summarises the session for the feed and the dashboard header.
func (a *App) Status() protocol.SessionStatus {
	st := protocol.SessionStatus{
		LoggedIn:          a.Session.IsValid(),
		DirectoryFailures: a.Directory.Failures(),
	}
	if st.LoggedIn {
		exp := a.Session.ExpiresAt()
		st.ExpiresAt = &exp
	}
	return st
}

// CheckExpiry tears the state down once the session has lapsed. It reports
// whether an expiry was handled.
func (a *App) CheckExpiry() bool {
	valid := a.Session.IsValid()
	a.mu.Lock()
	expired := a.wasValid && !valid
	a.wasValid = valid
	a.mu.Unlock()
	if expired {
		a.State.Reset()
		a.logger.Info("session expired")
	}
	return expired
}

func (a *App) setValid(v bool) {
	a.mu.Lock()
	a.wasValid = v
	a.mu.Unlock()
}

// Run drives the pollers, the expiry watcher and, when configured, the live
// feed until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if a.cfg.FeedAddr != "" {
		l, err := net.Listen("tcp", a.cfg.FeedAddr)
		if err != nil {
			return fmt.Errorf("feed listen: %w", err)
		}
		ln = l
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { a.Directory.Run(ctx) })
	run(func() { a.Bandwidth.Run(ctx) })
	run(func() { a.watchExpiry(ctx) })

	var feedErr error
	if ln != nil {
		pub := feed.NewPublisher(a.hub, feed.DefaultInterval, a.logger,
			feed.Source{Type: protocol.TypeView, Build: func() any { return a.View() }},
			feed.Source{Type: protocol.TypeSession, Build: func() any { return a.Status() }},
		)
		srv := feed.NewServer(a.hub, protocol.Hello{
			Client:          "streamctl",
			Version:         Version,
			ServerURL:       a.cfg.ServerURL,
			PublishInterval: feed.DefaultInterval.Milliseconds(),
		}, a.logger)
		run(func() { pub.Run(ctx) })
		run(func() {
			if err := srv.Serve(ctx, ln); err != nil {
				a.logger.Error("feed stopped", "error", err)
				feedErr = err
			}
		})
	}

	if a.Session.IsValid() {
		a.Directory.RequestRefresh()
	}
	<-ctx.Done()
	wg.Wait()
	if feedErr != nil {
		return feedErr
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (a *App) watchExpiry(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CheckExpiry()
		}
	}
}
