package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/Telestream/srtStreamer/internal/clienthttp"
	"github.com/Telestream/srtStreamer/internal/model"
	"github.com/Telestream/srtStreamer/internal/progress"
)

// ErrBusy is returned by Start while another upload is pending.
var ErrBusy = errors.New("upload already in progress")

// Uploader sends one multipart body.
type Uploader interface {
	Upload(ctx context.Context, req clienthttp.UploadRequest) (clienthttp.UploadResult, error)
}

// Tracker owns the single upload slot.
type Tracker struct {
	client Uploader
	fs     afero.Fs
	logger *slog.Logger
	logs   rate.Sometimes

	mu        sync.Mutex
	task      model.UploadTask
	started   bool
	pending   bool
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
	onSuccess []func(clienthttp.UploadResult)
	onChange  []func()
}

// NewTracker returns a tracker reading files from fs (the OS when nil).
func NewTracker(client Uploader, fs afero.Fs, logger *slog.Logger) *Tracker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		client: client,
		fs:     fs,
		logger: logger,
		logs:   rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
}

// OnSuccess registers a hook run after every successful upload.
func (t *Tracker) OnSuccess(fn func(clienthttp.UploadResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSuccess = append(t.onSuccess, fn)
}

// OnChange registers a hook run whenever the task snapshot changes.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Start validates path and begins the transfer in the background. The upload
// lives as long as ctx or until Cancel.
func (t *Tracker) Start(ctx context.Context, path string, expireMinutes *int) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", &clienthttp.ValidationError{Field: "file", Reason: "required"}
	}
	if expireMinutes != nil {
		if *expireMinutes < 0 {
			return "", &clienthttp.ValidationError{Field: "expire time", Reason: "must not be negative"}
		}
		if *expireMinutes == 0 {
			expireMinutes = nil
		} else {
			v := *expireMinutes
			expireMinutes = &v
		}
	}

	t.mu.Lock()
	if t.pending {
		t.mu.Unlock()
		return "", ErrBusy
	}
	info, err := t.fs.Stat(path)
	if err != nil {
		t.mu.Unlock()
		return "", &clienthttp.ValidationError{Field: "file", Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		t.mu.Unlock()
		return "", &clienthttp.ValidationError{Field: "file", Reason: path + " is not a regular file"}
	}
	f, err := t.fs.Open(path)
	if err != nil {
		t.mu.Unlock()
		return "", &clienthttp.ValidationError{Field: "file", Reason: err.Error()}
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	t.task = model.UploadTask{
		ID:            id,
		FileName:      filepath.Base(path),
		ExpireMinutes: expireMinutes,
		BytesTotal:    info.Size(),
		Outcome:       model.UploadPending,
	}
	t.started = true
	t.pending = true
	t.lastErr = nil
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	task := t.task
	meter := progress.NewMeter()
	meter.Start(info.Size())
	t.mu.Unlock()

	t.logger.Info("upload started", "task_id", id, "file", task.FileName, "bytes", task.BytesTotal)
	t.changed()

	go func() {
		defer close(done)
		defer cancel()
		defer f.Close()
		res, err := t.client.Upload(runCtx, clienthttp.UploadRequest{
			FileName:      task.FileName,
			Body:          f,
			ExpireMinutes: expireMinutes,
			Progress:      func(sent int64) { t.progress(id, meter, sent) },
		})
		if err != nil && runCtx.Err() != nil {
			err = fmt.Errorf("upload aborted: %w", runCtx.Err())
		}
		t.finish(id, meter, res, err)
	}()
	return id, nil
}

func (t *Tracker) progress(id string, meter *progress.Meter, sent int64) {
	meter.Observe(sent)
	stats := meter.Snapshot()

	t.mu.Lock()
	if !t.pending || t.task.ID != id {
		t.mu.Unlock()
		return
	}
	t.task.BytesSent = stats.BytesDone
	t.task.RateBps = stats.RateBps
	t.mu.Unlock()

	t.logs.Do(func() {
		t.logger.Debug("upload progress", "task_id", id,
			"sent", progress.FormatBytes(stats.BytesDone),
			"total", progress.FormatBytes(stats.Total),
			"rate", progress.FormatRate(stats.RateBps),
			"eta", progress.FormatETA(stats.ETA))
	})
	t.changed()
}

func (t *Tracker) finish(id string, meter *progress.Meter, res clienthttp.UploadResult, err error) {
	if err == nil {
		meter.Complete()
	}
	stats := meter.Snapshot()

	t.mu.Lock()
	t.pending = false
	t.cancel = nil
	t.lastErr = err
	if err != nil {
		t.task.Outcome = model.UploadFailed
		t.task.Err = clienthttp.Detail(err)
	} else {
		t.task.Outcome = model.UploadSuccess
		t.task.BytesSent = stats.BytesDone
	}
	hooks := append([]func(clienthttp.UploadResult){}, t.onSuccess...)
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("upload failed", "task_id", id, "error", err)
	} else {
		t.logger.Info("upload finished", "task_id", id, "file", res.Filename,
			"bytes", progress.FormatBytes(stats.BytesDone), "rate", progress.FormatRate(stats.RateBps))
		for _, fn := range hooks {
			fn(res)
		}
	}
	t.changed()
}

func (t *Tracker) changed() {
	t.mu.Lock()
	fns := append([]func(){}, t.onChange...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Cancel aborts the pending upload. It reports whether there was one.
func (t *Tracker) Cancel() bool {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Snapshot returns a copy of the current or last task; false before the first upload.
func (t *Tracker) Snapshot() (model.UploadTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task := t.task
	if task.ExpireMinutes != nil {
		v := *task.ExpireMinutes
		task.ExpireMinutes = &v
	}
	return task, t.started
}

// Wait blocks until the current upload ends and returns its final state and error.
func (t *Tracker) Wait(ctx context.Context) (model.UploadTask, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return model.UploadTask{}, ctx.Err()
		}
	}
	t.mu.Lock()
	err := t.lastErr
	t.mu.Unlock()
	task, _ := t.Snapshot()
	return task, err
}
