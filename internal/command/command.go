package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Telestream/srtStreamer/internal/appstate"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
)

// Client is the subset of the service client used for commands.
type Client interface {
	StartStream(ctx context.Context, req clienthttp.StartRequest) (clienthttp.StartResult, error)
	StopStream(ctx context.Context, streamID string) error
	StopRandomSource(ctx context.Context, streamID string) (clienthttp.StopSourceResult, error)
}

// Refresher schedules an out-of-band directory refresh.
type Refresher interface {
	RequestRefresh()
}

// Source selects the media for a new stream: a catalog file or a random pick by the service.
type Source struct {
	name string
}

// Random lets the service choose a file.
var Random = Source{}

func File(name string) Source {
	return Source{name: strings.TrimSpace(name)}
}

func (s Source) IsRandom() bool { return s.name == "" }
func (s Source) Name() string   { return s.name }

func (s Source) String() string {
	if s.IsRandom() {
		return "random"
	}
	return s.name
}

// StartInput is what the user filled in to start a stream. Duration and
// StartOffset are seconds.
type StartInput struct {
	Source      Source
	Duration    int
	Primary     string
	Secondary   string
	Redundant   bool
	StartOffset int
}

// Validate rejects input that must never reach the service.
func (in StartInput) Validate() error {
	if in.Duration <= 0 {
		return &clienthttp.ValidationError{Field: "duration", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(in.Primary) == "" {
		return &clienthttp.ValidationError{Field: "primary destination", Reason: "required"}
	}
	if in.StartOffset < 0 {
		return &clienthttp.ValidationError{Field: "start offset", Reason: "must not be negative"}
	}
	if in.Redundant && strings.TrimSpace(in.Secondary) == "" {
		return &clienthttp.ValidationError{Field: "secondary destination", Reason: "required for redundant streams"}
	}
	return nil
}

// Request builds the wire body. The secondary destination is only sent for redundant streams.
func (in StartInput) Request() clienthttp.StartRequest {
	dests := []string{strings.TrimSpace(in.Primary)}
	if in.Redundant {
		dests = append(dests, strings.TrimSpace(in.Secondary))
	}
	req := clienthttp.StartRequest{
		InputType:   "file",
		Duration:    in.Duration,
		Destination: dests,
		StartOffset: in.StartOffset,
		Redundant:   in.Redundant,
	}
	if !in.Source.IsRandom() {
		name := in.Source.Name()
		req.File = &name
	}
	return req
}

// Dispatcher turns user intents into single requests. There is no retry.
type Dispatcher struct {
	client    Client
	state     *appstate.State
	refresher Refresher
	logger    *slog.Logger
}

func NewDispatcher(client Client, state *appstate.State, refresher Refresher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, state: state, refresher: refresher, logger: logger}
}

func (d *Dispatcher) StartStream(ctx context.Context, in StartInput) (clienthttp.StartResult, error) {
	if err := in.Validate(); err != nil {
		return clienthttp.StartResult{}, err
	}
	ctx, reqID := tag(ctx)
	d.logger.Info("start stream", "request_id", reqID, "file", in.Source.String(), "duration", in.Duration,
		"redundant", in.Redundant, "start_offset", in.StartOffset)

	res, err := d.client.StartStream(ctx, in.Request())
	if err != nil {
		d.logger.Warn("start stream failed", "request_id", reqID, "error", err)
		return clienthttp.StartResult{}, err
	}
	d.logger.Info("stream started", "request_id", reqID, "stream_id", res.StreamID, "file", res.File)
	d.refresh()
	return res, nil
}

// StopStream shows the stream as stopping right away. On failure the marker
// stays until the next directory replacement.
func (d *Dispatcher) StopStream(ctx context.Context, streamID string) error {
	if strings.TrimSpace(streamID) == "" {
		return &clienthttp.ValidationError{Field: "stream id", Reason: "required"}
	}
	d.state.MarkStopping(streamID)

	ctx, reqID := tag(ctx)
	d.logger.Info("stop stream", "request_id", reqID, "stream_id", streamID)
	if err := d.client.StopStream(ctx, streamID); err != nil {
		d.logger.Warn("stop stream failed", "request_id", reqID, "stream_id", streamID, "error", err)
		return err
	}
	d.refresh()
	return nil
}

// StopRandomSource disables one destination of a redundant stream.
func (d *Dispatcher) StopRandomSource(ctx context.Context, streamID string) (clienthttp.StopSourceResult, error) {
	if strings.TrimSpace(streamID) == "" {
		return clienthttp.StopSourceResult{}, &clienthttp.ValidationError{Field: "stream id", Reason: "required"}
	}
	if rec, ok := d.state.Stream(streamID); ok && !rec.Redundant {
		return clienthttp.StopSourceResult{}, &clienthttp.ValidationError{Field: "stream", Reason: "not redundant"}
	}

	ctx, reqID := tag(ctx)
	d.logger.Info("stop random source", "request_id", reqID, "stream_id", streamID)
	res, err := d.client.StopRandomSource(ctx, streamID)
	if err != nil {
		d.logger.Warn("stop random source failed", "request_id", reqID, "stream_id", streamID, "error", err)
		return clienthttp.StopSourceResult{}, err
	}
	d.logger.Info("source stopped", "request_id", reqID, "stream_id", streamID, "status", res.Status,
		"remaining", len(res.RemainingDestinations))
	d.refresh()
	return res, nil
}

func (d *Dispatcher) refresh() {
	if d.refresher != nil {
		d.refresher.RequestRefresh()
	}
}

func tag(ctx context.Context) (context.Context, string) {
	id := clienthttp.NewRequestID()
	return clienthttp.WithRequestID(ctx, id), id
}
