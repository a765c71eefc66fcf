package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/Telestream/srtStreamer/internal/appstate"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
	"github.com/Telestream/srtStreamer/internal/model"
	"github.com/Telestream/srtStreamer/internal/view"
)

type fakeClient struct {
	startReq  clienthttp.StartRequest
	startErr  error
	stopErr   error
	calls     atomic.Int32
	onStop    func()
	sourceRes clienthttp.StopSourceResult
}

func (f *fakeClient) StartStream(ctx context.Context, req clienthttp.StartRequest) (clienthttp.StartResult, error) {
	f.calls.Add(1)
	f.startReq = req
	if f.startErr != nil {
		return clienthttp.StartResult{}, f.startErr
	}
	return clienthttp.StartResult{Status: "success", StreamID: "new-1"}, nil
}

func (f *fakeClient) StopStream(ctx context.Context, id string) error {
	f.calls.Add(1)
	if f.onStop != nil {
		f.onStop()
	}
	return f.stopErr
}

func (f *fakeClient) StopRandomSource(ctx context.Context, id string) (clienthttp.StopSourceResult, error) {
	f.calls.Add(1)
	return f.sourceRes, nil
}

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) RequestRefresh() { c.n.Add(1) }

func newTestDispatcher(c Client, st *appstate.State, r Refresher) *Dispatcher {
	return NewDispatcher(c, st, r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStartInput_Validate(t *testing.T) {
	cases := []struct {
		name  string
		in    StartInput
		field string
	}{
		{"zero duration", StartInput{Primary: "rtmp://a"}, "duration"},
		{"no primary", StartInput{Duration: 10, Primary: "  "}, "primary destination"},
		{"negative offset", StartInput{Duration: 10, Primary: "rtmp://a", StartOffset: -1}, "start offset"},
		{"redundant without secondary", StartInput{Duration: 10, Primary: "rtmp://a", Redundant: true}, "secondary destination"},
	}
	for _, tc := range cases {
		err := tc.in.Validate()
		var ve *clienthttp.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Field != tc.field {
			t.Errorf("%s: field = %q, want %q", tc.name, ve.Field, tc.field)
		}
	}
	if err := (StartInput{Duration: 10, Primary: "rtmp://a"}).Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestStartStream_RedundantDestinations(t *testing.T) {
	fc := &fakeClient{}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, appstate.New(), ref)

	res, err := d.StartStream(context.Background(), StartInput{
		Source:    File("clip.mp4"),
		Duration:  60,
		Primary:   "rtmp://a",
		Secondary: "rtmp://b",
		Redundant: true,
	})
	if err != nil {
		t.Fatalf("StartStream error = %v", err)
	}
	if res.StreamID != "new-1" {
		t.Errorf("stream id = %q", res.StreamID)
	}
	if !reflect.DeepEqual(fc.startReq.Destination, []string{"rtmp://a", "rtmp://b"}) {
		t.Errorf("destination = %v", fc.startReq.Destination)
	}
	if fc.startReq.File == nil || *fc.startReq.File != "clip.mp4" || fc.startReq.InputType != "file" {
		t.Errorf("unexpected request %+v", fc.startReq)
	}
	if ref.n.Load() != 1 {
		t.Errorf("expected one refresh, got %d", ref.n.Load())
	}
}

func TestStartStream_SecondaryOnlyWhenRedundant(t *testing.T) {
	fc := &fakeClient{}
	d := newTestDispatcher(fc, appstate.New(), &countingRefresher{})
	_, err := d.StartStream(context.Background(), StartInput{
		Source:    Random,
		Duration:  30,
		Primary:   "rtmp://a",
		Secondary: "rtmp://b",
	})
	if err != nil {
		t.Fatalf("StartStream error = %v", err)
	}
	if !reflect.DeepEqual(fc.startReq.Destination, []string{"rtmp://a"}) {
		t.Errorf("destination = %v", fc.startReq.Destination)
	}
	if fc.startReq.File != nil {
		t.Errorf("random source should send null file")
	}
}

func TestStartStream_ValidationSendsNothing(t *testing.T) {
	fc := &fakeClient{}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, appstate.New(), ref)
	if _, err := d.StartStream(context.Background(), StartInput{Primary: "rtmp://a"}); err == nil {
		t.Fatal("expected validation error")
	}
	if fc.calls.Load() != 0 || ref.n.Load() != 0 {
		t.Fatal("invalid input must not reach the client")
	}
}

func TestStartStream_FailureDoesNotRefresh(t *testing.T) {
	fc := &fakeClient{startErr: &clienthttp.ServerError{Status: 429, Detail: "Max streams reached"}}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, appstate.New(), ref)
	_, err := d.StartStream(context.Background(), StartInput{Duration: 1, Primary: "rtmp://a"})
	var se *clienthttp.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if ref.n.Load() != 0 {
		t.Fatal("failed start must not refresh")
	}
}

func TestStopStream_StoppingVisibleBeforeResponse(t *testing.T) {
	st := appstate.New()
	st.ReplaceStreams(st.NextSeq(), []model.StreamRecord{{ID: "s1", Status: model.Running("Streaming", 0)}})

	var seen string
	fc := &fakeClient{onStop: func() {
		snap := st.Snapshot()
		seen = view.Render(view.Input{Streams: snap.Streams}).Cards[0].Status
	}}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, st, ref)

	if err := d.StopStream(context.Background(), "s1"); err != nil {
		t.Fatalf("StopStream error = %v", err)
	}
	if seen != "Stopping..." {
		t.Fatalf("status while request in flight = %q", seen)
	}
	if ref.n.Load() != 1 {
		t.Fatal("expected refresh after stop")
	}
}

func TestStopStream_FailureKeepsStopping(t *testing.T) {
	st := appstate.New()
	st.ReplaceStreams(st.NextSeq(), []model.StreamRecord{{ID: "s1", Status: model.Running("Streaming", 0)}})
	fc := &fakeClient{stopErr: &clienthttp.ServerError{Status: 404, Detail: "Stream not found"}}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, st, ref)

	if err := d.StopStream(context.Background(), "s1"); err == nil {
		t.Fatal("expected error")
	}
	if st.Snapshot().Streams[0].Status.Kind != model.StatusStopping {
		t.Fatal("Stopping should remain until the next directory")
	}
	if ref.n.Load() != 0 {
		t.Fatal("failed stop must not refresh")
	}
}

func TestStopRandomSource_RejectsNonRedundant(t *testing.T) {
	st := appstate.New()
	st.ReplaceStreams(st.NextSeq(), []model.StreamRecord{
		{ID: "single", Status: model.Running("Streaming", 0)},
		{ID: "pair", Status: model.Running("Streaming", 0), Redundant: true},
	})
	fc := &fakeClient{sourceRes: clienthttp.StopSourceResult{Status: "one source stopped", RemainingDestinations: []string{"b"}}}
	ref := &countingRefresher{}
	d := newTestDispatcher(fc, st, ref)

	_, err := d.StopRandomSource(context.Background(), "single")
	var ve *clienthttp.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fc.calls.Load() != 0 {
		t.Fatal("rejected command must not be sent")
	}

	res, err := d.StopRandomSource(context.Background(), "pair")
	if err != nil {
		t.Fatalf("StopRandomSource error = %v", err)
	}
	if res.Status != "one source stopped" || ref.n.Load() != 1 {
		t.Fatalf("unexpected result %+v refreshes=%d", res, ref.n.Load())
	}
}
