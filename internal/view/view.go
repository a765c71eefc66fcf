package view

import (
	"fmt"
	"math"

	"github.com/Telestream/srtStreamer/internal/model"
	"github.com/Telestream/srtStreamer/internal/progress"
)

const (
	EmptyText       = "No active streams available."
	NoSample        = "n/a"
	uploadBarWidth  = 24
	stoppingLabel   = "Stopping..."
	downloadingText = "Downloading file..."
)

// Input is everything a frame is computed from.
type Input struct {
	Streams   []model.StreamRecord
	Bandwidth map[string]model.Bandwidth
	Upload    *model.UploadTask
}

// View is a rendered frame. It is plain data so it can be compared and sent as JSON.
type View struct {
	Empty  bool        `json:"empty"`
	Cards  []Card      `json:"cards"`
	Upload *UploadLine `json:"upload,omitempty"`
}

type Card struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Kind             string            `json:"kind"`
	Delay            string            `json:"delay,omitempty"`
	Redundant        bool              `json:"redundant"`
	Destinations     []DestinationLine `json:"destinations"`
	File             string            `json:"file"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	Error            string            `json:"error,omitempty"`
	CanStop          bool              `json:"can_stop"`
	CanStopSource    bool              `json:"can_stop_source"`
}

type DestinationLine struct {
	URL       string `json:"url"`
	Bandwidth string `json:"bandwidth"`
}

type UploadLine struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	Bar      string `json:"bar"`
	Percent  int    `json:"percent"`
	Outcome  string `json:"outcome"`
	Detail   string `json:"detail,omitempty"`
}

// Render computes a frame. It never mutates in and has no other inputs.
func Render(in Input) View {
	v := View{Empty: len(in.Streams) == 0, Cards: make([]Card, 0, len(in.Streams))}
	for _, r := range in.Streams {
		v.Cards = append(v.Cards, renderCard(r, in.Bandwidth[r.ID]))
	}
	if in.Upload != nil {
		v.Upload = renderUpload(*in.Upload)
	}
	return v
}

func renderCard(r model.StreamRecord, samples model.Bandwidth) Card {
	c := Card{
		ID:               r.ID,
		Status:           statusText(r.Status),
		Kind:             r.Status.Kind.String(),
		Delay:            delayText(r.Status),
		Redundant:        r.Redundant,
		Destinations:     make([]DestinationLine, 0, len(r.Destinations)),
		File:             r.File,
		RemainingSeconds: int64(math.Floor(math.Max(r.RemainingDuration, 0))),
		CanStop:          r.Status.Kind != model.StatusStopping,
		CanStopSource:    r.Redundant && r.Status.Kind != model.StatusStopping,
	}
	for _, dest := range r.Destinations {
		c.Destinations = append(c.Destinations, DestinationLine{URL: dest, Bandwidth: bandwidthText(samples, dest)})
	}
	if r.Status.Kind == model.StatusError {
		c.Error = "Error: " + r.Status.Message
	}
	return c
}

func statusText(s model.Status) string {
	switch s.Kind {
	case model.StatusStopping:
		return stoppingLabel
	case model.StatusError:
		return "Error"
	}
	if s.Label == "" {
		return "Unknown"
	}
	return s.Label
}

func delayText(s model.Status) string {
	switch s.Kind {
	case model.StatusScheduled:
		return "Starting at: " + s.ScheduledAt
	case model.StatusDownloading:
		return downloadingText
	case model.StatusRunning:
		if s.RemainingDelay > 0 {
			return fmt.Sprintf("Starting in: %d seconds", int64(math.Floor(s.RemainingDelay)))
		}
	}
	return ""
}

func bandwidthText(samples model.Bandwidth, dest string) string {
	rate, ok := samples[dest]
	if !ok || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return NoSample
	}
	return fmt.Sprintf("%.2f Mbps", rate)
}

func renderUpload(t model.UploadTask) *UploadLine {
	frac := t.Fraction()
	line := &UploadLine{
		ID:       t.ID,
		FileName: t.FileName,
		Bar:      progress.Bar(frac, uploadBarWidth),
		Percent:  int(math.Floor(frac * 100)),
		Outcome:  t.Outcome.String(),
	}
	switch t.Outcome {
	case model.UploadFailed:
		line.Detail = t.Err
	case model.UploadPending:
		if t.RateBps > 0 {
			line.Detail = progress.FormatRate(t.RateBps)
		}
	}
	return line
}
