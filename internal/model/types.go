package model

import "slices"

// StatusKind discriminates the StreamStatus variants.
type StatusKind int

const (
	StatusRunning StatusKind = iota
	StatusScheduled
	StatusDownloading
	StatusError
	// StatusStopping is client-local: the service never reports it.
	StatusStopping
)

func (k StatusKind) String() string {
	switch k {
	case StatusScheduled:
		return "scheduled"
	case StatusDownloading:
		return "downloading"
	case StatusError:
		return "error"
	case StatusStopping:
		return "stopping"
	default:
		return "running"
	}
}

// Status is the tagged StreamStatus. Only the fields of the active Kind are meaningful:
// ScheduledAt for Scheduled, Label and RemainingDelay for Running, Message for Error.
type Status struct {
	Kind           StatusKind
	Label          string
	ScheduledAt    string
	RemainingDelay float64
	Message        string
}

func Scheduled(at string) Status {
	return Status{Kind: StatusScheduled, Label: "Scheduled", ScheduledAt: at}
}

func Downloading() Status {
	return Status{Kind: StatusDownloading, Label: "Downloading"}
}

// Running covers every server state that is neither scheduled, downloading nor failed
// ("Streaming", "Downloaded", ...). label keeps the server's word for display.
func Running(label string, remainingDelay float64) Status {
	if remainingDelay < 0 {
		remainingDelay = 0
	}
	return Status{Kind: StatusRunning, Label: label, RemainingDelay: remainingDelay}
}

func Errored(message string) Status {
	return Status{Kind: StatusError, Label: "Error", Message: message}
}

func Stopping() Status {
	return Status{Kind: StatusStopping, Label: "Stopping..."}
}

// StreamRecord is one active stream as reported by the service.
type StreamRecord struct {
	ID                string
	File              string
	Status            Status
	Destinations      []string
	RemainingDuration float64
	Redundant         bool
}

// Clone returns a deep copy so callers never share the destinations slice.
func (r StreamRecord) Clone() StreamRecord {
	r.Destinations = slices.Clone(r.Destinations)
	return r
}

// CloneRecords deep-copies a record list, preserving order.
func CloneRecords(in []StreamRecord) []StreamRecord {
	if in == nil {
		return nil
	}
	out := make([]StreamRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// Bandwidth maps destination to the latest rate in Mbps.
type Bandwidth map[string]float64

// Clone returns a copy of b.
func (b Bandwidth) Clone() Bandwidth {
	if b == nil {
		return nil
	}
	out := make(Bandwidth, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// UploadOutcome is the lifecycle state of an upload task.
type UploadOutcome int

const (
	UploadPending UploadOutcome = iota
	UploadSuccess
	UploadFailed
)

func (o UploadOutcome) String() string {
	switch o {
	case UploadSuccess:
		return "success"
	case UploadFailed:
		return "failed"
	default:
		return "pending"
	}
}

// UploadTask is an immutable snapshot of the single upload slot.
type UploadTask struct {
	ID            string
	FileName      string
	ExpireMinutes *int
	BytesSent     int64
	BytesTotal    int64
	RateBps       float64
	Outcome       UploadOutcome
	Err           string
}

// Fraction returns progress in [0,1].
func (t UploadTask) Fraction() float64 {
	if t.BytesTotal <= 0 {
		if t.Outcome == UploadSuccess {
			return 1
		}
		return 0
	}
	f := float64(t.BytesSent) / float64(t.BytesTotal)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
