// Package poller keeps the shared state in step with the service: a directory
// poller for the stream list and a bandwidth poller fanning out per stream.
package poller

import (
	"context"

	"github.com/Telestream/srtStreamer/internal/model"
)

// Session is the part of the session store the pollers consult.
type Session interface {
	IsValid() bool
	Generation() uint64
	ValidAt(gen uint64) bool
}

// DirectorySource fetches the authoritative stream list.
type DirectorySource interface {
	ActiveStreams(ctx context.Context) ([]model.StreamRecord, error)
}

// BandwidthSource fetches the latest rates of one stream.
type BandwidthSource interface {
	Bandwidth(ctx context.Context, streamID string) (model.Bandwidth, error)
}
