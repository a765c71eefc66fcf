package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Telestream/srtStreamer/pkg/protocol"
)

// DefaultInterval is how often sources are sampled.
const DefaultInterval = 250 * time.Millisecond

// Source produces the current payload of one message type.
type Source struct {
	Type  string
	Build func() any
}

// Publisher samples its sources on a ticker and publishes a payload only when
// its JSON differs from the previous one.
type Publisher struct {
	hub      *Hub
	interval time.Duration
	sources  []Source
	logger   *slog.Logger

	mu   sync.Mutex
	seq  uint64
	last map[string][]byte
}

func NewPublisher(hub *Hub, interval time.Duration, logger *slog.Logger, sources ...Source) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		hub:      hub,
		interval: interval,
		sources:  sources,
		logger:   logger,
		last:     make(map[string][]byte),
	}
}

// Tick samples every source once and returns how many envelopes were published.
func (p *Publisher) Tick() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	published := 0
	for _, src := range p.sources {
		b, err := json.Marshal(src.Build())
		if err != nil {
			p.logger.Warn("feed payload encode failed", "type", src.Type, "error", err)
			continue
		}
		if bytes.Equal(b, p.last[src.Type]) {
			continue
		}
		p.last[src.Type] = b
		p.seq++
		p.hub.Publish(protocol.Envelope{
			V:       protocol.ProtocolVersion,
			Type:    src.Type,
			MsgID:   protocol.NewMsgID(),
			Seq:     p.seq,
			Payload: b,
		})
		published++
	}
	return published
}

// Run ticks until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}
