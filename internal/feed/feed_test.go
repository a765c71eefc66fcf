package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Telestream/srtStreamer/pkg/protocol"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func frame(seq uint64, payload string) protocol.Envelope {
	return protocol.Envelope{V: protocol.ProtocolVersion, Type: protocol.TypeView, MsgID: "m", Seq: seq, Payload: json.RawMessage(payload)}
}

func TestHub_SlowSubscriberGetsNewestOnly(t *testing.T) {
	hub := NewHub()
	gate := make(chan struct{})
	var mu sync.Mutex
	var got []uint64
	first := make(chan struct{})
	var once sync.Once

	remove := hub.Add("c1", func(env protocol.Envelope) error {
		once.Do(func() { close(first) })
		<-gate
		mu.Lock()
		got = append(got, env.Seq)
		mu.Unlock()
		return nil
	}, nil)
	defer remove()

	hub.Publish(frame(1, `1`))
	<-first // writer is now blocked on frame 1
	for seq := uint64(2); seq <= 10; seq++ {
		hub.Publish(frame(seq, `0`))
	}
	close(gate)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		last := uint64(0)
		if n > 0 {
			last = got[n-1]
		}
		mu.Unlock()
		if last == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("newest frame never delivered, got %v", got)
		case <-time.After(10 * time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 {
		t.Fatalf("expected frames [1 10], got %v", got)
	}
}

func TestHub_ReplaysLatestToNewSubscriber(t *testing.T) {
	hub := NewHub()
	hub.Publish(frame(1, `"old"`))
	hub.Publish(frame(2, `"new"`))

	recv := make(chan protocol.Envelope, 4)
	remove := hub.Add("c1", func(env protocol.Envelope) error {
		recv <- env
		return nil
	}, nil)
	defer remove()

	select {
	case env := <-recv:
		if env.Seq != 2 {
			t.Fatalf("expected latest frame, got seq %d", env.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no replay")
	}
	if hub.Count() != 1 {
		t.Fatalf("Count() = %d", hub.Count())
	}
	remove()
	remove()
	if hub.Count() != 0 {
		t.Fatalf("Count() after remove = %d", hub.Count())
	}
}

func TestPublisher_OnlyPublishesChanges(t *testing.T) {
	hub := NewHub()
	value := "a"
	p := NewPublisher(hub, time.Hour, quiet(), Source{Type: protocol.TypeView, Build: func() any { return value }})

	if n := p.Tick(); n != 1 {
		t.Fatalf("first tick published %d", n)
	}
	if n := p.Tick(); n != 0 {
		t.Fatalf("unchanged tick published %d", n)
	}
	value = "b"
	if n := p.Tick(); n != 1 {
		t.Fatalf("changed tick published %d", n)
	}
	env, ok := hub.Latest(protocol.TypeView)
	if !ok || env.Seq != 2 || string(env.Payload) != `"b"` {
		t.Fatalf("unexpected latest %+v", env)
	}
}

func TestServer_EndToEnd(t *testing.T) {
	hub := NewHub()
	srv := NewServer(hub, protocol.Hello{Client: "streamctl", Version: "test", PublishInterval: 250}, quiet())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz error = %v", err)
	}
	var health Health
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if !health.OK || health.Subscribers != 0 {
		t.Fatalf("unexpected health %+v", health)
	}

	resp, err = http.Get(ts.URL + "/view")
	if err != nil {
		t.Fatalf("view error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("view before publish = %d", resp.StatusCode)
	}

	hub.Publish(frame(1, `{"empty":true}`))

	resp, err = http.Get(ts.URL + "/view")
	if err != nil {
		t.Fatalf("view error = %v", err)
	}
	var latest protocol.Envelope
	_ = json.NewDecoder(resp.Body).Decode(&latest)
	resp.Body.Close()
	if latest.Type != protocol.TypeView || latest.Seq != 1 {
		t.Fatalf("unexpected latest view %+v", latest)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", quiet())
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer conn.Close()

	var types []string
	subscribers := -1
	err = conn.ReadLoop(ctx, func(env protocol.Envelope) {
		types = append(types, env.Type)
		if env.Type == protocol.TypeView {
			// the view is replayed after registration, so the hub counts us now
			if resp, err := http.Get(ts.URL + "/healthz"); err == nil {
				var h Health
				_ = json.NewDecoder(resp.Body).Decode(&h)
				resp.Body.Close()
				subscribers = h.Subscribers
			}
			cancel()
		}
	})
	if err != context.Canceled {
		t.Fatalf("ReadLoop error = %v", err)
	}
	if len(types) < 2 || types[0] != protocol.TypeHello || types[len(types)-1] != protocol.TypeView {
		t.Fatalf("unexpected message order %v", types)
	}
	if subscribers != 1 {
		t.Fatalf("expected the open subscriber to be counted, got %d", subscribers)
	}
}
