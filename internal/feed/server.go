package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Telestream/srtStreamer/pkg/protocol"
)

const (
	readLimit   = 4096
	idleTimeout = 90 * time.Second
	pingEvery   = 30 * time.Second
	writeWait   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // observers are read-only
	},
}

// Server exposes the hub over websocket.
type Server struct {
	hub    *Hub
	hello  protocol.Hello
	logger *slog.Logger
}

func NewServer(hub *Hub, hello protocol.Hello, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{hub: hub, hello: hello, logger: logger}
}

// Health is the /healthz body.
type Health struct {
	OK          bool `json:"ok"`
	Subscribers int  `json:"subscribers"`
}

// Handler serves /ws, /healthz and /view. /view returns the latest view
// envelope for observers that only poll.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Health{OK: true, Subscribers: s.hub.Count()})
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		env, ok := s.hub.Latest(protocol.TypeView)
		if !ok {
			http.Error(w, "no view published yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(env)
	})
	return mux
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("feed listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	var writeMu sync.Mutex
	send := func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(env)
	}

	hello, err := protocol.NewEnvelope(protocol.TypeHello, protocol.NewMsgID(), s.hello)
	if err != nil {
		s.logger.Error("failed to create hello envelope", "error", err)
		return
	}
	if err := send(hello); err != nil {
		return
	}

	connID := protocol.NewMsgID()
	remove := s.hub.Add(connID, send, func() { _ = conn.Close() })
	defer remove()
	s.logger.Info("feed subscriber connected", "conn_id", connID, "remote", r.RemoteAddr)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
			}
		}
	}()

	// subscribers never send anything meaningful; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("feed read error", "conn_id", connID, "error", err)
			}
			break
		}
	}
	s.logger.Info("feed subscriber left", "conn_id", connID)
}
