// Package quictransport builds the HTTP/3 round tripper used with --http3.
package quictransport

import (
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// ClientTLSConfig returns the TLS configuration for HTTP/3 requests.
func ClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: insecure, //nolint:gosec
		NextProtos:         []string{http3.NextProtoH3},
		MinVersion:         tls.VersionTLS13,
	}
}

// ClientQUICConfig is tuned for small JSON calls plus the occasional upload.
// The keep-alive stays below the idle timeout so polling every second never
// has to re-handshake.
func ClientQUICConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout:           5 * time.Second,
		KeepAlivePeriod:                10 * time.Second,
		MaxIdleTimeout:                 30 * time.Second,
		InitialConnectionReceiveWindow: 1 * 1024 * 1024,
		MaxConnectionReceiveWindow:     8 * 1024 * 1024,
		InitialStreamReceiveWindow:     512 * 1024,
		MaxStreamReceiveWindow:         4 * 1024 * 1024,
	}
}

// NewTransport returns an HTTP/3 round tripper. Close it to release the UDP socket.
func NewTransport(insecure bool) *http3.RoundTripper {
	return &http3.RoundTripper{
		TLSClientConfig: ClientTLSConfig(insecure),
		QUICConfig:      ClientQUICConfig(),
	}
}
