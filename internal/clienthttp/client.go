package clienthttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Telestream/srtStreamer/internal/quictransport"
)

const (
	headerAPIKey    = "x-api-key"
	headerUploadKey = "api-key"
	headerRequestID = "X-Request-ID"
)

// Credentials is the view of the session store the client needs.
// Clear is called when the service rejects the credential.
type Credentials interface {
	Credential() (string, bool)
	Clear() error
}

type ClientOptions struct {
	BaseURL   string
	Insecure  bool
	HTTP3     bool
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
	// Transport overrides the round tripper (tests).
	Transport http.RoundTripper
}

// Client talks to the streaming service. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	hc        *http.Client
	uploads   *http.Client
	creds     Credentials
	userAgent string
	logger    *slog.Logger
}

func NewClient(opt ClientOptions, creds Credentials) (*Client, error) {
	if strings.TrimSpace(opt.BaseURL) == "" {
		return nil, errors.New("base url is required")
	}
	raw := opt.BaseURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("invalid base url")
	}
	if opt.HTTP3 && !strings.EqualFold(u.Scheme, "https") {
		return nil, errors.New("http3 requires an https base url")
	}

	rt := opt.Transport
	if rt == nil {
		if opt.HTTP3 {
			rt = quictransport.NewTransport(opt.Insecure)
		} else {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: opt.Insecure} //nolint:gosec
			rt = t
		}
	}

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ua := opt.UserAgent
	if ua == "" {
		ua = "streamctl"
	}

	return &Client{
		baseURL: u,
		hc:      &http.Client{Transport: rt, Timeout: timeout},
		// uploads may run for minutes; they are bounded by their context only
		uploads:   &http.Client{Transport: rt},
		creds:     creds,
		userAgent: ua,
		logger:    logger,
	}, nil
}

type requestIDKey struct{}

// WithRequestID tags commands sent with ctx so the service logs can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewRequestID returns a fresh id for WithRequestID.
func NewRequestID() string {
	return uuid.NewString()
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// credential returns the API key or ErrNotAuthenticated.
func (c *Client) credential() (string, error) {
	if c.creds == nil {
		return "", ErrNotAuthenticated
	}
	key, ok := c.creds.Credential()
	if !ok {
		return "", ErrNotAuthenticated
	}
	return key, nil
}

// doJSON sends an authenticated request and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	key, err := c.credential()
	if err != nil {
		return err
	}
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set(headerAPIKey, key)
	return c.send(c.hc, req, true, out)
}

// send runs req and maps the outcome onto the error taxonomy.
// When authed, a 401 or 403 clears the session.
func (c *Client) send(hc *http.Client, req *http.Request, authed bool, out any) error {
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", c.userAgent)
	if id := requestIDFrom(req.Context()); id != "" {
		req.Header.Set(headerRequestID, id)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return &NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("request done", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readDetail(resp)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if authed && c.creds != nil {
				if err := c.creds.Clear(); err != nil {
					c.logger.Warn("clear session failed", "error", err)
				}
			}
			return &AuthError{Status: resp.StatusCode, Detail: detail}
		}
		return &ServerError{Status: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &NetworkError{Op: "read " + req.URL.Path, Err: err}
		}
		return &ServerError{Status: resp.StatusCode, Detail: "parse response: " + err.Error()}
	}
	return nil
}

// readDetail extracts {"detail": ...} from an error body, falling back to the status line.
func readDetail(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(b, &er); err == nil {
		if len(er.Detail) > 0 {
			var s string
			if json.Unmarshal(er.Detail, &s) == nil && s != "" {
				return s
			}
			return string(er.Detail)
		}
		if er.Error != "" {
			return er.Error
		}
	}
	if text := strings.TrimSpace(string(b)); text != "" && len(text) < 200 {
		return text
	}
	return resp.Status
}
