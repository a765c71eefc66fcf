package clienthttp

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Telestream/srtStreamer/internal/model"
)

// Login exchanges basic credentials for an API key. It does not touch the session store.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/login", nil), nil)
	if err != nil {
		return LoginResult{}, err
	}
	req.SetBasicAuth(username, password)

	var out LoginResult
	if err := c.send(c.hc, req, false, &out); err != nil {
		return LoginResult{}, err
	}
	if out.APIKey == "" {
		return LoginResult{}, &ServerError{Status: http.StatusOK, Detail: "login response has no api_key"}
	}
	return out, nil
}

// Health probes GET /healthcheck, which needs no credential.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/healthcheck", nil), nil)
	if err != nil {
		return err
	}
	return c.send(c.hc, req, false, nil)
}

// ActiveStreams returns the directory in server order.
func (c *Client) ActiveStreams(ctx context.Context) ([]model.StreamRecord, error) {
	var resp activeStreamsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/active-streams", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.StreamRecord, 0, len(resp.ActiveStreams))
	for _, w := range resp.ActiveStreams {
		if w.StreamID == "" {
			continue
		}
		out = append(out, w.toRecord())
	}
	return out, nil
}

// Bandwidth returns the latest per-destination rates of one stream.
// A stream without samples yet yields a 404 ServerError (see IsNotFound).
func (c *Client) Bandwidth(ctx context.Context, streamID string) (model.Bandwidth, error) {
	var resp bandwidthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/bandwidth/"+url.PathEscape(streamID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Bandwidth == nil {
		return model.Bandwidth{}, nil
	}
	return model.Bandwidth(resp.Bandwidth), nil
}

func (c *Client) StartStream(ctx context.Context, in StartRequest) (StartResult, error) {
	if in.InputType == "" {
		in.InputType = "file"
	}
	var out StartResult
	if err := c.doJSON(ctx, http.MethodPost, "/start-stream", in, &out); err != nil {
		return StartResult{}, err
	}
	return out, nil
}

func (c *Client) StopStream(ctx context.Context, streamID string) error {
	return c.doJSON(ctx, http.MethodPost, "/stop-stream/"+url.PathEscape(streamID), nil, nil)
}

func (c *Client) StopRandomSource(ctx context.Context, streamID string) (StopSourceResult, error) {
	var out StopSourceResult
	if err := c.doJSON(ctx, http.MethodPost, "/stop-random-source/"+url.PathEscape(streamID), nil, &out); err != nil {
		return StopSourceResult{}, err
	}
	return out, nil
}

// Files lists the media catalog.
func (c *Client) Files(ctx context.Context) ([]string, error) {
	var resp filesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/files", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Files == nil {
		return []string{}, nil
	}
	return resp.Files, nil
}
