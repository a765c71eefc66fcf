package clienthttp

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// UploadRequest describes one multipart upload. Progress, when set, is called
// with the cumulative number of body bytes handed to the transport.
type UploadRequest struct {
	FileName      string
	Body          io.Reader
	ExpireMinutes *int
	Progress      func(sent int64)
}

// Upload streams a file to POST /upload without buffering it in memory.
func (c *Client) Upload(ctx context.Context, in UploadRequest) (UploadResult, error) {
	key, err := c.credential()
	if err != nil {
		return UploadResult{}, err
	}

	var query url.Values
	if in.ExpireMinutes != nil {
		query = url.Values{"expire_time": {strconv.Itoa(*in.ExpireMinutes)}}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", in.FileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := in.Body
		if in.Progress != nil {
			src = &countingReader{r: in.Body, fn: in.Progress}
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload", query), pr)
	if err != nil {
		pr.CloseWithError(err)
		return UploadResult{}, err
	}
	req.Header.Set("content-type", mw.FormDataContentType())
	req.Header.Set(headerUploadKey, key)

	var out UploadResult
	err = c.send(c.uploads, req, true, &out)
	// unblock the writer goroutine if the transport gave up early
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

type countingReader struct {
	r  io.Reader
	n  int64
	fn func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.fn(c.n)
	}
	return n, err
}
