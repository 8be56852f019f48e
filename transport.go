package printdesk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Transport returns an http.RoundTripper that runs every request through
// the client: bearer header, refresh on 401, single replay. Non-success
// statuses come back as responses, as a RoundTripper should; only network
// failures and a forced logout are errors.
func (c *Client) Transport() http.RoundTripper {
	return &roundTripper{client: c}
}

type roundTripper struct {
	client *Client
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: r.Method,
		Path:   r.URL.String(),
		Header: r.Header.Clone(),
		Body:   body,
	}
	resp, err := rt.client.Do(r.Context(), req)
	if err != nil {
		var apiErr *APIError
		var sessionErr *SessionExpiredError
		if errors.As(err, &apiErr) && !errors.As(err, &sessionErr) {
			return toHTTPResponse(r, apiErr.StatusCode, apiErr.Header, apiErr.Body), nil
		}
		return nil, err
	}
	return toHTTPResponse(r, resp.StatusCode, resp.Header, resp.Body), nil
}

// readBody buffers the request body so it can be replayed after a refresh.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if r.GetBody != nil {
		rc, err := r.GetBody()
		if err != nil {
			return nil, fmt.Errorf("copy request body: %w", err)
		}
		defer rc.Close()
		_ = r.Body.Close()
		return io.ReadAll(rc)
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func toHTTPResponse(r *http.Request, status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}
