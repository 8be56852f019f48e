package printdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const maxRefreshBody = 1 << 20

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// exchange trades refresh for a new access token. The call goes straight to
// the base client: no bearer header, no coordinator.
func (c *Client) exchange(ctx context.Context, refresh string) (access, rotated string, err error) {
	payload, err := json.Marshal(refreshRequest{Refresh: refresh})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL.String(), bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.config.HTTP.UserAgent != "" {
		req.Header.Set(headerUserAgent, c.config.HTTP.UserAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("refresh exchange: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxRefreshBody))
	if err != nil {
		return "", "", fmt.Errorf("refresh exchange: read body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", "", fmt.Errorf("%w: %w", ErrRefreshRejected, newAPIError(res.StatusCode, res.Header, body))
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrRefreshMalformed, err)
	}
	if out.Access == "" {
		return "", "", fmt.Errorf("%w: missing access token", ErrRefreshMalformed)
	}
	return out.Access, out.Refresh, nil
}
