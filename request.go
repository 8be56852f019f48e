package printdesk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	headerUserAgent     = "User-Agent"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"

	contentTypeJSON = "application/json"
)

// Request is one outgoing call. Path is resolved against Config.BaseURL
// unless it is already an absolute URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// retried is set once the request has taken part in a refresh cycle; a
	// later 401 is surfaced instead of refreshing again.
	retried bool
	// sentToken is the access token attached to the most recent attempt.
	sentToken string
}

// NewRequest builds a Request with an empty header set.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   body,
	}
}

// Response is a 2xx or 3xx reply, returned verbatim.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *Request) clone() *Request {
	out := *r
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	out.retried = false
	out.sentToken = ""
	return &out
}

func resolveURL(base *url.URL, path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	var u url.URL
	if ref.IsAbs() {
		u = *ref
	} else {
		if base == nil {
			return nil, fmt.Errorf("%w: relative path %q without base url", ErrInvalidURL, path)
		}
		u = *base
		u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		u.RawPath = ""
		u.RawQuery = ref.RawQuery
		u.Fragment = ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return &u, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 400
}

func bearer(token string) string {
	return "Bearer " + token
}

var errNilRequest = errors.New("nil request")
