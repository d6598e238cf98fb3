package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/todo-sync/internal/backend"
)

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// auth sends the bearer token. A call that needs it fails with
	// backend.ErrSessionMissing while signed out.
	auth bool
}

// do builds the request, retries on HTTP 429 with backoff and decodes the
// JSON response into result. Non-2xx responses are returned as
// *backend.Error.
func (c *Client) do(ctx context.Context, req request, result interface{}) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var token string
	if req.auth {
		token = c.token()
		if token == "" {
			return backend.ErrSessionMissing
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, u, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("executing request %s %s: %w", req.method, req.path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", req.method, req.path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		// Redirects are not followed; a *string result receives Location.
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			if loc, ok := result.(*string); ok {
				*loc = resp.Header.Get("Location")
				return nil
			}
			return fmt.Errorf("unexpected redirect on %s %s", req.method, req.path)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeError(resp.StatusCode, respBody)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", req.method, req.path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// decodeError turns an error response into *backend.Error, keeping the
// server's code and message when the body carries them.
func decodeError(status int, body []byte) error {
	var be backend.Error
	if json.Unmarshal(body, &be) == nil && be.Message != "" {
		be.Status = status
		return &be
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return backend.Errorf(status, backend.CodeInternal, msg)
}

// retryAfterDuration reads the Retry-After header and falls back to
// exponential backoff capped at 30s.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
