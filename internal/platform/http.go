package platform

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

	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/ratelimit"
)

// Requester sends platform requests through the platform's limiter with a hard timeout
type Requester struct {
	platform string
	cfg      Config
}

// NewRequester creates a requester for the named platform
func NewRequester(platform string, cfg Config) *Requester {
	return &Requester{platform: platform, cfg: cfg}
}

// Config returns the requester's effective configuration
func (r *Requester) Config() Config {
	return r.cfg
}

// Do admits the request through the limiter, sends it and returns the body of a 2xx
// response. Non-2xx responses become *APIError with the body text.
func (r *Requester) Do(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return ratelimit.Schedule(ctx, r.cfg.Limiter, func(ctx context.Context) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", op, err)
		}
		req.Header.Set("User-Agent", r.cfg.UserAgent)

		resp, err := r.cfg.HTTPClient.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(r.platform, "error").Inc()
			return nil, fmt.Errorf("%s %s request failed: %w", r.platform, op, err)
		}
		defer resp.Body.Close()

		metrics.UpstreamRequests.WithLabelValues(r.platform, strconv.Itoa(resp.StatusCode)).Inc()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", op, err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, &APIError{
				Platform:   r.platform,
				Op:         op,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}
		return body, nil
	})
}

// GetJSON performs an authenticated GET and decodes the JSON response into out
func (r *Requester) GetJSON(ctx context.Context, op, rawURL, accessToken string, out any) error {
	body, err := r.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		setBearer(req, accessToken)
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

// PostJSON performs an authenticated JSON POST and decodes the response into out
func (r *Requester) PostJSON(ctx context.Context, op, rawURL, accessToken string, in, out any) error {
	body, err := r.PostJSONBody(ctx, op, rawURL, accessToken, in)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

// PostJSONBody performs an authenticated JSON POST and returns the raw response body
func (r *Requester) PostJSONBody(ctx context.Context, op, rawURL, accessToken string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	return r.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		setBearer(req, accessToken)
		return req, nil
	})
}

// PostForm performs a form-encoded POST; authorize may set credentials on the request
func (r *Requester) PostForm(ctx context.Context, op, rawURL string, form url.Values, authorize func(*http.Request), out any) error {
	body, err := r.PostFormBody(ctx, op, rawURL, form, authorize)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

// PostFormBody performs a form-encoded POST and returns the raw response body
func (r *Requester) PostFormBody(ctx context.Context, op, rawURL string, form url.Values, authorize func(*http.Request)) ([]byte, error) {
	encoded := form.Encode()
	return r.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if authorize != nil {
			authorize(req)
		}
		return req, nil
	})
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func decode(op string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

// BearerAuth authorizes a request with an access token
func BearerAuth(token string) func(*http.Request) {
	return func(req *http.Request) { setBearer(req, token) }
}
