package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/shubh-37/social-autoreply/internal/metrics"
	"github.com/shubh-37/social-autoreply/internal/models"
)

// TokenStatus classifies stored credentials before a run
type TokenStatus int

const (
	// TokenMissing means there is no access or refresh token to work with
	TokenMissing TokenStatus = iota
	// TokenFresh means the access token is good for at least RefreshSkew
	TokenFresh
	// TokenStale means the token must be exchanged before use
	TokenStale
)

// EvaluateToken decides whether creds need a refresh at now.
func EvaluateToken(creds models.Credentials, now time.Time) TokenStatus {
	if creds.AccessToken == nil || *creds.AccessToken == "" ||
		creds.RefreshToken == nil || *creds.RefreshToken == "" {
		return TokenMissing
	}
	if creds.TokenValid(now.Add(RefreshSkew)) {
		return TokenFresh
	}
	return TokenStale
}

// ExistingToken wraps the stored access token without touching the network
func ExistingToken(creds models.Credentials) *Token {
	return &Token{AccessToken: *creds.AccessToken, ExpiresAt: creds.TokenExpiresAt}
}

// ClientAuth selects how client credentials are presented to the token endpoint
type ClientAuth int

const (
	// ClientAuthBasic sends clientId:clientSecret as HTTP Basic auth
	ClientAuthBasic ClientAuth = iota
	// ClientAuthForm sends client_id and client_secret in the form body
	ClientAuthForm
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RefreshOAuth2 exchanges the stored refresh token at the token endpoint.
// It never retries; a failed exchange is returned to the caller as is.
func (r *Requester) RefreshOAuth2(ctx context.Context, creds models.Credentials, auth ClientAuth) (*Token, error) {
	style := oauth2.AuthStyleInHeader
	if auth == ClientAuthForm {
		style = oauth2.AuthStyleInParams
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.cfg.TokenURL,
			AuthStyle: style,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: r.limitedTransport()})

	refresh := *creds.RefreshToken
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &APIError{
				Platform:   r.platform,
				Op:         "token refresh",
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       strings.TrimSpace(string(retrieveErr.Body)),
			}
		}
		return nil, fmt.Errorf("%s token refresh failed: %w", r.platform, err)
	}

	resp := tokenResponse{AccessToken: tok.AccessToken, ExpiresIn: tok.ExpiresIn}
	if tok.RefreshToken != refresh {
		resp.RefreshToken = tok.RefreshToken
	}
	out, err := r.tokenFromResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.ExpiresAt == nil && !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	return out, nil
}

// limitedTransport admits every request through the platform limiter. Token
// exchanges draw on the same budget as the platform's API calls.
func (r *Requester) limitedTransport() http.RoundTripper {
	base := r.cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		release, err := r.cfg.Limiter.Acquire(req.Context())
		if err != nil {
			return nil, fmt.Errorf("rate limiter %s: %w", r.cfg.Limiter.Name(), err)
		}
		defer release()

		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", r.cfg.UserAgent)
		resp, err := base.RoundTrip(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(r.platform, "error").Inc()
			return nil, err
		}
		metrics.UpstreamRequests.WithLabelValues(r.platform, strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// TokenFromGET exchanges a token with a GET endpoint, as the Graph API does.
func (r *Requester) TokenFromGET(ctx context.Context, rawURL string) (*Token, error) {
	var resp tokenResponse
	if err := r.GetJSON(ctx, "token refresh", rawURL, "", &resp); err != nil {
		return nil, err
	}
	return r.tokenFromResponse(resp)
}

func (r *Requester) tokenFromResponse(resp tokenResponse) (*Token, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%s token refresh returned no access token", r.platform)
	}
	tok := &Token{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if resp.ExpiresIn > 0 {
		exp := r.cfg.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		tok.ExpiresAt = &exp
	}
	return tok, nil
}
