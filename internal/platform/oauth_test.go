package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/ratelimit"
)

func strPtr(s string) *string { return &s }

func TestEvaluateToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(2 * time.Minute)
	later := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name  string
		creds models.Credentials
		want  TokenStatus
	}{
		{"no access token", models.Credentials{RefreshToken: strPtr("r")}, TokenMissing},
		{"no refresh token", models.Credentials{AccessToken: strPtr("a")}, TokenMissing},
		{"empty access token", models.Credentials{AccessToken: strPtr(""), RefreshToken: strPtr("r")}, TokenMissing},
		{"no expiry", models.Credentials{AccessToken: strPtr("a"), RefreshToken: strPtr("r")}, TokenFresh},
		{"expires later", models.Credentials{AccessToken: strPtr("a"), RefreshToken: strPtr("r"), TokenExpiresAt: &later}, TokenFresh},
		{"expires within skew", models.Credentials{AccessToken: strPtr("a"), RefreshToken: strPtr("r"), TokenExpiresAt: &soon}, TokenStale},
		{"expired", models.Credentials{AccessToken: strPtr("a"), RefreshToken: strPtr("r"), TokenExpiresAt: &past}, TokenStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateToken(tt.creds, now))
		})
	}
}

func TestRefreshOAuth2BasicAuth(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200}`))
	}))
	defer server.Close()

	req := NewRequester("twitter", Config{TokenURL: server.URL, Now: func() time.Time { return now }}.WithDefaults("", ""))
	tok, err := req.RefreshOAuth2(context.Background(), models.Credentials{
		ClientID:     "cid",
		ClientSecret: "secret",
		AccessToken:  strPtr("old"),
		RefreshToken: strPtr("old-refresh"),
	}, ClientAuthBasic)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, now.Add(2*time.Hour), *tok.ExpiresAt)
}

func TestRefreshOAuth2FormCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer server.Close()

	req := NewRequester("youtube", Config{TokenURL: server.URL}.WithDefaults("", ""))
	tok, err := req.RefreshOAuth2(context.Background(), models.Credentials{
		ClientID: "cid", ClientSecret: "secret",
		AccessToken: strPtr("old"), RefreshToken: strPtr("r"),
	}, ClientAuthForm)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Empty(t, tok.RefreshToken)
}

func TestRefreshOAuth2SurfacesBodyOnFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	req := NewRequester("reddit", Config{TokenURL: server.URL}.WithDefaults("", ""))
	_, err := req.RefreshOAuth2(context.Background(), models.Credentials{
		AccessToken: strPtr("a"), RefreshToken: strPtr("r"),
	}, ClientAuthBasic)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "refresh must not retry")
}

func TestRefreshOAuth2WithoutAccessTokenInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer server.Close()

	req := NewRequester("reddit", Config{TokenURL: server.URL}.WithDefaults("", ""))
	_, err := req.RefreshOAuth2(context.Background(), models.Credentials{
		AccessToken: strPtr("a"), RefreshToken: strPtr("r"),
	}, ClientAuthBasic)
	assert.ErrorContains(t, err, "access_token")
}

func TestRefreshOAuth2DrawsOnPlatformLimiter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "social-autoreply/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"r","expires_in":3600}`))
	}))
	defer server.Close()

	limiter := ratelimit.New("reddit-test", ratelimit.Config{Reservoir: 1, RefreshInterval: time.Hour})
	req := NewRequester("reddit", Config{TokenURL: server.URL, Limiter: limiter}.WithDefaults("", ""))
	creds := models.Credentials{ClientID: "cid", AccessToken: strPtr("a"), RefreshToken: strPtr("r")}

	tok, err := req.RefreshOAuth2(context.Background(), creds, ClientAuthBasic)
	require.NoError(t, err)
	assert.Empty(t, tok.RefreshToken, "an unrotated refresh token is not reported")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = req.RefreshOAuth2(ctx, creds, ClientAuthBasic)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
