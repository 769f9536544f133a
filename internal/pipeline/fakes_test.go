package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shubh-37/social-autoreply/internal/agents"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	updates  []string
	err      error
}

func (f *fakeStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, accessToken)
	a := f.accounts[id]
	a.Credentials.AccessToken = &accessToken
	if refreshToken != "" {
		a.Credentials.RefreshToken = &refreshToken
	}
	a.Credentials.TokenExpiresAt = expiresAt
	return nil
}

type fakeLedger struct {
	mu        sync.Mutex
	rows      map[string]*models.Interaction // keyed by content id
	upsertErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*models.Interaction{}}
}

func (f *fakeLedger) Upsert(ctx context.Context, i *models.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.rows[i.ExternalContentID]; ok {
		i.ID = existing.ID
		if i.RepliedAt == nil {
			i.RepliedAt = existing.RepliedAt
		}
	}
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	cp := *i
	f.rows[i.ExternalContentID] = &cp
	return nil
}

func (f *fakeLedger) RepliedContentIDs(ctx context.Context, accountID string, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, id := range ids {
		if row, ok := f.rows[id]; ok && row.AccountID == accountID && row.Replied() {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeLedger) RecentReplied(ctx context.Context, accountID string, limit, offset int) ([]*models.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var replied []*models.Interaction
	for _, row := range f.rows {
		if row.AccountID == accountID && row.Replied() {
			replied = append(replied, row)
		}
	}
	sort.Slice(replied, func(i, j int) bool { return replied[i].RepliedAt.After(*replied[j].RepliedAt) })
	if offset >= len(replied) {
		return nil, nil
	}
	replied = replied[offset:]
	if limit > 0 && limit < len(replied) {
		replied = replied[:limit]
	}
	return replied, nil
}

func (f *fakeLedger) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var n int64
	for key, row := range f.rows {
		if drop[row.ID] {
			delete(f.rows, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) DeleteStaleUnreplied(ctx context.Context, accountID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for key, row := range f.rows {
		if !row.Replied() && row.CreatedAt.Before(cutoff) && (accountID == "" || row.AccountID == accountID) {
			delete(f.rows, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) get(contentID string) *models.Interaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[contentID]
}

func (f *fakeLedger) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeSink struct {
	mu     sync.Mutex
	entries []models.LogEntry
}

func (f *fakeSink) Log(ctx context.Context, e models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSink) levels() map[models.LogLevel]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[models.LogLevel]int{}
	for _, e := range f.entries {
		out[e.Level]++
	}
	return out
}

type fakeGenerator struct {
	reply     string
	err       error
	visionErr error
	requests  []agents.ReplyRequest
	described [][]string
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, req agents.ReplyRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeGenerator) DescribeImages(ctx context.Context, apiKey, model string, urls []string) (string, error) {
	f.described = append(f.described, urls)
	if f.visionErr != nil {
		return "", f.visionErr
	}
	return "a gopher on a bike", nil
}

type postCall struct {
	token, target, text string
}

type fakeClient struct {
	name       models.Platform
	token      *platform.Token
	refreshErr error
	candidates []models.Candidate
	fetchErr   error
	postErr    error
	postErrFor map[string]error
	nextID     int

	mu     sync.Mutex
	calls  int
	params []platform.SearchParams
	posts  []postCall
}

func (f *fakeClient) Platform() models.Platform { return f.name }

func (f *fakeClient) RefreshTokenIfNeeded(ctx context.Context, creds models.Credentials) (*platform.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.token != nil {
		return f.token, nil
	}
	if creds.AccessToken == nil {
		return nil, nil
	}
	return platform.ExistingToken(creds), nil
}

func (f *fakeClient) FetchCandidates(ctx context.Context, token string, params platform.SearchParams) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, params)
	return f.candidates, f.fetchErr
}

func (f *fakeClient) PostReply(ctx context.Context, token, target, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.posts = append(f.posts, postCall{token: token, target: target, text: text})
	if err := f.postErrFor[target]; err != nil {
		return "", err
	}
	if f.postErr != nil {
		return "", f.postErr
	}
	f.nextID++
	return "reply-" + string(rune('0'+f.nextID)), nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errUpstream = errors.New("upstream exploded")

func strPtr(s string) *string { return &s }

func connectedAccount(id string, p models.Platform) *models.Account {
	return &models.Account{
		ID:       id,
		UserID:   "user-1",
		Platform: p,
		Credentials: models.Credentials{
			ClientID:       "cid",
			ClientSecret:   "secret",
			AccessToken:    strPtr("access"),
			RefreshToken:   strPtr("refresh"),
			APIKey:         "yt-key",
			PlatformUserID: "self-id",
			Username:       "me",
		},
		Settings: models.Settings{
			Keywords:      "golang, rust",
			MinEngagement: 5,
			RecencyHours:  12,
			LLMAPIKey:     "sk",
			Model:         "gpt-4o-mini",
		},
	}
}
