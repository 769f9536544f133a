package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/platform"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	runner *Runner
	store  *fakeStore
	ledger *fakeLedger
	sink   *fakeSink
	gen    *fakeGenerator
	client *fakeClient
}

func newHarness(account *models.Account) *harness {
	logger, _ := test.NewNullLogger()
	h := &harness{
		store:  &fakeStore{accounts: map[string]*models.Account{account.ID: account}},
		ledger: newFakeLedger(),
		sink:   &fakeSink{},
		gen:    &fakeGenerator{reply: "Nice work on this!"},
		client: &fakeClient{name: account.Platform},
	}
	h.runner = NewRunner(Deps{
		Store:     h.store,
		Ledger:    h.ledger,
		Sink:      h.sink,
		Generator: h.gen,
		Clients:   map[models.Platform]platform.Client{account.Platform: h.client},
		Logger:    logger,
	}, Options{Now: func() time.Time { return fixedNow }})
	return h
}

func sampleCandidates() []models.Candidate {
	return []models.Candidate{
		{ExternalID: "low", AuthorHandle: "carol", EngagementScore: 3, URL: "https://x/low"},
		{ExternalID: "busy", AuthorHandle: "bob", EngagementScore: 50, ReplyCount: 30, URL: "https://x/busy"},
		{ExternalID: "best", AuthorHandle: "alice", AuthorID: "u-alice", Text: "Go 1.26 is out", EngagementScore: 50, ReplyCount: 2, URL: "https://x/best"},
		{ExternalID: "mine", AuthorID: "self-id", AuthorHandle: "me", EngagementScore: 900},
	}
}

func TestRunRepliesToBestCandidate(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	h.client.candidates = sampleCandidates()

	res, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.True(t, res.Replied)
	assert.Equal(t, "https://x/best", res.RepliedTo)
	assert.Equal(t, "Nice work on this!", res.PostedText)
	assert.Equal(t, "reply-1", res.ReplyID)

	require.Len(t, h.client.posts, 1)
	assert.Equal(t, postCall{token: "access", target: "best", text: "Nice work on this!"}, h.client.posts[0])

	require.Len(t, h.client.params, 1)
	params := h.client.params[0]
	assert.Equal(t, []string{"golang", "rust"}, params.Keywords)
	assert.Equal(t, fixedNow.Add(-12*time.Hour), params.Since)
	assert.Equal(t, 5, params.MinEngagement)

	require.Len(t, h.gen.requests, 1)
	req := h.gen.requests[0]
	assert.Equal(t, 280, req.MaxLength)
	assert.Equal(t, "tweet", req.ContextLabel)
	assert.Equal(t, "alice", req.TargetAuthor)
	assert.Equal(t, "Go 1.26 is out", req.TargetText)

	row := h.ledger.get("best")
	require.NotNil(t, row)
	assert.True(t, row.Replied())
	assert.Equal(t, "reply-1", row.OurReplyID)
	assert.Equal(t, 1, h.sink.levels()[models.LogSuccess])
}

func TestRunSkipsAlreadyReplied(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	h.client.candidates = sampleCandidates()
	require.NoError(t, h.ledger.Upsert(context.Background(), models.NewInteraction("acc-1", "best", "alice", "old", "r0", fixedNow.Add(-time.Hour))))

	res, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://x/busy", res.RepliedTo)
}

func TestRunConfigErrorsComeFirst(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *models.Account)
		field  string
	}{
		{"access token", func(a *models.Account) { a.Credentials.AccessToken = nil }, "no access token"},
		{"refresh token", func(a *models.Account) { a.Credentials.RefreshToken = strPtr("") }, "no refresh token"},
		{"client id", func(a *models.Account) { a.Credentials.ClientID = "" }, "client id"},
		{"keywords", func(a *models.Account) { a.Settings.Keywords = " , " }, "keywords"},
		{"llm key", func(a *models.Account) { a.Settings.LLMAPIKey = "" }, "LLM API key"},
		{"model", func(a *models.Account) { a.Settings.Model = "" }, "LLM model"},
		{"connection before llm", func(a *models.Account) {
			a.Settings.Model = ""
			a.Credentials.ClientID = ""
		}, "client id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := connectedAccount("acc-1", models.PlatformReddit)
			tt.mutate(account)
			h := newHarness(account)

			_, err := h.runner.Run(context.Background(), "acc-1")
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Field, tt.field)
			assert.Zero(t, h.client.callCount())
			assert.Equal(t, 1, h.sink.levels()[models.LogError])
		})
	}
}

func TestValidatePlatformKeys(t *testing.T) {
	yt := connectedAccount("a", models.PlatformYouTube)
	yt.Credentials.APIKey = ""
	assert.ErrorContains(t, ValidateAccount(yt), "YouTube API key")

	ig := connectedAccount("a", models.PlatformInstagram)
	ig.Credentials.PlatformUserID = ""
	assert.ErrorContains(t, ValidateAccount(ig), "Instagram business account id")

	channels := connectedAccount("a", models.PlatformYouTube)
	channels.Settings.Keywords = ""
	channels.Settings.ChannelIDs = "UC123"
	assert.NoError(t, ValidateAccount(channels))

	redditChannels := connectedAccount("a", models.PlatformReddit)
	redditChannels.Settings.Keywords = ""
	redditChannels.Settings.ChannelIDs = "UC123"
	assert.ErrorContains(t, ValidateAccount(redditChannels), "keywords")
}

func TestRunAuthErrors(t *testing.T) {
	t.Run("refresh failed", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformReddit))
		h.client.refreshErr = errUpstream

		_, err := h.runner.Run(context.Background(), "acc-1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.ErrorIs(t, err, errUpstream)
		assert.Empty(t, h.client.params)
	})

	t.Run("no token", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformReddit))
		h.client.token = &platform.Token{}

		_, err := h.runner.Run(context.Background(), "acc-1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})
}

func TestRunPersistsRefreshedToken(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	expires := fixedNow.Add(2 * time.Hour)
	h.client.token = &platform.Token{AccessToken: "fresh", RefreshToken: "rotated", ExpiresAt: &expires}
	h.client.candidates = sampleCandidates()

	_, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh"}, h.store.updates)
	assert.Equal(t, "rotated", *h.store.accounts["acc-1"].Credentials.RefreshToken)
	require.Len(t, h.client.posts, 1)
	assert.Equal(t, "fresh", h.client.posts[0].token)
}

func TestRunNoActionOutcomes(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		res, err := h.runner.Run(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.False(t, res.Replied)
		assert.Equal(t, "No new content found", res.Message)
		assert.Empty(t, h.gen.requests)
	})

	t.Run("nothing eligible", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.candidates = []models.Candidate{
			{ExternalID: "gone", AuthorHandle: platform.DeletedAuthor, EngagementScore: 100},
			{ExternalID: "quiet", AuthorHandle: "bob", EngagementScore: 1},
		}
		res, err := h.runner.Run(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.False(t, res.Replied)
		assert.Equal(t, "No eligible content found", res.Message)
		assert.Empty(t, h.client.posts)
	})
}

func TestRunStageFailures(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.fetchErr = errUpstream
		_, err := h.runner.Run(context.Background(), "acc-1")
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageFetch, stageErr.Stage)
	})

	t.Run("generate", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.candidates = sampleCandidates()
		h.gen.err = errUpstream
		_, err := h.runner.Run(context.Background(), "acc-1")
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageGenerate, stageErr.Stage)
		assert.Contains(t, err.Error(), "upstream exploded")
		assert.Empty(t, h.client.posts)
	})

	t.Run("post", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.candidates = sampleCandidates()
		h.client.postErr = errUpstream
		_, err := h.runner.Run(context.Background(), "acc-1")
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StagePost, stageErr.Stage)
		assert.Zero(t, h.ledger.size())
	})
}

func TestRunRejectedTokenIsAuthError(t *testing.T) {
	rejected := &platform.APIError{Platform: "twitter", Op: "search", StatusCode: http.StatusUnauthorized, Body: "Unauthorized"}

	t.Run("fetch", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.fetchErr = rejected
		_, err := h.runner.Run(context.Background(), "acc-1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, models.PlatformTwitter, authErr.Platform)
	})

	t.Run("post", func(t *testing.T) {
		h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
		h.client.candidates = sampleCandidates()
		h.client.postErr = rejected
		_, err := h.runner.Run(context.Background(), "acc-1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Zero(t, h.ledger.size())
	})
}

func TestRunRecordFailureIsNotFatal(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	h.client.candidates = sampleCandidates()
	h.ledger.upsertErr = errors.New("db down")

	res, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, res.Replied)
	assert.Equal(t, 1, h.sink.levels()[models.LogWarning])
}

func TestRunVisionFailureContinues(t *testing.T) {
	account := connectedAccount("acc-1", models.PlatformReddit)
	account.Settings.VisionModel = "vision"
	h := newHarness(account)
	h.client.candidates = []models.Candidate{
		{ExternalID: "t3_pic", AuthorHandle: "alice", EngagementScore: 10, MediaRefs: []string{"https://img/1.png"}},
	}
	h.gen.visionErr = errUpstream

	res, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, res.Replied)
	require.Len(t, h.gen.described, 1)
	assert.Empty(t, h.gen.requests[0].VisualContext)
	assert.Equal(t, 1, h.sink.levels()[models.LogWarning])
}

func TestRunPassesVisualDescription(t *testing.T) {
	account := connectedAccount("acc-1", models.PlatformReddit)
	account.Settings.VisionModel = "vision"
	h := newHarness(account)
	h.client.candidates = []models.Candidate{
		{ExternalID: "t3_pic", AuthorHandle: "alice", EngagementScore: 10, MediaRefs: []string{"https://img/1.png"}},
	}

	_, err := h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "a gopher on a bike", h.gen.requests[0].VisualContext)
	assert.Equal(t, 500, h.gen.requests[0].MaxLength)
}

func TestRunPrunesLedger(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	h.client.candidates = sampleCandidates()
	ctx := context.Background()

	for i := 0; i < DefaultRetainReplied; i++ {
		at := fixedNow.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, h.ledger.Upsert(ctx, models.NewInteraction("acc-1", fmt.Sprintf("old-%d", i), "x", "hi", "r", at)))
	}
	require.NoError(t, h.ledger.Upsert(ctx, &models.Interaction{
		AccountID:         "acc-1",
		ExternalContentID: "stale-draft",
		CreatedAt:         fixedNow.Add(-25 * time.Hour),
	}))
	require.NoError(t, h.ledger.Upsert(ctx, &models.Interaction{
		AccountID:         "acc-1",
		ExternalContentID: "fresh-draft",
		CreatedAt:         fixedNow.Add(-time.Hour),
	}))

	_, err := h.runner.Run(ctx, "acc-1")
	require.NoError(t, err)

	assert.Equal(t, DefaultRetainReplied+1, h.ledger.size())
	assert.NotNil(t, h.ledger.get("best"))
	assert.Nil(t, h.ledger.get(fmt.Sprintf("old-%d", DefaultRetainReplied-1)))
	assert.Nil(t, h.ledger.get("stale-draft"))
	assert.NotNil(t, h.ledger.get("fresh-draft"))
}

func TestRunAccountNotFound(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	_, err := h.runner.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRunUnsupportedPlatform(t *testing.T) {
	account := connectedAccount("acc-1", models.Platform("myspace"))
	h := newHarness(account)
	h.runner.Clients = map[models.Platform]platform.Client{}

	_, err := h.runner.Run(context.Background(), "acc-1")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestPreviewStoresPlaceholder(t *testing.T) {
	h := newHarness(connectedAccount("acc-1", models.PlatformTwitter))
	h.client.candidates = sampleCandidates()

	res, err := h.runner.Preview(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, res.Replied)
	assert.Equal(t, "Nice work on this!", res.PostedText)
	assert.Empty(t, h.client.posts)

	row := h.ledger.get("best")
	require.NotNil(t, row)
	assert.False(t, row.Replied())

	// a placeholder does not block a real reply
	res, err = h.runner.Run(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://x/best", res.RepliedTo)
	assert.True(t, h.ledger.get("best").Replied())
}
