package twitter

type publicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

type apiTweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	AuthorID      string        `json:"author_id"`
	CreatedAt     string        `json:"created_at"`
	PublicMetrics publicMetrics `json:"public_metrics"`
	Attachments   struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type apiMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"` // photo, video, animated_gif
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type searchResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser  `json:"users"`
		Media []apiMedia `json:"media"`
	} `json:"includes"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}
