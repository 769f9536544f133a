package reddit

import "encoding/json"

type listing struct {
	Data struct {
		Children []struct {
			Kind string  `json:"kind"`
			Data apiPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type apiPost struct {
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Author        string  `json:"author"`
	AuthorID      string  `json:"author_fullname"`
	Subreddit     string  `json:"subreddit"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	PostHint      string  `json:"post_hint"`
	Stickied      bool    `json:"stickied"`
	Over18        bool    `json:"over_18"`
	Locked        bool    `json:"locked"`
	IsVideo       bool    `json:"is_video"`
	Preview       *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type commentResponse struct {
	JSON struct {
		Errors []json.RawMessage `json:"errors"`
	} `json:"json"`
}
