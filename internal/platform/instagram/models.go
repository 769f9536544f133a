package instagram

type hashtagSearchResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
	Timestamp     string `json:"timestamp"`
	MediaType     string `json:"media_type"`
	MediaURL      string `json:"media_url"`
	Permalink     string `json:"permalink"`
}

type topMediaResponse struct {
	Data []apiMedia `json:"data"`
}
