package youtube

type channelListResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	Items []struct {
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type videoListResponse struct {
	Items []apiVideo `json:"items"`
}

type apiVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title                string `json:"title"`
		Description          string `json:"description"`
		ChannelID            string `json:"channelId"`
		ChannelTitle         string `json:"channelTitle"`
		PublishedAt          string `json:"publishedAt"`
		LiveBroadcastContent string `json:"liveBroadcastContent"`
		Thumbnails           struct {
			Default thumbnail `json:"default"`
			Medium  thumbnail `json:"medium"`
			High    thumbnail `json:"high"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    string  `json:"viewCount"`
		LikeCount    string  `json:"likeCount"`
		CommentCount *string `json:"commentCount"` // absent when comments are disabled
	} `json:"statistics"`
}

type commentRequest struct {
	Snippet struct {
		ParentID     string `json:"parentId"`
		TextOriginal string `json:"textOriginal"`
	} `json:"snippet"`
}

type commentThreadRequest struct {
	Snippet commentThreadSnippet `json:"snippet"`
}

type commentThreadSnippet struct {
	VideoID         string          `json:"videoId"`
	TopLevelComment topLevelComment `json:"topLevelComment"`
}

type topLevelComment struct {
	Snippet struct {
		TextOriginal string `json:"textOriginal"`
	} `json:"snippet"`
}
