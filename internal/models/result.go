package models

// RunResult is what a pipeline run reports back to its caller
type RunResult struct {
	Replied    bool   `json:"replied"`
	RepliedTo  string `json:"repliedTo,omitempty"`
	PostedText string `json:"postedText,omitempty"`
	ReplyID    string `json:"replyId,omitempty"`
	Message    string `json:"message,omitempty"`
}
