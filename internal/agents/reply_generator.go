package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/shubh-37/social-autoreply/internal/models"
)

const (
	defaultSystemPrompt = "You are a friendly, knowledgeable person replying to social media posts. Add something genuine to the conversation."

	contentBudget = 500
	maxImages     = 4
)

// ReplyRequest carries everything needed to draft one reply
type ReplyRequest struct {
	APIKey        string
	Model         string
	SystemPrompt  string
	TargetTitle   string
	TargetText    string
	TargetAuthor  string
	ContextLabel  string
	Style         models.StyleOptions
	MaxLength     int
	VisualContext string
}

type ReplyGeneratorAgent struct {
	llm *llmClient
}

func NewReplyGeneratorAgent(cfg LLMConfig) *ReplyGeneratorAgent {
	return &ReplyGeneratorAgent{llm: newLLMClient(cfg)}
}

// GenerateReply asks the model for a reply and cleans it up for posting.
// An empty result after cleanup is an error.
func (a *ReplyGeneratorAgent) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if req.APIKey == "" {
		return "", fmt.Errorf("LLM api key is required")
	}
	if req.Model == "" {
		return "", fmt.Errorf("LLM model is required")
	}

	resp, err := a.llm.complete(ctx, req.APIKey, chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt(req.SystemPrompt, req.MaxLength, req.Style)},
			{Role: "user", Content: BuildUserMessage(req)},
		},
		MaxTokens:   400,
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}

	reply := SanitizeReply(resp.Content, !resp.HasReasoning, req.MaxLength)
	if reply == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return reply, nil
}

// DescribeImages asks a vision model for a one or two sentence description of
// up to four images.
func (a *ReplyGeneratorAgent) DescribeImages(ctx context.Context, apiKey, model string, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("no images to describe")
	}
	if len(urls) > maxImages {
		urls = urls[:maxImages]
	}

	parts := []contentPart{{
		Type: "text",
		Text: "Describe what these images show in one or two plain sentences. Mention any visible text.",
	}}
	for _, u := range urls {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
	}

	resp, err := a.llm.complete(ctx, apiKey, chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: 150,
	})
	if err != nil {
		return "", err
	}

	description := strings.TrimSpace(resp.Content)
	if description == "" {
		return "", fmt.Errorf("vision model returned an empty description")
	}
	return description, nil
}

// BuildSystemPrompt appends the formatting rules and one clause per active style option
func BuildSystemPrompt(base string, maxLength int, style models.StyleOptions) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = defaultSystemPrompt
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nRules:\n- Be concise.\n")
	if maxLength > 0 {
		sb.WriteString(fmt.Sprintf("- Keep the reply under %d characters.\n", maxLength))
	}
	for _, clause := range styleClauses(style) {
		sb.WriteString("- " + clause + "\n")
	}
	sb.WriteString("- Output only the reply text. No explanations, notes, options or meta-commentary.")
	return sb.String()
}

func styleClauses(style models.StyleOptions) []string {
	var clauses []string
	if style.NoHashtags {
		clauses = append(clauses, "Do not use hashtags.")
	}
	if style.NoEmojis {
		clauses = append(clauses, "Do not use emojis.")
	}
	if style.NoCapitalization {
		clauses = append(clauses, "Use all lowercase letters.")
	}
	if style.BadGrammar {
		clauses = append(clauses, "Use casual grammar with minor typos.")
	}
	return clauses
}

// BuildUserMessage embeds the target content, each field cut to a fixed budget
func BuildUserMessage(req ReplyRequest) string {
	label := req.ContextLabel
	if label == "" {
		label = "post"
	}

	var sb strings.Builder
	if req.TargetAuthor != "" {
		sb.WriteString(fmt.Sprintf("Write a reply to this %s by %s.\n", label, req.TargetAuthor))
	} else {
		sb.WriteString(fmt.Sprintf("Write a reply to this %s.\n", label))
	}
	if title := strings.TrimSpace(req.TargetTitle); title != "" {
		sb.WriteString("\nTitle: " + truncateContent(title, contentBudget) + "\n")
	}
	if text := strings.TrimSpace(req.TargetText); text != "" {
		sb.WriteString("\nContent: " + truncateContent(text, contentBudget) + "\n")
	}
	if visual := strings.TrimSpace(req.VisualContext); visual != "" {
		sb.WriteString("\nAttached images: " + visual + "\n")
	}
	return sb.String()
}

func truncateContent(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
