package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	enhanceSystemPrompt = "You are a search query enhancement assistant. Your task is to take a basic search query " +
		"and enhance it to improve search results for vintage postcards. " +
		"Add relevant terms but keep the query concise."

	suggestSystemPrompt = "You are a search suggestion assistant for a vintage postcard website. " +
		"Based on the user's partial query, suggest relevant complete search queries. " +
		"Only provide the suggestions, one per line, with no numbering or additional text. " +
		"Focus on locations, themes, and time periods related to postcards."

	translateSystemPrompt = "You are a language detection and translation assistant. " +
		"Detect the language of the user's text and translate it to English if it's not already in English. " +
		`Respond in the format: "language_code|translated_text". ` +
		`Example: "fr|Hello" for French text translated to "Hello". ` +
		`If the text is already in English, respond with "en|original_text".`
)

// minEnhanceLength is the shortest query worth sending for enhancement.
const minEnhanceLength = 3

// Enhance rewrites query into a richer postcard search query.
// Returns query unchanged when it is too short or the call fails.
func (c *Client) Enhance(ctx context.Context, query string) string {
	if len(strings.TrimSpace(query)) < minEnhanceLength {
		return query
	}

	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhanceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Enhance this postcard search query: " + query},
		},
		MaxTokens:   100,
		Temperature: 0.3,
	})
	if err != nil {
		c.logger.Warn("Query enhancement failed", zap.String("query", query), zap.Error(err))
		return query
	}

	enhanced := strings.TrimSpace(text)
	if enhanced == "" {
		return query
	}
	return enhanced
}

// Suggest proposes up to limit complete queries for a partial one.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]string, error) {
	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: suggestSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Generate %d search suggestions for: %s", limit, query)},
		},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Translate detects the language of query and returns its English translation
// together with the detected language code.
func (c *Client) Translate(ctx context.Context, query string) (string, string, error) {
	text, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translateSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   100,
		Temperature: 0.3,
	})
	if err != nil {
		return query, "en", fmt.Errorf("translate: %w", err)
	}

	lang, translated, ok := strings.Cut(strings.TrimSpace(text), "|")
	if !ok {
		c.logger.Debug("Unexpected translation format", zap.String("reply", text))
		return query, "en", nil
	}
	return strings.TrimSpace(translated), strings.TrimSpace(lang), nil
}
