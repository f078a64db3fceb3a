package openai

import (
	"context"
	"encoding/base64"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cardscout/postcards/internal/domain"
)

const (
	transcribeSystemPrompt = "You are a VERBATIM text extraction system for postcards. " +
		"Your ONLY task is to extract the EXACT text visible in the image with 100% accuracy. " +
		"NEVER invent, modify, or hallucinate text that is not visibly present in the image. " +
		"If you're not certain about text, respond with NO_TEXT_FOUND. " +
		"DO NOT refer to similar postcards or make educated guesses. Only report what you can clearly read."

	transcribeUserPrompt = "Read and transcribe ALL text visible in this postcard image EXACTLY as it appears, " +
		"preserving formatting and line breaks. Don't add any information not clearly visible. " +
		"If no text is visible or readable, respond with NO_TEXT_FOUND."
)

// Transcribe asks model to read the text printed on img. The reply is returned raw.
func (c *Client) Transcribe(ctx context.Context, model string, img domain.Image) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: transcribeSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcribeUserPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL(img),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	text, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func dataURL(img domain.Image) string {
	contentType := img.ContentType
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
