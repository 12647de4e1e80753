package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// VisionRecognizer implements port.TextRecognizer for images by asking a
// vision model to transcribe them
type VisionRecognizer struct {
	client *Client
	logger *zap.Logger
}

// NewVisionRecognizer creates a vision based recognizer
func NewVisionRecognizer(client *Client, logger *zap.Logger) *VisionRecognizer {
	return &VisionRecognizer{client: client, logger: logger}
}

type transcription struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// Recognize transcribes one image with the model's self-reported confidence
func (v *VisionRecognizer) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedFormat, mediaType)
	}

	prompt, err := v.client.prompts.Vision.Render(struct{ MediaType string }{mediaType})
	if err != nil {
		return nil, err
	}

	content, err := v.client.complete(ctx, openai.ChatCompletionRequest{
		Model:       v.client.cfg.VisionModel,
		Temperature: 0,
		MaxTokens:   4096,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: v.client.prompts.Vision.System},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: jsonFormat,
	})
	if err != nil {
		return nil, err
	}

	payload, err := jsonObject(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}
	var out transcription
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}
	if out.Confidence == nil {
		return nil, fmt.Errorf("vision response has no confidence")
	}

	v.logger.Debug("Image transcribed",
		zap.Int("chars", len(out.Text)),
		zap.Float64("confidence", *out.Confidence))

	return &port.Recognition{
		Text:       out.Text,
		Confidence: *out.Confidence,
		Pages:      1,
		Method:     "vision",
	}, nil
}

var _ port.TextRecognizer = (*VisionRecognizer)(nil)
