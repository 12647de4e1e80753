package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// classifierMaxTokens caps the reply, which is a single short JSON object
const classifierMaxTokens = 50

// DocumentClassifier implements port.DocumentClassifier with a JSON-mode
// chat completion
type DocumentClassifier struct {
	client *Client
	logger *zap.Logger
}

// NewDocumentClassifier creates a document classifier
func NewDocumentClassifier(client *Client, logger *zap.Logger) *DocumentClassifier {
	return &DocumentClassifier{client: client, logger: logger}
}

type classification struct {
	Category string `json:"category"`
}

// ClassifyDocument returns the model's category for text. Unknown labels
// map to other.
func (d *DocumentClassifier) ClassifyDocument(ctx context.Context, text string) (entity.DocumentCategory, error) {
	prompt, err := d.client.prompts.Classification.Render(struct{ Text string }{text})
	if err != nil {
		return entity.CategoryOther, err
	}

	content, err := d.client.complete(ctx, openai.ChatCompletionRequest{
		Model:       d.client.cfg.Model,
		Temperature: 0,
		MaxTokens:   classifierMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: d.client.prompts.Classification.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: jsonFormat,
	})
	if err != nil {
		return entity.CategoryOther, err
	}

	payload, err := jsonObject(content)
	if err != nil {
		return entity.CategoryOther, fmt.Errorf("failed to parse classification: %w", err)
	}
	var out classification
	if err := json.Unmarshal(payload, &out); err != nil {
		return entity.CategoryOther, fmt.Errorf("failed to parse classification: %w", err)
	}

	category := entity.ParseDocumentCategory(out.Category)
	d.logger.Debug("Document classified",
		zap.String("label", out.Category),
		zap.String("category", string(category)))
	return category, nil
}

var _ port.DocumentClassifier = (*DocumentClassifier)(nil)
