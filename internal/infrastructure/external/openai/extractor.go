package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const strictTemperature = 0

// StructuredExtractor implements port.StructuredExtractor with JSON-mode
// chat completions
type StructuredExtractor struct {
	client *Client
	logger *zap.Logger
}

// NewStructuredExtractor creates a structured extractor
func NewStructuredExtractor(client *Client, logger *zap.Logger) *StructuredExtractor {
	return &StructuredExtractor{client: client, logger: logger}
}

type structuringPrompt struct {
	Category      entity.DocumentCategory
	Text          string
	Strict        bool
	PreviousError string
}

// ExtractStructured asks the model for a claim record. Output that is not a
// single JSON object is reported as port.ErrSchemaMismatch so the caller
// can retry with a stricter prompt.
func (e *StructuredExtractor) ExtractStructured(ctx context.Context, req port.StructuringRequest) (*port.Candidate, error) {
	prompt, err := e.client.prompts.Structuring.Render(structuringPrompt{
		Category:      req.Category,
		Text:          req.Text,
		Strict:        req.Strict,
		PreviousError: req.PreviousError,
	})
	if err != nil {
		return nil, err
	}

	temperature := e.client.cfg.Temperature
	if req.Strict {
		temperature = strictTemperature
	}

	e.logger.Debug("Requesting structured extraction",
		zap.Int("attempt", req.Attempt),
		zap.Bool("strict", req.Strict),
		zap.String("category", string(req.Category)))

	content, err := e.client.complete(ctx, openai.ChatCompletionRequest{
		Model:       e.client.cfg.Model,
		Temperature: temperature,
		MaxTokens:   e.client.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.client.prompts.Structuring.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: jsonFormat,
	})
	if err != nil {
		return nil, err
	}

	payload, err := jsonObject(content)
	if err != nil {
		e.logger.Warn("Model returned malformed claim record",
			zap.Int("attempt", req.Attempt),
			zap.Int("content_length", len(content)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", port.ErrSchemaMismatch, err)
	}

	return &port.Candidate{Payload: payload}, nil
}

// jsonObject returns the single JSON object in content, tolerating
// markdown code fences around it
func jsonObject(content string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return []byte(content), nil
	}
	if strings.HasPrefix(strings.TrimSpace(content), "[") {
		return nil, fmt.Errorf("response is a JSON array, not an object")
	}

	inner := extractJSON(content)
	if inner == "" {
		return nil, fmt.Errorf("response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(inner), &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %v", err)
	}
	return []byte(inner), nil
}

// extractJSON returns the first balanced {...} span in content
func extractJSON(content string) string {
	start := -1
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

var _ port.StructuredExtractor = (*StructuredExtractor)(nil)
