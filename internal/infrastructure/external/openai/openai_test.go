package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAPI serves chat completions from a queue of canned replies and
// records the requests it received
type fakeAPI struct {
	mu       sync.Mutex
	replies  []string
	requests []openai.ChatCompletionRequest
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.requests = append(f.requests, req)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
		return
	}

	content := ""
	if len(f.replies) > 0 {
		content, f.replies = f.replies[0], f.replies[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-4o-mini",
		VisionModel: "gpt-4o",
		Temperature: 0.2,
		MaxTokens:   800,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"}, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewClient(Config{APIKey: "k"}, nil, zap.NewNop())
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "k", Model: "m"}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "m", c.cfg.VisionModel)
}

func TestStructuredExtractor_Success(t *testing.T) {
	api := &fakeAPI{replies: []string{`{"claimant_name":"Jane Doe","amount":800,"confidence":0.9}`}}
	e := NewStructuredExtractor(newTestClient(t, api), zap.NewNop())

	cand, err := e.ExtractStructured(context.Background(), port.StructuringRequest{
		Text:     "Claimant: Jane Doe\nAmount: 800",
		Category: entity.CategoryAccidentReport,
		Attempt:  1,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"claimant_name":"Jane Doe","amount":800,"confidence":0.9}`, string(cand.Payload))
	assert.Zero(t, cand.Confidence)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Document category: accident_report")
	assert.Contains(t, req.Messages[1].Content, "Amount: 800")
	assert.NotContains(t, req.Messages[1].Content, "previous answer was rejected")
}

func TestStructuredExtractor_StrictRetryPrompt(t *testing.T) {
	api := &fakeAPI{replies: []string{"```json\n{\"claimant_name\":\"Jane\"}\n```"}}
	e := NewStructuredExtractor(newTestClient(t, api), zap.NewNop())

	cand, err := e.ExtractStructured(context.Background(), port.StructuringRequest{
		Text:          "Claimant: Jane",
		Category:      entity.CategoryOther,
		Attempt:       2,
		Strict:        true,
		PreviousError: "schema mismatch: amount must be a number",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"claimant_name":"Jane"}`, string(cand.Payload))

	req := api.requests[0]
	assert.Zero(t, req.Temperature)
	assert.Contains(t, req.Messages[1].Content, "amount must be a number")
}

func TestStructuredExtractor_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "I could not find a claim in this document."},
		{"array", `[{"claimant_name":"Jane"}]`},
		{"truncated", `{"claimant_name":"Jane"`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{replies: []string{tt.reply}}
			e := NewStructuredExtractor(newTestClient(t, api), zap.NewNop())

			_, err := e.ExtractStructured(context.Background(), port.StructuringRequest{Text: "x", Attempt: 1})
			assert.ErrorIs(t, err, port.ErrSchemaMismatch)
		})
	}
}

func TestStructuredExtractor_APIError(t *testing.T) {
	api := &fakeAPI{status: http.StatusInternalServerError}
	e := NewStructuredExtractor(newTestClient(t, api), zap.NewNop())

	_, err := e.ExtractStructured(context.Background(), port.StructuringRequest{Text: "x", Attempt: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrSchemaMismatch)
}

func TestDocumentClassifier(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    entity.DocumentCategory
		wantErr bool
	}{
		{"known label", `{"category":"repair_estimate"}`, entity.CategoryRepairEstimate, false},
		{"fenced reply", "```json\n{\"category\":\"medical_report\"}\n```", entity.CategoryMedicalReport, false},
		{"unknown label", `{"category":"selfie"}`, entity.CategoryOther, false},
		{"prose", "This looks like an invoice.", entity.CategoryOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{replies: []string{tt.reply}}
			d := NewDocumentClassifier(newTestClient(t, api), zap.NewNop())

			got, err := d.ClassifyDocument(context.Background(), "Labour 4h, bumper replacement")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)

			require.Len(t, api.requests, 1)
			req := api.requests[0]
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Zero(t, req.Temperature)
			assert.Contains(t, req.Messages[1].Content, "bumper replacement")
		})
	}
}

func TestVisionRecognizer(t *testing.T) {
	api := &fakeAPI{replies: []string{`{"text":"CLAIM FORM\nName: Jane Doe","confidence":0.82}`}}
	v := NewVisionRecognizer(newTestClient(t, api), zap.NewNop())

	rec, err := v.Recognize(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "CLAIM FORM\nName: Jane Doe", rec.Text)
	assert.InDelta(t, 0.82, rec.Confidence, 1e-9)
	assert.Equal(t, "vision", rec.Method)

	req := api.requests[0]
	assert.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages[1].MultiContent, 2)
	img := req.Messages[1].MultiContent[1].ImageURL
	require.NotNil(t, img)
	assert.True(t, strings.HasPrefix(img.URL, "data:image/png;base64,"))
}

func TestVisionRecognizer_Errors(t *testing.T) {
	ctx := context.Background()

	v := NewVisionRecognizer(newTestClient(t, &fakeAPI{}), zap.NewNop())
	_, err := v.Recognize(ctx, []byte("%PDF"), "application/pdf")
	assert.ErrorIs(t, err, port.ErrUnsupportedFormat)

	v = NewVisionRecognizer(newTestClient(t, &fakeAPI{replies: []string{`{"text":"no score"}`}}), zap.NewNop())
	_, err = v.Recognize(ctx, []byte("img"), "image/jpeg")
	assert.Error(t, err)

	v = NewVisionRecognizer(newTestClient(t, &fakeAPI{replies: []string{"unreadable"}}), zap.NewNop())
	_, err = v.Recognize(ctx, []byte("img"), "image/jpeg")
	assert.Error(t, err)
}

func TestParsePrompts(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)
	assert.NotEmpty(t, p.Structuring.System)

	_, err = ParsePrompts([]byte("structuring:\n  system: x\n"))
	assert.Error(t, err, "missing templates")

	_, err = ParsePrompts([]byte("structuring:\n  system: s\n  user_template: '{{.Text'\nvision:\n  system: s\n  user_template: t\nclassification:\n  system: s\n  user_template: t\n"))
	assert.Error(t, err, "bad template")

	_, err = ParsePrompts([]byte("structuring:\n  system: s\n  user_template: t\nvision:\n  system: s\n  user_template: t\n"))
	assert.Error(t, err, "missing classification")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":{\"b\":\"}\"}}\n```", `{"a":{"b":"}"}}`},
		{`text {"a":"\"{"} trailing`, `{"a":"\"{"}`},
		{"no object", ""},
		{`{"open":`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractJSON(tt.in), tt.in)
	}
}
