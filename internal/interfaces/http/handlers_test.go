package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/application/service"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/infrastructure/worker"
)

type mockClaimService struct {
	submitFunc  func(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome
	enqueueFunc func(ctx context.Context, doc *entity.ClaimDocument) error
	getFunc     func(ctx context.Context, runID string) (*entity.ClaimOutcome, error)
	listFunc    func(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error)
	countFunc   func(ctx context.Context) (map[entity.RoutingAction]int, error)
}

func (m *mockClaimService) Submit(ctx context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, doc)
	}
	return &entity.ClaimOutcome{RunID: "run-1", State: "ROUTED", Document: doc}
}

func (m *mockClaimService) Enqueue(ctx context.Context, doc *entity.ClaimDocument) error {
	if m.enqueueFunc != nil {
		return m.enqueueFunc(ctx, doc)
	}
	return nil
}

func (m *mockClaimService) GetOutcome(ctx context.Context, runID string) (*entity.ClaimOutcome, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, runID)
	}
	return nil, port.ErrOutcomeNotFound
}

func (m *mockClaimService) ListOutcomes(ctx context.Context, filter port.OutcomeFilter) ([]*entity.ClaimOutcome, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockClaimService) CountByAction(ctx context.Context) (map[entity.RoutingAction]int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return map[entity.RoutingAction]int{}, nil
}

func newTestServer(claims service.ClaimService, health HealthFunc, maxUpload int64) *Server {
	cfg := DefaultServerConfig()
	cfg.MaxUploadSize = maxUpload
	return NewServer(cfg, claims, health, zap.NewNop())
}

type upload struct {
	filename    string
	contentType string
	content     []byte
	fields      map[string]string
}

func multipartRequest(t *testing.T, target string, u upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range u.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if u.filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, u.filename))
		h.Set("Content-Type", u.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, Response) {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(&mockClaimService{}, nil, 0)
		rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "healthy", resp.Data.(map[string]interface{})["status"])
	})

	t.Run("degraded", func(t *testing.T) {
		health := func(context.Context) (bool, interface{}) {
			return false, map[string]string{"database": "ping failed"}
		}
		s := newTestServer(&mockClaimService{}, health, 0)
		rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, resp.Success)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "degraded", data["status"])
		assert.NotNil(t, data["components"])
	})
}

func TestSubmitClaim_Sync(t *testing.T) {
	var got *entity.ClaimDocument
	claims := &mockClaimService{
		submitFunc: func(_ context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome {
			got = doc
			return &entity.ClaimOutcome{
				RunID:    "run-42",
				State:    "ROUTED",
				Document: doc,
				Decision: &entity.RoutingDecision{Action: entity.ActionAutoApprove, Step: "AUTO_APPROVAL"},
			}
		},
	}
	s := newTestServer(claims, nil, 1<<20)

	req := multipartRequest(t, "/api/v1/claims", upload{
		filename:    "report.txt",
		contentType: "text/plain",
		content:     []byte("Claimant: Jane Doe"),
		fields:      map[string]string{"category": "police_report"},
	})
	rec, resp := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "run-42", data["run_id"])
	assert.Equal(t, "AUTO_APPROVE", data["decision"].(map[string]interface{})["action"])

	require.NotNil(t, got)
	assert.Equal(t, "report.txt", got.Filename)
	assert.Equal(t, "text/plain", got.MediaType)
	assert.Equal(t, entity.CategoryPoliceReport, got.Category)
	assert.Equal(t, []byte("Claimant: Jane Doe"), got.Bytes())
}

func TestSubmitClaim_UnknownCategoryIsOther(t *testing.T) {
	var got *entity.ClaimDocument
	claims := &mockClaimService{
		submitFunc: func(_ context.Context, doc *entity.ClaimDocument) *entity.ClaimOutcome {
			got = doc
			return &entity.ClaimOutcome{RunID: "run-1", State: "ROUTED", Document: doc}
		},
	}
	s := newTestServer(claims, nil, 1<<20)

	req := multipartRequest(t, "/api/v1/claims", upload{
		filename: "scan.png", contentType: "image/png", content: []byte("png"),
		fields: map[string]string{"category": "parking_ticket", "media_type": "image/png"},
	})
	rec, _ := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.CategoryOther, got.Category)
}

func TestSubmitClaim_Async(t *testing.T) {
	tests := []struct {
		name       string
		enqueueErr error
		wantStatus int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"queue full", worker.ErrQueueFull, http.StatusServiceUnavailable},
		{"worker stopped", worker.ErrNotRunning, http.StatusServiceUnavailable},
		{"async disabled", service.ErrAsyncUnavailable, http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var queued *entity.ClaimDocument
			claims := &mockClaimService{
				enqueueFunc: func(_ context.Context, doc *entity.ClaimDocument) error {
					if tt.enqueueErr != nil {
						return fmt.Errorf("failed to enqueue document: %w", tt.enqueueErr)
					}
					queued = doc
					return nil
				},
				submitFunc: func(context.Context, *entity.ClaimDocument) *entity.ClaimOutcome {
					t.Fatal("async submission must not run synchronously")
					return nil
				},
			}
			s := newTestServer(claims, nil, 1<<20)

			req := multipartRequest(t, "/api/v1/claims?async=true", upload{
				filename: "a.txt", contentType: "text/plain", content: []byte("claim"),
			})
			rec, resp := serve(s, req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.enqueueErr == nil {
				require.NotNil(t, queued)
				data := resp.Data.(map[string]interface{})
				assert.Equal(t, queued.ID, data["document_id"])
				assert.Equal(t, "queued", data["status"])
			} else {
				assert.False(t, resp.Success)
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestSubmitClaim_BadUploads(t *testing.T) {
	s := newTestServer(&mockClaimService{}, nil, 512)

	t.Run("missing file", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/claims", upload{fields: map[string]string{"category": "other"}})
		rec, resp := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader(`{"file":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec, _ := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/claims", upload{
			filename: "big.txt", contentType: "text/plain", content: bytes.Repeat([]byte("a"), 4096),
		})
		rec, resp := serve(s, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, resp.Error, "512")
	})

	t.Run("bad async flag", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/claims?async=maybe", upload{
			filename: "a.txt", contentType: "text/plain", content: []byte("x"),
		})
		rec, _ := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetClaim(t *testing.T) {
	claims := &mockClaimService{
		getFunc: func(_ context.Context, runID string) (*entity.ClaimOutcome, error) {
			if runID == "run-1" {
				return &entity.ClaimOutcome{RunID: runID, State: "FAILED",
					Failure: &entity.StageFailure{Stage: entity.StageExtraction, Reason: "EMPTY_OUTPUT"}}, nil
			}
			return nil, port.ErrOutcomeNotFound
		},
	}
	s := newTestServer(claims, nil, 0)

	rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "FAILED", data["state"])
	assert.Equal(t, "EMPTY_OUTPUT", data["failure"].(map[string]interface{})["reason"])

	rec, resp = serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims/run-404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestGetClaim_HistoryDisabled(t *testing.T) {
	claims := &mockClaimService{
		getFunc: func(context.Context, string) (*entity.ClaimOutcome, error) {
			return nil, service.ErrRecorderUnavailable
		},
	}
	s := newTestServer(claims, nil, 0)
	rec, _ := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims/run-1", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListClaims(t *testing.T) {
	docID := "0b5e7c8e-5b0e-4f7a-9d64-0e6f3f0a2d11"

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFilter port.OutcomeFilter
	}{
		{"no filter", "", http.StatusOK, port.OutcomeFilter{}},
		{"by action", "?action=REJECT&limit=10&offset=5", http.StatusOK,
			port.OutcomeFilter{Action: entity.ActionReject, Limit: 10, Offset: 5}},
		{"by state and document", "?state=FAILED&document_id=" + docID, http.StatusOK,
			port.OutcomeFilter{State: "FAILED", DocumentID: docID}},
		{"unknown action", "?action=PAY_NOW", http.StatusBadRequest, port.OutcomeFilter{}},
		{"unknown state", "?state=PENDING", http.StatusBadRequest, port.OutcomeFilter{}},
		{"bad document id", "?document_id=nope", http.StatusBadRequest, port.OutcomeFilter{}},
		{"limit too big", "?limit=10000", http.StatusBadRequest, port.OutcomeFilter{}},
		{"negative offset", "?offset=-1", http.StatusBadRequest, port.OutcomeFilter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got port.OutcomeFilter
			claims := &mockClaimService{
				listFunc: func(_ context.Context, f port.OutcomeFilter) ([]*entity.ClaimOutcome, error) {
					got = f
					return []*entity.ClaimOutcome{{RunID: "a"}, {RunID: "b"}}, nil
				},
			}
			s := newTestServer(claims, nil, 0)

			rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims"+tt.query, nil))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantFilter, got)
			data := resp.Data.(map[string]interface{})
			assert.EqualValues(t, 2, data["count"])
		})
	}
}

func TestListClaims_EmptyIsArray(t *testing.T) {
	s := newTestServer(&mockClaimService{}, nil, 0)
	rec, _ := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcomes":[]`)
}

func TestSummary(t *testing.T) {
	claims := &mockClaimService{
		countFunc: func(context.Context) (map[entity.RoutingAction]int, error) {
			return map[entity.RoutingAction]int{entity.ActionAutoApprove: 3, entity.ActionEscalate: 1}, nil
		},
	}
	s := newTestServer(claims, nil, 0)

	rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/claims/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 3, data["AUTO_APPROVE"])
	assert.EqualValues(t, 1, data["ESCALATE"])
}
