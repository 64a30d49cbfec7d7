package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

type retrieverFake struct {
	result    *domain.RetrievalResult
	err       error
	got       domain.RetrieveRequest
	requestID string
}

func (f *retrieverFake) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrievalResult, error) {
	f.got = req
	f.requestID = logging.RequestIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RetrievalResult{Results: []domain.Candidate{}}, nil
}

func newTestHandler(cfg config.Config, retriever *retrieverFake) http.Handler {
	return NewRouter(cfg, retriever, nil).Handler()
}

func postRetrieve(t *testing.T, handler http.Handler, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRetrieveMapsDomainErrorsToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query")), http.StatusBadRequest, "invalid_input"},
		{"deadline", domain.ErrDeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded"},
		{"temporary", domain.WrapError(domain.ErrTemporary, "qdrant search", errors.New("503")), http.StatusServiceUnavailable, "temporary"},
		{"external", domain.WrapError(domain.ErrExternalService, "fanout", errors.New("index down")), http.StatusBadGateway, "external_service"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &retrieverFake{err: tc.err})
			res := postRetrieve(t, handler, map[string]any{"query": "deploy"})
			if res.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, res.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %q", tc.kind, resp.Kind)
			}
		})
	}
}

func TestRetrieveDecodesRequestAndPropagatesRequestID(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Results:     []domain.Candidate{{ID: "c1", Content: "approve", FusedScore: 0.5}},
		Diagnostics: domain.Diagnostics{Mode: domain.ModeBalanced, FusionMethod: domain.FusionWeighted},
	}}
	handler := newTestHandler(config.Config{}, fake)

	body := `{"query":"approve PR","mode":"balanced","category_filter":"code_review","final_k":3,"fusion":"weighted","overrides":{"use_lexical_scoring":false}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(body))
	req.Header.Set(requestIDHeader, "req-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get(requestIDHeader) != "req-7" || fake.requestID != "req-7" {
		t.Fatalf("expected request id propagated, header=%q ctx=%q", res.Header().Get(requestIDHeader), fake.requestID)
	}
	if fake.got.CategoryFilter != "code_review" || fake.got.FinalK != 3 || fake.got.Fusion != domain.FusionWeighted {
		t.Fatalf("request not decoded: %+v", fake.got)
	}
	if fake.got.Overrides == nil || fake.got.Overrides.UseLexicalScoring == nil || *fake.got.Overrides.UseLexicalScoring {
		t.Fatalf("expected lexical override decoded as false, got %+v", fake.got.Overrides)
	}

	var result domain.RetrievalResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].ID != "c1" {
		t.Fatalf("unexpected results %+v", result.Results)
	}
}

func TestRetrieveRejectsInvalidJSONAndWrongMethod(t *testing.T) {
	handler := newTestHandler(config.Config{}, &retrieverFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"query":`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestListModesReturnsProfiles(t *testing.T) {
	handler := newTestHandler(config.Config{RetrievalDefaultMode: "fast"}, &retrieverFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/modes", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp struct {
		DefaultMode string               `json:"default_mode"`
		Modes       []domain.ModeProfile `json:"modes"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode modes: %v", err)
	}
	if resp.DefaultMode != "fast" || len(resp.Modes) != 3 {
		t.Fatalf("unexpected modes response %+v", resp)
	}
	if resp.Modes[2].Name != domain.ModeAccurate || !resp.Modes[2].UseGenerativeRerank {
		t.Fatalf("expected accurate profile with rerank, got %+v", resp.Modes[2])
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	handler := NewRouter(config.Config{}, &retrieverFake{}, metrics.NewHTTPServerMetrics(serviceName)).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "ddr_http_requests_total") {
		t.Fatalf("expected http request counter in exposition")
	}
}

type healthCheckerFake struct {
	err error
}

func (f healthCheckerFake) Ping(context.Context) error {
	return f.err
}

func TestReadyzReflectsIndexHealth(t *testing.T) {
	cases := []struct {
		name  string
		check healthCheckerFake
		code  int
	}{
		{"healthy", healthCheckerFake{}, http.StatusOK},
		{"unreachable", healthCheckerFake{err: domain.WrapError(domain.ErrTemporary, "qdrant ping", errors.New("connection refused"))}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, &retrieverFake{}, nil).WithReadiness(tc.check).Handler()
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if res.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, res.Code)
			}
		})
	}
}
