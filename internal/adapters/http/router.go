package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

const (
	serviceName      = "retriever-api"
	maxRequestBytes  = 1 << 20
	readinessTimeout = 2 * time.Second
)

type Router struct {
	cfg       config.Config
	retriever ports.Retriever
	metrics   *metrics.HTTPServerMetrics
	readiness ports.HealthChecker
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewRouter wires the retrieval endpoints. m may be nil, in which case
// /metrics is not served.
func NewRouter(cfg config.Config, retriever ports.Retriever, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:       cfg,
		retriever: retriever,
		metrics:   m,
	}
}

// WithReadiness makes /readyz report ready only while check.Ping succeeds.
func (rt *Router) WithReadiness(check ports.HealthChecker) *Router {
	rt.readiness = check
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/readyz", rt.readyz)
	mux.HandleFunc("/v1/modes", rt.listModes)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.readiness == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if err := rt.readiness.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Kind: domain.ErrorKindName(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) listModes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default_mode": rt.cfg.RetrievalDefaultMode,
		"modes":        domain.Profiles(),
	})
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req domain.RetrieveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Kind: "invalid_input"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Kind: "invalid_input"})
		return
	}

	result, err := rt.retriever.Retrieve(r.Context(), req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), errorResponse{
			Error: err.Error(),
			Kind:  domain.ErrorKindName(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
