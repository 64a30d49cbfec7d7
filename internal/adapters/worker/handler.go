package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

// Reply is the envelope sent back for every retrieval request.
type Reply struct {
	RequestID string                  `json:"request_id"`
	Result    *domain.RetrievalResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Kind      string                  `json:"kind,omitempty"`
}

type RetrievalHandler struct {
	service   string
	retriever ports.Retriever
	metrics   *metrics.WorkerMetrics
	logger    *slog.Logger
}

func NewRetrievalHandler(service string, retriever ports.Retriever, m *metrics.WorkerMetrics, logger *slog.Logger) *RetrievalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalHandler{
		service:   service,
		retriever: retriever,
		metrics:   m,
		logger:    logger,
	}
}

// Handle decodes one JSON RetrieveRequest and always returns an encoded Reply.
func (h *RetrievalHandler) Handle(ctx context.Context, data []byte) []byte {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.StartRequest()
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	reply, err := h.retrieve(ctx, data)
	reply.RequestID = requestID
	if err != nil {
		reply.Error = err.Error()
		reply.Kind = domain.ErrorKindName(err)
		h.logger.WarnContext(ctx, "worker_request_failed",
			"request_id", requestID,
			"kind", reply.Kind,
			"error", err,
		)
	}

	payload, encodeErr := json.Marshal(reply)
	if encodeErr != nil {
		err = encodeErr
		payload, _ = json.Marshal(Reply{RequestID: requestID, Error: "encode reply failed", Kind: "internal"})
	}

	if h.metrics != nil {
		h.metrics.FinishRequest(h.service, time.Since(start), len(payload), err)
	}
	return payload
}

func (h *RetrievalHandler) retrieve(ctx context.Context, data []byte) (Reply, error) {
	var req domain.RetrieveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Reply{}, domain.WrapError(domain.ErrInvalidInput, "decode retrieve request", fmt.Errorf("invalid json: %w", err))
	}
	result, err := h.retriever.Retrieve(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Result: result}, nil
}
