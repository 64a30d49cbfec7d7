package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/resilience"
)

const (
	queueGroup   = "retrievers"
	drainTimeout = 5 * time.Second
)

// Handler turns one request payload into one reply payload.
type Handler func(ctx context.Context, data []byte) []byte

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("devdocs-retriever"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Serve answers requests on the subject within a queue group until ctx is
// done, then drains the subscription. Messages already delivered when ctx is
// cancelled are still handled and answered.
func (q *Queue) Serve(ctx context.Context, handler Handler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		q.handle(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("nats_serving", "subject", q.subject, "queue_group", queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	deadline := time.Now().Add(drainTimeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := q.conn.FlushTimeout(drainTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// handle runs one request detached from ctx cancellation so that a shutdown
// signal does not abort requests that were accepted before it.
func (q *Queue) handle(ctx context.Context, msg *nats.Msg, handler Handler) {
	reply := handler(context.WithoutCancel(ctx), msg.Data)
	if msg.Reply == "" {
		q.logger.Warn("nats_request_without_reply", "subject", msg.Subject)
		return
	}
	if err := q.respond(ctx, msg, reply); err != nil {
		q.logger.Error("nats_respond_failed", "subject", msg.Subject, "error", err)
	}
}

func (q *Queue) respond(ctx context.Context, msg *nats.Msg, reply []byte) error {
	call := func(context.Context) error {
		if err := msg.Respond(reply); err != nil {
			return fmt.Errorf("nats respond: %w", err)
		}
		return nil
	}
	return wrapTemporaryIfNeeded(q.executor.Execute(context.WithoutCancel(ctx), "nats.respond", call, classifyNATSError))
}
