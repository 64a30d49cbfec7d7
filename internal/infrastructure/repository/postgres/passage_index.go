package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
	"github.com/kirillkom/devdocs-retriever/internal/infrastructure/resilience"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// PassageIndex searches a pgvector table of passages:
//
//	id TEXT, content TEXT, category TEXT, metadata JSONB, embedding VECTOR(n)
//
// The table is populated elsewhere; this adapter only reads it.
type PassageIndex struct {
	db       *sql.DB
	embedder ports.Embedder
	executor *resilience.Executor
	query    string
}

var _ ports.SimilarityIndex = (*PassageIndex)(nil)

func NewPassageIndex(db *sql.DB, table string, embedder ports.Embedder, executor *resilience.Executor) (*PassageIndex, error) {
	table = strings.TrimSpace(table)
	if !tableNamePattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new passage index", fmt.Errorf("invalid table name %q", table))
	}
	return &PassageIndex{
		db:       db,
		embedder: embedder,
		executor: executor,
		query: fmt.Sprintf(`
SELECT id, content, metadata, embedding <=> $1::vector AS distance
FROM %s
WHERE ($2 = '' OR category = $2)
ORDER BY distance ASC, id ASC
LIMIT $3
`, table),
	}, nil
}

func (p *PassageIndex) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.SearchHit, error) {
	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	literal := vectorLiteral(vector)

	return resilience.Do(ctx, p.executor, "postgres.search", func(callCtx context.Context) ([]domain.SearchHit, error) {
		hits, err := p.search(callCtx, literal, k, filter.Category)
		return hits, wrapTemporaryIfNeeded(err)
	}, classifyPostgresError)
}

func (p *PassageIndex) search(ctx context.Context, vector string, k int, category string) ([]domain.SearchHit, error) {
	rows, err := p.db.QueryContext(ctx, p.query, vector, category, k)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchHit, 0, k)
	for rows.Next() {
		var (
			hit         domain.SearchHit
			metadataRaw []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Content, &metadataRaw, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		metadata, err := decodeMetadata(metadataRaw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrMalformedResponse, "decode passage metadata", err)
		}
		hit.Metadata = metadata
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}

func (p *PassageIndex) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for key, v := range values {
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			out[key] = typed
		default:
			out[key] = fmt.Sprintf("%v", typed)
		}
	}
	return out, nil
}

// vectorLiteral renders the pgvector text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func classifyPostgresError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, domain.ErrMalformedResponse) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		retryable := strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "40001" || pgErr.Code == "40P01" ||
			pgErr.Code == "53300" || pgErr.Code == "57P01"
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPostgresError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "postgres search", err)
	}
	return err
}
