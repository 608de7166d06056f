// Package vectorindex stores and searches embedding vectors in PostgreSQL
// with pgvector.
//
// Every record lives in a namespace, the pair of tenant and collection.
// The namespace appears in every SQL statement the package issues, so a
// query can never observe another tenant's records regardless of filters
// or similarity thresholds.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/corvus-ai/corvid/internal/log"
)

// ErrInvalidNamespace reports a namespace with an empty tenant or
// collection.
var ErrInvalidNamespace = errors.New("vectorindex: invalid namespace")

// Namespace identifies the isolation unit for vector records.
type Namespace struct {
	Tenant     string
	Collection string
}

func (n Namespace) validate() error {
	if n.Tenant == "" || n.Collection == "" {
		return fmt.Errorf("%w: tenant %q collection %q", ErrInvalidNamespace, n.Tenant, n.Collection)
	}
	return nil
}

// Record is a vector with its payload, addressed by ID within a namespace.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Match is a query result. Similarity is 1 minus the cosine distance, so
// identical vectors score 1.0.
type Match struct {
	ID         string
	Payload    map[string]any
	Similarity float64
}

// Index provides vector storage and similarity search over a pgx pool.
// Safe for concurrent use.
type Index struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates an Index. The pool must have pgvector types registered, see
// database.NewPool.
func New(pool *pgxpool.Pool, logger log.Logger) *Index {
	return &Index{pool: pool, logger: logger}
}

const upsertSQL = `
INSERT INTO vector_records (tenant_id, collection, id, embedding, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (tenant_id, collection, id)
DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload, updated_at = now()`

// Upsert inserts or replaces records in one transaction: either every
// record lands or none does, and a replaced record is never observable in
// a half-written state.
func (ix *Index) Upsert(ctx context.Context, ns Namespace, records []Record) error {
	if err := ns.validate(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("vectorindex: record with empty id in %s/%s", ns.Tenant, ns.Collection)
		}
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %q: %w", r.ID, err)
		}
		batch.Queue(upsertSQL, ns.Tenant, ns.Collection, r.ID, pgvector.NewVector(r.Vector), payload)
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d records into %s/%s: %w", len(records), ns.Tenant, ns.Collection, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	ix.logger.Debug("upserted vector records",
		"tenant", ns.Tenant, "collection", ns.Collection, "count", len(records))
	return nil
}

const (
	querySQL = `
SELECT id, payload, 1 - (embedding <=> $3) AS similarity
FROM vector_records
WHERE tenant_id = $1 AND collection = $2
ORDER BY embedding <=> $3
LIMIT $4`

	queryFilteredSQL = `
SELECT id, payload, 1 - (embedding <=> $3) AS similarity
FROM vector_records
WHERE tenant_id = $1 AND collection = $2 AND payload @> $4
ORDER BY embedding <=> $3
LIMIT $5`
)

// Query returns the records nearest to vector, ordered by descending
// similarity. Matches below the minimum similarity are dropped after the
// database ordering, so fewer than the limit may come back.
func (ix *Index) Query(ctx context.Context, ns Namespace, vector []float32, opts ...QueryOption) ([]Match, error) {
	if err := ns.validate(); err != nil {
		return nil, err
	}
	cfg := buildQueryConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	qv := pgvector.NewVector(vector)
	var rows pgx.Rows
	var err error
	if len(cfg.filter) > 0 {
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal filter: %w", marshalErr)
		}
		rows, err = ix.pool.Query(queryCtx, queryFilteredSQL, ns.Tenant, ns.Collection, qv, filterJSON, cfg.limit)
	} else {
		rows, err = ix.pool.Query(queryCtx, querySQL, ns.Tenant, ns.Collection, qv, cfg.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("vector query in %s/%s: %w", ns.Tenant, ns.Collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m       Match
			payload []byte
		)
		if err := rows.Scan(&m.ID, &payload, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if m.Similarity < cfg.minSimilarity {
			continue
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m.Payload); err != nil {
				ix.logger.Warn("unparseable payload", "id", m.ID, "error", err)
				m.Payload = map[string]any{}
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector query in %s/%s: %w", ns.Tenant, ns.Collection, err)
	}
	return matches, nil
}

// Delete removes the named records. Missing IDs are not an error.
func (ix *Index) Delete(ctx context.Context, ns Namespace, ids []string) error {
	if err := ns.validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := ix.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE tenant_id = $1 AND collection = $2 AND id = ANY($3)`,
		ns.Tenant, ns.Collection, ids)
	if err != nil {
		return fmt.Errorf("delete from %s/%s: %w", ns.Tenant, ns.Collection, err)
	}
	return nil
}

// DeleteMatching removes every record in the namespace whose payload
// contains the given fields. Used to drop all chunks of one document.
func (ix *Index) DeleteMatching(ctx context.Context, ns Namespace, filter map[string]any) (int64, error) {
	if err := ns.validate(); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, errors.New("vectorindex: empty filter would delete the whole namespace")
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return 0, fmt.Errorf("marshal filter: %w", err)
	}
	tag, err := ix.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE tenant_id = $1 AND collection = $2 AND payload @> $3`,
		ns.Tenant, ns.Collection, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("delete matching in %s/%s: %w", ns.Tenant, ns.Collection, err)
	}
	return tag.RowsAffected(), nil
}

// Count reports how many records the namespace holds.
func (ix *Index) Count(ctx context.Context, ns Namespace) (int64, error) {
	if err := ns.validate(); err != nil {
		return 0, err
	}
	var n int64
	err := ix.pool.QueryRow(ctx,
		`SELECT count(*) FROM vector_records WHERE tenant_id = $1 AND collection = $2`,
		ns.Tenant, ns.Collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s/%s: %w", ns.Tenant, ns.Collection, err)
	}
	return n, nil
}

// DeleteTenant removes every record belonging to a tenant across all
// collections. Used when a tenant is offboarded.
func (ix *Index) DeleteTenant(ctx context.Context, tenant string) (int64, error) {
	if tenant == "" {
		return 0, fmt.Errorf("%w: empty tenant", ErrInvalidNamespace)
	}
	tag, err := ix.pool.Exec(ctx, `DELETE FROM vector_records WHERE tenant_id = $1`, tenant)
	if err != nil {
		return 0, fmt.Errorf("delete tenant %s: %w", tenant, err)
	}
	ix.logger.Info("deleted tenant vectors", "tenant", tenant, "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// Health checks that the database is reachable and the pgvector extension
// is installed.
func (ix *Index) Health(ctx context.Context) error {
	var installed bool
	err := ix.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&installed)
	if err != nil {
		return fmt.Errorf("vector index health: %w", err)
	}
	if !installed {
		return errors.New("vector index health: pgvector extension not installed")
	}
	return nil
}
