package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/provider"
)

// Store persists conversations and turns in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Ensure returns an existing conversation the tenant owns, or creates a
// new one when id is uuid.Nil.
func (s *Store) Ensure(ctx context.Context, tenant, userID string, id uuid.UUID) (uuid.UUID, error) {
	if id == uuid.Nil {
		id = uuid.New()
		_, err := s.pool.Exec(ctx,
			`INSERT INTO conversations (id, tenant_id, user_id) VALUES ($1, $2, $3)`,
			id, tenant, userID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("create conversation: %w", err)
		}
		s.logger.Debug("created conversation", "conversation_id", id, "tenant", tenant)
		return id, nil
	}

	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id FROM conversations WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != tenant) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return id, nil
}

// History returns the tenant's turns for a conversation in ordinal order.
func (s *Store) History(ctx context.Context, tenant string, id uuid.UUID) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.conversation_id, t.ordinal, t.role, t.content, t.tool_calls, t.tool_call_id, t.partial, t.created_at
		FROM conversation_turns t
		JOIN conversations c ON c.id = t.conversation_id
		WHERE t.conversation_id = $1 AND c.tenant_id = $2
		ORDER BY t.ordinal`,
		id, tenant)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", id, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t         Turn
			role      string
			toolCalls []byte
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Ordinal, &role, &t.Content,
			&toolCalls, &t.ToolCallID, &t.Partial, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = provider.Role(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("parse tool calls of turn %s: %w", t.ID, err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history for %s: %w", id, err)
	}
	return turns, nil
}

// Append stores turns at the end of a conversation. An advisory lock on
// the conversation serializes concurrent appends so ordinals never
// interleave, and the whole batch commits or none of it does.
func (s *Store) Append(ctx context.Context, id uuid.UUID, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, id); err != nil {
		return fmt.Errorf("lock conversation %s: %w", id, err)
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM conversation_turns WHERE conversation_id = $1`,
		id).Scan(&next); err != nil {
		return fmt.Errorf("next ordinal for %s: %w", id, err)
	}

	for i, t := range turns {
		var toolCalls []byte
		if len(t.ToolCalls) > 0 {
			toolCalls, err = json.Marshal(t.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
		}
		turnID := t.ID
		if turnID == uuid.Nil {
			turnID = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_turns (id, conversation_id, ordinal, role, content, tool_calls, tool_call_id, partial)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			turnID, id, next+i, string(t.Role), t.Content, toolCalls, t.ToolCallID, t.Partial)
		if err != nil {
			return fmt.Errorf("insert turn %d of %s: %w", next+i, id, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch conversation %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append to %s: %w", id, err)
	}
	return nil
}

// List returns the tenant's conversations, most recently active first.
func (s *Store) List(ctx context.Context, tenant string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, title, created_at, updated_at
		FROM conversations WHERE tenant_id = $1
		ORDER BY updated_at DESC LIMIT $2`,
		tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Tenant, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// Delete removes a conversation and its turns.
func (s *Store) Delete(ctx context.Context, tenant string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND tenant_id = $2`, id, tenant)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
