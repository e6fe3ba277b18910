package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studium-labs/studium/internal/chat"
	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/pagination"
)

const chatSessionColumns = `id, user_id, title, status, provider, model, prompt_general, task, persona, objective, prompt_specific, messages, created_at, updated_at`

type ChatSessionRepository struct {
	db dbtx
}

func NewChatSessionRepository(pool *pgxpool.Pool) *ChatSessionRepository {
	return &ChatSessionRepository{db: pool}
}

func NewChatSessionRepositoryWithTx(tx pgx.Tx) *ChatSessionRepository {
	return &ChatSessionRepository{db: tx}
}

func (r *ChatSessionRepository) Create(ctx context.Context, s *domain.ChatSession) error {
	messages, err := marshalMessages(s.Messages)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, status, provider, model, prompt_general, task, persona, objective, prompt_specific, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.UserID, s.Title, s.Status, s.Provider, s.Model,
		s.PromptGeneral, s.Task, s.Persona, s.Objective, s.PromptSpecific,
		messages, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *ChatSessionRepository) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = $1`,
		id,
	)
	s, err := scanChatSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *ChatSessionRepository) ListByUserWithCursor(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*chat.SessionPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+chatSessionColumns+`
			 FROM chat_sessions
			 WHERE user_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			userID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+chatSessionColumns+`
			 FROM chat_sessions
			 WHERE user_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			userID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanChatSessionRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &chat.SessionPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// AppendMessages appends to the session's message history in one statement,
// so a turn's messages land together or not at all.
func (r *ChatSessionRepository) AppendMessages(ctx context.Context, sessionID string, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	encoded, err := marshalMessages(messages)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chat_sessions
		 SET messages = messages || $1::jsonb, updated_at = $2
		 WHERE id = $3`,
		encoded, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *ChatSessionRepository) UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chat_sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func marshalMessages(messages []domain.Message) ([]byte, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	return json.Marshal(messages)
}

func scanChatSession(row pgx.Row) (*domain.ChatSession, error) {
	var s domain.ChatSession
	var messages []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.Provider, &s.Model,
		&s.PromptGeneral, &s.Task, &s.Persona, &s.Objective, &s.PromptSpecific,
		&messages, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &s.Messages); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func scanChatSessionRows(rows pgx.Rows) ([]*domain.ChatSession, error) {
	var results []*domain.ChatSession
	for rows.Next() {
		var s domain.ChatSession
		var messages []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.Provider, &s.Model,
			&s.PromptGeneral, &s.Task, &s.Persona, &s.Objective, &s.PromptSpecific,
			&messages, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			if err := json.Unmarshal(messages, &s.Messages); err != nil {
				return nil, err
			}
		}
		results = append(results, &s)
	}
	return results, rows.Err()
}
