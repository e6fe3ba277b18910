//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/pagination"
	"github.com/studium-labs/studium/internal/testutil"
)

func newStoredSession(userID string) *domain.ChatSession {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.NewChatSession(uuid.NewString(), userID, "Linear Algebra", "openai", "gpt-4o-mini", now)
}

func TestChatSessionRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	session := newStoredSession("user-1")
	session.PromptGeneral = "Be a patient tutor."
	session.Persona = "First-year student"
	require.NoError(t, repo.Create(ctx, session))

	retrieved, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, domain.SessionStatusActive, retrieved.Status)
	assert.Equal(t, "Be a patient tutor.", retrieved.PromptGeneral)
	assert.Equal(t, "First-year student", retrieved.Persona)
	assert.Empty(t, retrieved.Messages)
}

func TestChatSessionRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatSessionRepository_AppendMessages(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	session := newStoredSession("user-1")
	require.NoError(t, repo.Create(ctx, session))

	page := 12
	now := time.Now().UTC().Truncate(time.Microsecond)
	first := []domain.Message{
		{Role: domain.RoleSystem, Content: "# General Prompt\nBe a patient tutor.", CreatedAt: now},
		{Role: domain.RoleUser, Content: "What is a matrix?", CreatedAt: now},
		{Role: domain.RoleAssistant, Content: "A rectangular array.", Sources: []domain.Source{
			{DocumentID: uuid.NewString(), Filename: "notes.pdf", Page: &page},
		}, CreatedAt: now},
	}
	require.NoError(t, repo.AppendMessages(ctx, session.ID, first))

	second := []domain.Message{
		{Role: domain.RoleUser, Content: "And a vector?", CreatedAt: now},
		{Role: domain.RoleAssistant, Content: "A one-column matrix.", CreatedAt: now},
	}
	require.NoError(t, repo.AppendMessages(ctx, session.ID, second))

	retrieved, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, retrieved.Messages, 5)
	assert.Equal(t, domain.RoleSystem, retrieved.Messages[0].Role)
	assert.Equal(t, "What is a matrix?", retrieved.Messages[1].Content)
	require.Len(t, retrieved.Messages[2].Sources, 1)
	assert.Equal(t, "notes.pdf", retrieved.Messages[2].Sources[0].Filename)
	require.NotNil(t, retrieved.Messages[2].Sources[0].Page)
	assert.Equal(t, 12, *retrieved.Messages[2].Sources[0].Page)
	assert.Equal(t, "A one-column matrix.", retrieved.Messages[4].Content)
}

func TestChatSessionRepository_AppendMessages_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	err := repo.AppendMessages(ctx, uuid.NewString(), []domain.Message{
		{Role: domain.RoleUser, Content: "lost"},
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatSessionRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	session := newStoredSession("user-1")
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.UpdateStatus(ctx, session.ID, domain.SessionStatusCompleted))

	retrieved, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, retrieved.Status)
	assert.False(t, retrieved.IsActive())
}

func TestChatSessionRepository_ListByUserWithCursor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChatSessionRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		session := newStoredSession("user-1")
		session.CreatedAt = base.Add(time.Duration(i) * time.Second)
		session.UpdatedAt = session.CreatedAt
		require.NoError(t, repo.Create(ctx, session))
	}
	other := newStoredSession("user-2")
	require.NoError(t, repo.Create(ctx, other))

	page1, err := repo.ListByUserWithCursor(ctx, "user-1", nil, 3)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 3)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextCursor)

	// Newest first
	assert.True(t, page1.Items[0].UpdatedAt.After(page1.Items[2].UpdatedAt))

	decoded, err := pagination.DecodeCursor(page1.NextCursor)
	require.NoError(t, err)

	page2, err := repo.ListByUserWithCursor(ctx, "user-1", decoded, 3)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.False(t, page2.HasMore)
	assert.Empty(t, page2.NextCursor)

	// No overlap between pages
	seen := map[string]bool{}
	for _, s := range page1.Items {
		seen[s.ID] = true
	}
	for _, s := range page2.Items {
		assert.False(t, seen[s.ID])
	}
}
