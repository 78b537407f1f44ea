//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"studybuddy-backend/internal/database"
	"studybuddy-backend/internal/logger"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "studybuddy_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/studybuddy_test?sslmode=disable", host, port.Port())

	pool, err := database.NewPostgresPool(dsn)
	if err != nil {
		panic(err)
	}
	if err := database.RunMigrations(pool, "../../migrations", logger.Nop()); err != nil {
		panic(err)
	}
	testPostgresPool = pool

	code := m.Run()
	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newPostgresStore(t *testing.T) *PostgresHistoryStore {
	t.Helper()
	_, err := testPostgresPool.Exec(context.Background(), `TRUNCATE study_sessions`)
	require.NoError(t, err)
	return NewPostgresHistoryStore(testPostgresPool, logger.Nop())
}

func insertRawSession(t *testing.T, userID, summary, keywords string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPostgresPool.Exec(context.Background(),
		`INSERT INTO study_sessions (`+sessionColumns+`)
		VALUES ($1, $2, 'text', $3, 'simple', 'q', 50, 'ok', $4::jsonb, 'Easy', '1 min', NOW())`,
		id, userID, summary, keywords)
	require.NoError(t, err)
	return id
}

func TestPostgresHistoryStore_OrdersBySequenceNotTimestamp(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	older := newSession("1", "appended first")
	older.CreatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := newSession("1", "appended second")
	newer.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, "1", older))
	require.NoError(t, store.Append(ctx, "1", newer))

	got, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
	assert.Equal(t, time.UTC, got[0].CreatedAt.Location())
}

func TestPostgresHistoryStore_SkipsInvalidRows(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	good := newSession("1", "good")
	require.NoError(t, store.Append(ctx, "1", good))
	insertRawSession(t, "1", "s", `{"not":"a list"}`)
	blank := insertRawSession(t, "1", "   ", `[]`)

	got, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good.ID, got[0].ID)
	assert.Equal(t, good.Keywords, got[0].Keywords)

	_, err = store.Get(ctx, "1", blank)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresHistoryStore_Get(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	s := newSession("1", "lookup")
	require.NoError(t, store.Append(ctx, "1", s))

	got, err := store.Get(ctx, "1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.OriginalText, got.OriginalText)
	assert.Equal(t, s.Difficulty, got.Difficulty)
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "2", s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Get(ctx, "1", uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
