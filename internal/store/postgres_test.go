package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voice-rooms/internal/app"
)

// newTestPostgres connects to TEST_PG_URL and applies migrations, or skips
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_PG_URL")
	if url == "" {
		t.Skip("TEST_PG_URL not set")
	}
	ctx := context.Background()
	pg, err := NewPostgres(ctx, app.Config{PGURL: url, PGMaxConn: 4}, app.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, RunMigrations(ctx, pg, app.DiscardLogger()))
	return pg
}

func TestPostgresRooms(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()

	r := Room{ID: uuid.NewString(), Name: "lobby", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, pg.InsertRoom(ctx, r))

	got, err := pg.FindRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))

	_, err = pg.FindRoom(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := pg.ListRooms(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestPostgresMessagesLatestOldestFirst(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()
	roomID := uuid.NewString()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, pg.InsertMessage(ctx, Message{
			ID: uuid.NewString(), RoomID: roomID, UserID: "u1", Username: "ann",
			Message: text, MessageType: MessageText, Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := pg.FindMessages(ctx, roomID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Message)
	assert.Equal(t, "three", msgs[1].Message)
	assert.Empty(t, msgs[0].FileURL)
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	pg := newTestPostgres(t)
	require.NoError(t, RunMigrations(context.Background(), pg, app.DiscardLogger()))
}

func TestMigrationFilesSorted(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}
