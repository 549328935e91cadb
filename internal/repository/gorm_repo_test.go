package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/pkg/database"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: ":memory:",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.StreamModel{},
		&domain.StreamParticipantModel{},
	))
	return db
}

func seedStream(t *testing.T, db *gorm.DB, id string, userID int64, live bool) {
	t.Helper()
	require.NoError(t, db.Create(&domain.StreamModel{
		ID:     id,
		UserID: userID,
		Title:  "test stream",
		IsLive: live,
	}).Error)
}

func TestUserRepositoryGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.UserModel{ID: 1, Username: "ada", Email: "ada@example.com"}).Error)

	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	_, err = repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStreamRepositoryGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewGormStreamRepository(db)
	ctx := context.Background()

	seedStream(t, db, "abc123", 1, true)

	stream, err := repo.GetByID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stream.UserID)
	assert.True(t, stream.IsLive)
	assert.Nil(t, stream.EndedAt)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestStreamRepositorySetViewerCount(t *testing.T) {
	db := testDB(t)
	repo := NewGormStreamRepository(db)
	ctx := context.Background()

	seedStream(t, db, "abc123", 1, true)

	require.NoError(t, repo.SetViewerCount(ctx, "abc123", 5))
	stream, err := repo.GetByID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 5, stream.ViewerCount)

	// Last writer wins.
	require.NoError(t, repo.SetViewerCount(ctx, "abc123", 2))
	stream, err = repo.GetByID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 2, stream.ViewerCount)

	assert.ErrorIs(t, repo.SetViewerCount(ctx, "nope", 1), ErrStreamNotFound)
}

func TestStreamRepositoryEnd(t *testing.T) {
	db := testDB(t)
	repo := NewGormStreamRepository(db)
	ctx := context.Background()

	seedStream(t, db, "abc123", 1, true)
	require.NoError(t, repo.SetViewerCount(ctx, "abc123", 3))

	endedAt := time.Now().Truncate(time.Second)
	require.NoError(t, repo.End(ctx, "abc123", endedAt))

	stream, err := repo.GetByID(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, stream.IsLive)
	assert.Equal(t, 0, stream.ViewerCount)
	require.NotNil(t, stream.EndedAt)

	// Ending twice affects nothing. Same for a stream that never existed.
	assert.ErrorIs(t, repo.End(ctx, "abc123", time.Now()), ErrStreamNotFound)
	assert.ErrorIs(t, repo.End(ctx, "nope", time.Now()), ErrStreamNotFound)
}

func TestParticipantRepositoryExists(t *testing.T) {
	db := testDB(t)
	repo := NewGormParticipantRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.StreamParticipantModel{StreamID: "abc123", UserID: 2}).Error)

	ok, err := repo.Exists(ctx, "abc123", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "abc123", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Exists(ctx, "other", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}
