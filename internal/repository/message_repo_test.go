package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

func setupRealtimeTestDB(t *testing.T, entities ...interface{}) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(entities...))
	return db
}

func seedMessage(t *testing.T, repo MessageRepository, message models.Message) models.Message {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &message))
	return message
}

func TestMessageRepositoryListPrivateCoversBothDirections(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)
	ctx := context.Background()

	seedMessage(t, repo, models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	seedMessage(t, repo, models.Message{ID: "m2", SenderID: "bob", ReceiverID: "alice", Content: "hey"})
	seedMessage(t, repo, models.Message{ID: "m3", SenderID: "alice", ReceiverID: "carol", Content: "other pair"})
	seedMessage(t, repo, models.Message{ID: "m4", SenderID: "alice", GroupID: "g1", Content: "group noise"})

	messages, err := repo.ListPrivate(ctx, "alice", "bob", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "m1", messages[0].ID)
	require.Equal(t, "m2", messages[1].ID)

	// Order independent of who asks.
	mirrored, err := repo.ListPrivate(ctx, "bob", "alice", time.Time{}, 0)
	require.NoError(t, err)
	require.Equal(t, messages, mirrored)
}

func TestMessageRepositoryListGlobalExcludesAddressedTraffic(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)

	seedMessage(t, repo, models.Message{ID: "m1", SenderID: "alice", Content: "hello everyone"})
	seedMessage(t, repo, models.Message{ID: "m2", SenderID: "alice", ReceiverID: "bob", Content: "private"})
	seedMessage(t, repo, models.Message{ID: "m3", SenderID: "alice", GroupID: "g1", Content: "group"})

	messages, err := repo.ListGlobal(context.Background(), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "m1", messages[0].ID)
}

func TestMessageRepositoryListClampsLimitAndPaginatesBackwards(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		message := models.Message{
			ID:       fmt.Sprintf("m%02d", i),
			SenderID: "alice",
			Content:  fmt.Sprintf("msg %d", i),
		}
		require.NoError(t, repo.Save(ctx, &message))
		require.NoError(t, db.Model(&models.Message{}).Where("id = ?", message.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Second)).Error)
	}

	// Zero limit falls back to the default page of 50, newest window first
	// but returned in chronological order.
	page, err := repo.ListGlobal(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, page, 50)
	require.Equal(t, "m10", page[0].ID)
	require.Equal(t, "m59", page[49].ID)

	// The before cursor walks further into history.
	older, err := repo.ListGlobal(ctx, base.Add(10*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, older, 10)
	require.Equal(t, "m00", older[0].ID)
	require.Equal(t, "m09", older[9].ID)

	capped, err := repo.ListGlobal(ctx, time.Time{}, 1000)
	require.NoError(t, err)
	require.Len(t, capped, 50, "limits above the cap fall back to the default")
}

func TestMessageRepositoryUpdateRequiresSender(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)
	ctx := context.Background()

	seedMessage(t, repo, models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "draft"})

	_, err := repo.Update(ctx, "m1", "bob", "hijacked")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	updated, err := repo.Update(ctx, "m1", "alice", "final")
	require.NoError(t, err)
	require.Equal(t, "final", updated.Content)
	require.True(t, updated.Edited)

	stored, err := repo.FindByID(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "final", stored.Content)
	require.True(t, stored.Edited)
}

func TestMessageRepositoryDeleteTombstones(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)
	ctx := context.Background()

	seedMessage(t, repo, models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "regret"})

	_, err := repo.Delete(ctx, "m1", "bob")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	deleted, err := repo.Delete(ctx, "m1", "alice")
	require.NoError(t, err)
	require.Equal(t, "m1", deleted.ID)

	_, err = repo.FindByID(ctx, "m1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	messages, err := repo.ListPrivate(ctx, "alice", "bob", time.Time{}, 0)
	require.NoError(t, err)
	require.Empty(t, messages, "tombstoned rows never reappear in listings")

	// The row itself survives as a tombstone.
	var count int64
	require.NoError(t, db.Unscoped().Model(&models.Message{}).Where("id = ?", "m1").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestMessageRepositoryClearGroupWipesOnlyThatGroup(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)
	ctx := context.Background()

	seedMessage(t, repo, models.Message{ID: "m1", SenderID: "alice", GroupID: "g1", Content: "a"})
	seedMessage(t, repo, models.Message{ID: "m2", SenderID: "bob", GroupID: "g1", Content: "b"})
	seedMessage(t, repo, models.Message{ID: "m3", SenderID: "alice", GroupID: "g2", Content: "c"})

	require.NoError(t, repo.ClearGroup(ctx, "g1"))

	cleared, err := repo.ListGroup(ctx, "g1", time.Time{}, 0)
	require.NoError(t, err)
	require.Empty(t, cleared)

	intact, err := repo.ListGroup(ctx, "g2", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, intact, 1)
}

func TestMessageModelRejectsAmbiguousChannel(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Message{})
	repo := NewMessageRepository(db)

	err := repo.Save(context.Background(), &models.Message{
		ID:         "m1",
		SenderID:   "alice",
		ReceiverID: "bob",
		GroupID:    "g1",
		Content:    "cannot be both",
	})
	require.ErrorIs(t, err, models.ErrAmbiguousChannel)
}
