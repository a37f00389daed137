package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
)

func message(id, sender, receiver, group, content string, at time.Time) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		GroupID:    group,
		Content:    content,
		CreatedAt:  at,
	}
}

func TestReconcilerClassifiesMessagesByViewer(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "incoming", now))
	r.ApplyLive(message("m2", "alice", "bob", "", "echo", now.Add(time.Second)))
	r.ApplyLive(message("m3", "carol", "", "g1", "group", now))
	r.ApplyLive(message("m4", "dave", "", "", "global", now))

	// Both directions of the bob pair land in one conversation.
	require.Len(t, r.Messages("user:bob"), 2)
	require.Len(t, r.Messages("group:g1"), 1)
	require.Len(t, r.Messages("global"), 1)
}

func TestReconcilerDeduplicatesLiveAgainstHistory(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	// Live messages race ahead of the history fetch.
	r.ApplyLive(message("m2", "bob", "alice", "", "second", now.Add(time.Second)))
	r.ApplyLive(message("m3", "bob", "alice", "", "third", now.Add(2*time.Second)))

	r.ApplyHistory(dto.ConversationHistoryPayload{
		Key: "user:bob",
		Messages: []dto.MessageResponse{
			message("m1", "alice", "bob", "", "first", now),
			message("m2", "bob", "alice", "", "second", now.Add(time.Second)),
		},
	})

	messages := r.Messages("user:bob")
	require.Len(t, messages, 3, "overlap between history and live collapses by id")
	require.Equal(t, []string{"m1", "m2", "m3"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
}

func TestReconcilerIgnoresDuplicateLivePush(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	m := message("m1", "bob", "alice", "", "once", now)
	r.ApplyLive(m)
	r.ApplyLive(m)

	require.Len(t, r.Messages("user:bob"), 1)
	require.Equal(t, int64(1), r.Unread("user:bob"), "duplicates are suppressed before counting")
}

func TestReconcilerUpdatesInPlace(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "first", now))
	r.ApplyLive(message("m2", "bob", "alice", "", "second", now.Add(time.Second)))

	edited := message("m1", "bob", "alice", "", "first (edited)", now)
	edited.Edited = true
	r.ApplyUpdated(edited)

	messages := r.Messages("user:bob")
	require.Equal(t, "m1", messages[0].ID, "edits keep their position")
	require.Equal(t, "first (edited)", messages[0].Content)
	require.True(t, messages[0].Edited)
}

func TestReconcilerDeleteRemovesAcrossConversations(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "keep", now))
	r.ApplyLive(message("m2", "bob", "alice", "", "remove", now.Add(time.Second)))
	r.ApplyLive(message("m3", "carol", "", "g1", "group keep", now))

	r.ApplyDeleted("m2")

	require.Len(t, r.Messages("user:bob"), 1)
	require.Equal(t, "m1", r.Messages("user:bob")[0].ID)
	require.Len(t, r.Messages("group:g1"), 1)

	// Deleting an unknown id is harmless.
	r.ApplyDeleted("ghost")
	require.Len(t, r.Messages("user:bob"), 1)
}

func TestReconcilerDeleteRollsBackLastMessageSummary(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "older", now))
	r.ApplyLive(message("m2", "bob", "alice", "", "latest", now.Add(time.Second)))

	r.ApplyDeleted("m2")

	summaries := r.Summaries()
	require.Len(t, summaries, 1)
	require.Equal(t, "m1", summaries[0].LastMessage.ID)
}

func TestReconcilerUnreadTracksActiveConversation(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "one", now))
	r.ApplyLive(message("m2", "bob", "alice", "", "two", now.Add(time.Second)))
	require.Equal(t, int64(2), r.Unread("user:bob"))

	r.SetActive("user:bob")
	require.Zero(t, r.Unread("user:bob"))

	// Traffic for the open conversation accrues no badge.
	r.ApplyLive(message("m3", "bob", "alice", "", "three", now.Add(2*time.Second)))
	require.Zero(t, r.Unread("user:bob"))

	// The viewer's own echo never counts anywhere.
	r.SetActive("global")
	r.ApplyLive(message("m4", "alice", "bob", "", "mine", now.Add(3*time.Second)))
	require.Zero(t, r.Unread("user:bob"))
}

func TestReconcilerSeedsFromLoginPayload(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.SeedUnread(map[string]int64{"user:bob": 3, "group:g1": 1})
	r.SeedLastMessages(map[string]dto.MessageResponse{
		"user:bob": message("m9", "bob", "alice", "", "latest", now),
	})

	require.Equal(t, int64(3), r.Unread("user:bob"))

	summaries := r.Summaries()
	require.Len(t, summaries, 2)
	require.Equal(t, "user:bob", summaries[0].Key, "conversations with a known last message sort first")
	require.Equal(t, "m9", summaries[0].LastMessage.ID)
}

func TestReconcilerSummariesSortByRecency(t *testing.T) {
	r := NewReconciler("alice")
	now := time.Now()

	r.ApplyLive(message("m1", "bob", "alice", "", "old", now))
	r.ApplyLive(message("m2", "carol", "", "g1", "new", now.Add(time.Minute)))

	summaries := r.Summaries()
	require.Len(t, summaries, 2)
	require.Equal(t, "group:g1", summaries[0].Key)
	require.Equal(t, "user:bob", summaries[1].Key)
}

func TestReconcilerHistoryTrustsServerCounterReset(t *testing.T) {
	r := NewReconciler("alice")

	r.SeedUnread(map[string]int64{"user:bob": 4})
	r.ApplyHistory(dto.ConversationHistoryPayload{Key: "user:bob", Unread: 0})

	require.Zero(t, r.Unread("user:bob"))
	require.Equal(t, "user:bob", r.Active())
}
