package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

func TestGroupRepositoryCreateAndFindPreloadsMembers(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Group{}, &models.GroupMember{})
	repo := NewGroupRepository(db)
	ctx := context.Background()

	group := models.Group{
		ID:        "g1",
		Name:      "Amalfi Coast",
		CreatorID: "alice",
		Members: []models.GroupMember{
			{GroupID: "g1", UserID: "alice"},
			{GroupID: "g1", UserID: "bob"},
		},
	}
	require.NoError(t, repo.Create(ctx, &group))

	found, err := repo.FindByID(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "Amalfi Coast", found.Name)
	require.Len(t, found.Members, 2)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGroupRepositoryListByMember(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Group{}, &models.GroupMember{})
	repo := NewGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Group{
		ID: "g1", Name: "Hikers", CreatorID: "alice",
		Members: []models.GroupMember{{GroupID: "g1", UserID: "alice"}, {GroupID: "g1", UserID: "bob"}},
	}))
	require.NoError(t, repo.Create(ctx, &models.Group{
		ID: "g2", Name: "Foodies", CreatorID: "carol",
		Members: []models.GroupMember{{GroupID: "g2", UserID: "carol"}},
	}))

	groups, err := repo.ListByMember(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "g1", groups[0].ID)

	none, err := repo.ListByMember(ctx, "dave")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestGroupRepositoryAddMemberIsIdempotent(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Group{}, &models.GroupMember{})
	repo := NewGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Group{
		ID: "g1", Name: "Divers", CreatorID: "alice",
		Members: []models.GroupMember{{GroupID: "g1", UserID: "alice"}},
	}))

	require.NoError(t, repo.AddMember(ctx, "g1", "bob"))
	require.NoError(t, repo.AddMember(ctx, "g1", "bob"))

	found, err := repo.FindByID(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, found.Members, 2, "re-adding an existing member is a no-op")
}

func TestGroupRepositoryRemoveMember(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Group{}, &models.GroupMember{})
	repo := NewGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Group{
		ID: "g1", Name: "Surfers", CreatorID: "alice",
		Members: []models.GroupMember{{GroupID: "g1", UserID: "alice"}, {GroupID: "g1", UserID: "bob"}},
	}))

	require.NoError(t, repo.RemoveMember(ctx, "g1", "bob"))

	found, err := repo.FindByID(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, found.Members, 1)
	require.Equal(t, "alice", found.Members[0].UserID)
}

func TestGroupRepositoryListAll(t *testing.T) {
	db := setupRealtimeTestDB(t, &models.Group{}, &models.GroupMember{})
	repo := NewGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Group{ID: "g1", Name: "One", CreatorID: "a"}))
	require.NoError(t, repo.Create(ctx, &models.Group{ID: "g2", Name: "Two", CreatorID: "b"}))

	groups, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
}
