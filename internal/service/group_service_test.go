package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

type stubGroupRepo struct {
	groups map[string]*models.Group
}

func newStubGroupRepo() *stubGroupRepo {
	return &stubGroupRepo{groups: make(map[string]*models.Group)}
}

func (s *stubGroupRepo) Create(ctx context.Context, group *models.Group) error {
	copied := *group
	s.groups[group.ID] = &copied
	return nil
}

func (s *stubGroupRepo) FindByID(ctx context.Context, id string) (models.Group, error) {
	group, ok := s.groups[id]
	if !ok {
		return models.Group{}, gorm.ErrRecordNotFound
	}
	return *group, nil
}

func (s *stubGroupRepo) ListAll(ctx context.Context) ([]models.Group, error) {
	out := make([]models.Group, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, *group)
	}
	return out, nil
}

func (s *stubGroupRepo) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	var out []models.Group
	for _, group := range s.groups {
		for _, member := range group.Members {
			if member.UserID == userID {
				out = append(out, *group)
				break
			}
		}
	}
	return out, nil
}

func (s *stubGroupRepo) AddMember(ctx context.Context, groupID, userID string) error {
	group, ok := s.groups[groupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, member := range group.Members {
		if member.UserID == userID {
			return nil
		}
	}
	group.Members = append(group.Members, models.GroupMember{GroupID: groupID, UserID: userID})
	return nil
}

func (s *stubGroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	group, ok := s.groups[groupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i, member := range group.Members {
		if member.UserID == userID {
			group.Members = append(group.Members[:i], group.Members[i+1:]...)
			return nil
		}
	}
	return nil
}

func setupGroupFixture(t *testing.T) (*GroupService, *PresenceService, *stubGroupRepo) {
	t.Helper()
	presence := NewPresenceService(nil, zerolog.Nop())
	repo := newStubGroupRepo()
	groups := NewGroupService(repo, presence, zerolog.Nop())
	return groups, presence, repo
}

func registerReady(t *testing.T, presence *PresenceService, identity string) *Client {
	t.Helper()
	client := newTestClient(identity, identity)
	_, err := presence.Register(context.Background(), client)
	require.NoError(t, err)
	drainPushes(client)
	return client
}

func TestGroupCreateAutoJoinsCreatorAndNotifiesInitialMembers(t *testing.T) {
	groups, presence, repo := setupGroupFixture(t)

	alice := registerReady(t, presence, "alice")
	bob := registerReady(t, presence, "bob")

	response, err := groups.Create(context.Background(), alice, dto.GroupCreateRequest{
		Name:      "Kyoto Trip",
		MemberIDs: []string{"bob", "carol"},
	})
	require.NoError(t, err)
	require.Equal(t, "alice", response.CreatorID)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, response.MemberIDs)

	require.True(t, groups.IsMember(response.ID, "alice"), "creator is auto-joined")
	require.True(t, groups.IsMember(response.ID, "carol"), "offline members still join")

	require.Contains(t, pushEvents(drainPushes(alice)), dto.EventGroupCreated)
	require.Contains(t, pushEvents(drainPushes(bob)), dto.EventGroupCreated)

	require.True(t, alice.hasGroupRoute(response.ID))
	require.True(t, bob.hasGroupRoute(response.ID))

	stored, err := repo.FindByID(context.Background(), response.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 3)
}

func TestGroupJoinBroadcastsToPostMutationMemberSet(t *testing.T) {
	groups, presence, _ := setupGroupFixture(t)

	alice := registerReady(t, presence, "alice")
	_, err := groups.Create(context.Background(), alice, dto.GroupCreateRequest{Name: "Hostel Crew"})
	require.NoError(t, err)
	groupID := singleGroupID(t, groups, "alice")
	drainPushes(alice)

	bob := registerReady(t, presence, "bob")
	require.NoError(t, groups.Join(context.Background(), bob, groupID))

	require.Contains(t, pushEvents(drainPushes(alice)), dto.EventUserJoinedGroup)
	// The joiner receives their own confirmation from the same broadcast.
	require.Contains(t, pushEvents(drainPushes(bob)), dto.EventUserJoinedGroup)
	require.True(t, bob.hasGroupRoute(groupID))
}

func TestGroupLeaveBroadcastsBeforeRemoval(t *testing.T) {
	groups, presence, _ := setupGroupFixture(t)

	alice := registerReady(t, presence, "alice")
	_, err := groups.Create(context.Background(), alice, dto.GroupCreateRequest{Name: "Trail Mix", MemberIDs: []string{"bob"}})
	require.NoError(t, err)
	groupID := singleGroupID(t, groups, "alice")

	bob := registerReady(t, presence, "bob")
	require.NoError(t, groups.Join(context.Background(), bob, groupID))
	drainPushes(alice)
	drainPushes(bob)

	require.NoError(t, groups.Leave(context.Background(), bob, groupID))

	// The departing member still sees their own departure.
	require.Contains(t, pushEvents(drainPushes(bob)), dto.EventUserLeftGroup)
	require.Contains(t, pushEvents(drainPushes(alice)), dto.EventUserLeftGroup)

	require.False(t, groups.IsMember(groupID, "bob"))
	require.False(t, bob.hasGroupRoute(groupID))
}

func TestGroupLeaveByNonMemberFails(t *testing.T) {
	groups, presence, _ := setupGroupFixture(t)

	alice := registerReady(t, presence, "alice")
	_, err := groups.Create(context.Background(), alice, dto.GroupCreateRequest{Name: "Solo"})
	require.NoError(t, err)
	groupID := singleGroupID(t, groups, "alice")

	stranger := registerReady(t, presence, "mallory")
	require.ErrorIs(t, groups.Leave(context.Background(), stranger, groupID), ErrNotGroupMember)
}

func TestBroadcastToGroupRequiresArmedRoute(t *testing.T) {
	groups, presence, _ := setupGroupFixture(t)

	alice := registerReady(t, presence, "alice")
	_, err := groups.Create(context.Background(), alice, dto.GroupCreateRequest{Name: "Beach Day", MemberIDs: []string{"bob"}})
	require.NoError(t, err)
	groupID := singleGroupID(t, groups, "alice")
	drainPushes(alice)

	// Bob reconnects: membership persists but the new handle has no live
	// route until a join or login hydration arms one.
	bob := registerReady(t, presence, "bob")

	groups.BroadcastToGroup(groupID, dto.EventGroupMessage, dto.MessageResponse{ID: "m1"})
	require.Contains(t, pushEvents(drainPushes(alice)), dto.EventGroupMessage)
	require.Empty(t, drainPushes(bob))

	bob.armGroupRoute(groupID)
	groups.BroadcastToGroup(groupID, dto.EventGroupMessage, dto.MessageResponse{ID: "m2"})
	require.Contains(t, pushEvents(drainPushes(bob)), dto.EventGroupMessage)
}

func TestGroupHydrateLoadsPersistedMembership(t *testing.T) {
	groups, _, repo := setupGroupFixture(t)

	require.NoError(t, repo.Create(context.Background(), &models.Group{
		ID:        "g1",
		Name:      "Old Timers",
		CreatorID: "alice",
		Members: []models.GroupMember{
			{GroupID: "g1", UserID: "alice"},
			{GroupID: "g1", UserID: "bob"},
		},
	}))

	require.NoError(t, groups.Hydrate(context.Background()))
	require.True(t, groups.IsMember("g1", "alice"))
	require.True(t, groups.IsMember("g1", "bob"))
	require.False(t, groups.IsMember("g1", "carol"))
}

// singleGroupID returns the one group id the identity belongs to.
func singleGroupID(t *testing.T, groups *GroupService, identity string) string {
	t.Helper()
	list, err := groups.GroupsOf(context.Background(), identity)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0].ID
}
