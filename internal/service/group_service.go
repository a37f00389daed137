package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/repository"
)

// ErrNotGroupMember rejects group traffic from identities outside the member set.
var ErrNotGroupMember = errors.New("identity is not a member of the group")

// GroupService is the in-memory membership cache the router fans group
// traffic out against, backed by the group repository.
type GroupService struct {
	repo     repository.GroupRepository
	presence *PresenceService
	logger   zerolog.Logger

	locks *keyedMutex

	mu      sync.RWMutex
	members map[string]map[string]struct{} // group id -> member identity set
}

// NewGroupService constructs the membership cache.
func NewGroupService(repo repository.GroupRepository, presence *PresenceService, logger zerolog.Logger) *GroupService {
	return &GroupService{
		repo:     repo,
		presence: presence,
		logger:   logger.With().Str("component", "group_service").Logger(),
		locks:    newKeyedMutex(),
		members:  make(map[string]map[string]struct{}),
	}
}

// Hydrate loads all persisted groups into the cache. Called once at startup.
func (s *GroupService) Hydrate(ctx context.Context) error {
	groups, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, group := range groups {
		set := make(map[string]struct{}, len(group.Members))
		for _, member := range group.Members {
			set[member.UserID] = struct{}{}
		}
		s.members[group.ID] = set
	}

	s.logger.Info().Int("groups", len(groups)).Msg("group membership cache hydrated")
	return nil
}

// Create allocates a group, auto-joins the creator and notifies all initial
// members so their conversation lists update without a manual refresh.
func (s *GroupService) Create(ctx context.Context, creator *Client, req dto.GroupCreateRequest) (dto.GroupResponse, error) {
	creatorID := creator.Identity()

	memberSet := map[string]struct{}{creatorID: {}}
	for _, id := range req.MemberIDs {
		if id != "" {
			memberSet[id] = struct{}{}
		}
	}

	group := models.Group{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Avatar:    req.Avatar,
		CreatorID: creatorID,
	}
	for id := range memberSet {
		group.Members = append(group.Members, models.GroupMember{GroupID: group.ID, UserID: id})
	}

	if err := s.repo.Create(ctx, &group); err != nil {
		return dto.GroupResponse{}, err
	}

	s.mu.Lock()
	s.members[group.ID] = memberSet
	s.mu.Unlock()

	creator.armGroupRoute(group.ID)

	response := dto.NewGroupResponse(group)
	for id := range memberSet {
		if client, ok := s.presence.Get(id); ok {
			// Initial members are auto-joined, so their live route is armed
			// along with the groupCreated push.
			client.armGroupRoute(group.ID)
			client.Push(dto.EventGroupCreated, response)
		}
	}

	s.logger.Info().Str("group_id", group.ID).Str("creator", creatorID).Int("members", len(memberSet)).Msg("group created")
	return response, nil
}

// Join adds the identity to the group and broadcasts userJoinedGroup to the
// post-mutation member set, so the joiner receives their own confirmation.
func (s *GroupService) Join(ctx context.Context, client *Client, groupID string) error {
	identity := client.Identity()

	lock := s.locks.lock("group:" + groupID)
	defer lock.Unlock()

	if _, err := s.repo.FindByID(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.AddMember(ctx, groupID, identity); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.members[groupID]; !ok {
		s.members[groupID] = make(map[string]struct{})
	}
	s.members[groupID][identity] = struct{}{}
	s.mu.Unlock()

	client.armGroupRoute(groupID)

	s.BroadcastToGroup(groupID, dto.EventUserJoinedGroup, dto.GroupMembershipPayload{
		GroupID:     groupID,
		Identity:    identity,
		DisplayName: client.DisplayName(),
	})

	return nil
}

// Leave broadcasts userLeftGroup to the pre-mutation member set (so the
// leaving member still receives their own departure confirmation), then
// removes the identity.
func (s *GroupService) Leave(ctx context.Context, client *Client, groupID string) error {
	identity := client.Identity()

	lock := s.locks.lock("group:" + groupID)
	defer lock.Unlock()

	if !s.IsMember(groupID, identity) {
		return ErrNotGroupMember
	}

	s.BroadcastToGroup(groupID, dto.EventUserLeftGroup, dto.GroupMembershipPayload{
		GroupID:     groupID,
		Identity:    identity,
		DisplayName: client.DisplayName(),
	})

	if err := s.repo.RemoveMember(ctx, groupID, identity); err != nil {
		return err
	}

	s.mu.Lock()
	if set, ok := s.members[groupID]; ok {
		delete(set, identity)
	}
	s.mu.Unlock()

	client.disarmGroupRoute(groupID)
	return nil
}

// Members returns the member identity set of the group at this instant.
func (s *GroupService) Members(groupID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[groupID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether the identity belongs to the group.
func (s *GroupService) IsMember(groupID, identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[groupID]
	if !ok {
		return false
	}
	_, ok = set[identity]
	return ok
}

// GroupsOf lists the groups the identity belongs to, used to hydrate the
// conversation list after login.
func (s *GroupService) GroupsOf(ctx context.Context, identity string) ([]dto.GroupResponse, error) {
	groups, err := s.repo.ListByMember(ctx, identity)
	if err != nil {
		return nil, err
	}
	return dto.NewGroupResponseSlice(groups), nil
}

// BroadcastToGroup delivers an event to every member whose current connection
// has the group's live route armed. Fire-and-forget.
func (s *GroupService) BroadcastToGroup(groupID, event string, data interface{}) {
	for _, identity := range s.Members(groupID) {
		client, ok := s.presence.Get(identity)
		if !ok || !client.hasGroupRoute(groupID) {
			continue
		}
		client.Push(event, data)
	}
}
