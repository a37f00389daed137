package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

// GroupRepository persists groups and their membership rows.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	FindByID(ctx context.Context, id string) (models.Group, error)
	ListAll(ctx context.Context) ([]models.Group, error)
	ListByMember(ctx context.Context, userID string) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository constructs a group repository backed by GORM.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *groupRepository) FindByID(ctx context.Context, id string) (models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).Preload("Members").First(&group, "id = ?", id).Error; err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (r *groupRepository) ListAll(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).Preload("Members").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *groupRepository) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *groupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	member := models.GroupMember{GroupID: groupID, UserID: userID}
	return r.db.WithContext(ctx).FirstOrCreate(&member, models.GroupMember{GroupID: groupID, UserID: userID}).Error
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{}).Error
}
