package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Channel kinds a message can belong to. Exactly one applies per message.
const (
	ChannelPrivate = "private"
	ChannelGroup   = "group"
	ChannelGlobal  = "global"
)

// ErrAmbiguousChannel indicates a message claims both a receiver and a group.
var ErrAmbiguousChannel = errors.New("message must target a receiver, a group, or neither")

// Message is a single unit of chat content. ReceiverID is set only for
// private messages, GroupID only for group messages; neither means global.
type Message struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	SenderID   string         `gorm:"size:64;index" json:"sender_id"`
	ReceiverID string         `gorm:"size:64;index" json:"receiver_id,omitempty"`
	GroupID    string         `gorm:"size:36;index" json:"group_id,omitempty"`
	Content    string         `gorm:"type:text" json:"content"`
	Edited     bool           `gorm:"not null;default:false" json:"edited"`
	Reports    datatypes.JSON `gorm:"type:json" json:"reports,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave enforces the one-channel invariant at the persistence boundary.
func (m *Message) BeforeSave(_ *gorm.DB) error {
	if m.ReceiverID != "" && m.GroupID != "" {
		return ErrAmbiguousChannel
	}
	return nil
}

// Channel reports which delivery scope the message belongs to.
func (m Message) Channel() string {
	switch {
	case m.ReceiverID != "":
		return ChannelPrivate
	case m.GroupID != "":
		return ChannelGroup
	default:
		return ChannelGlobal
	}
}

// Group is a named chat channel with an explicit member set.
type Group struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	Name      string        `gorm:"size:255;not null" json:"name"`
	Avatar    string        `gorm:"size:512" json:"avatar,omitempty"`
	CreatorID string        `gorm:"size:64;index" json:"creator_id"`
	Members   []GroupMember `json:"members,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// GroupMember is one identity's membership in a group.
type GroupMember struct {
	GroupID   string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID    string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification types mirror the domain actions that produce them.
const (
	NotificationLike    = "LIKE"
	NotificationComment = "COMMENT"
	NotificationFollow  = "FOLLOW"
	NotificationReport  = "REPORT"
)

// Notification is an activity event targeted at a single receiver. Actor
// display fields are denormalized so the conversation list renders without
// a profile lookup.
type Notification struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CreatedByID     string    `gorm:"size:64;index" json:"created_by_id"`
	CreatedByName   string    `gorm:"size:255" json:"created_by_name"`
	CreatedByAvatar string    `gorm:"size:512" json:"created_by_avatar,omitempty"`
	ReceiverID      string    `gorm:"size:64;index" json:"receiver_id"`
	Type            string    `gorm:"size:32;not null" json:"type"`
	Content         string    `gorm:"type:text" json:"content"`
	PostURL         string    `gorm:"size:512" json:"post_url,omitempty"`
	IsRead          bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
