package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Offline change types.
const (
	ChangeTypeCreate = "create"
	ChangeTypeUpdate = "update"
	ChangeTypeDelete = "delete"
)

// OfflineChange is a mutation recorded while disconnected, drained against
// the server on reconnect.
type OfflineChange struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	// Namespace scopes the change to a user (or the guest namespace).
	Namespace string     `json:"-" gorm:"index;not null"`
	Type      string     `json:"type" gorm:"not null"`
	GoalID    *uuid.UUID `json:"goalId" gorm:"type:uuid"`
	Payload   []byte     `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
	Synced    bool       `json:"synced" gorm:"default:false;index"`
}

func (c *OfflineChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Tombstone marks a goal deleted locally but not yet confirmed by the
// server. It keeps a server pull from resurrecting the goal.
type Tombstone struct {
	GoalID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Namespace string    `gorm:"primaryKey"`
	DeletedAt time.Time
}
