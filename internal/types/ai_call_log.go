package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AICallLog records every summarization attempt, successful or not, with the
// provider usage figures. One row per call, never updated.
type AICallLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlaceID   string         `gorm:"column:place_id;index" json:"place_id"`
	Model     string         `gorm:"column:model;not null" json:"model"`
	Success   bool           `gorm:"column:success;not null" json:"success"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	Usage     datatypes.JSON `gorm:"column:usage;type:jsonb" json:"usage,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_log" }
