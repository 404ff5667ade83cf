package models

import (
	"time"
)

// Slot is one durable key/value pair of persisted client state.
type Slot struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Slot) TableName() string {
	return "state_slots"
}
