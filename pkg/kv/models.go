package kv

import (
	"time"

	"gorm.io/datatypes"
)

// EntryModel is the GORM row backing GormStore.
type EntryModel struct {
	Key       string         `gorm:"primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (EntryModel) TableName() string { return "kv_entries" }
