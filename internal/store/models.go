package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SaveRecord is one settings save cycle of a device.
type SaveRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID    int            `gorm:"index:idx_save_device_started,priority:1" json:"device_id"`
	Variant     string         `gorm:"type:varchar(16)" json:"variant"`
	Values      datatypes.JSON `gorm:"type:jsonb" json:"values"`
	Status      string         `gorm:"type:varchar(16)" json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `gorm:"index:idx_save_device_started,priority:2" json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
