package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is append-only and best effort: a failed insert never rolls back
// the operation it describes.
type AuditLog struct {
	gorm.Model

	Actor    string         `gorm:"size:64;index"`
	Action   string         `gorm:"size:64;index"`
	EntityID string         `gorm:"size:64"`
	Details  datatypes.JSON `json:"details"`
}
