package services

import (
	"encoding/json"
	"log"

	"bimbridge/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit writes append-only audit entries. Failures are logged and swallowed;
// an audit write must never roll back the operation it describes.
type Audit struct {
	db *gorm.DB
}

func NewAudit(db *gorm.DB) *Audit {
	return &Audit{db: db}
}

func (a *Audit) Log(actor, action, entityID string, details map[string]any) {
	payload, _ := json.Marshal(details)
	err := a.db.Create(&models.AuditLog{
		Actor:    actor,
		Action:   action,
		EntityID: entityID,
		Details:  datatypes.JSON(payload),
	}).Error
	if err != nil {
		log.Printf("⚠️  Audit write failed (%s/%s): %v", actor, action, err)
	}
}
