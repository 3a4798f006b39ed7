package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActorSystem is the actor recorded for pipeline-originated entries.
const ActorSystem = "system"

// Audit actions.
const (
	ActionIntentCreated      = "intent.created"
	ActionPaymentApproved    = "payment.approved"
	ActionPaymentRejected    = "payment.rejected"
	ActionPaymentMismatch    = "payment.amount_mismatch"
	ActionPaymentUnroutable  = "payment.unroutable"
	ActionWebhookFetchFailed = "webhook.fetch_failed"
	ActionWebhookApplyFailed = "webhook.apply_failed"
	ActionDeviceNotified     = "device.notified"
	ActionDeviceNotifyFailed = "device.notify_failed"
	ActionDeviceTest         = "device.test"
	ActionSessionOpened      = "session.opened"
	ActionSessionConflict    = "session.conflict"
	ActionSessionExpired     = "session.expired"
	ActionChairCreated       = "chair.created"
	ActionChairUpdated       = "chair.updated"
	ActionChairDeactivated   = "chair.deactivated"
)

// Entity types.
const (
	EntityChair   = "chair"
	EntityPayment = "payment"
	EntitySession = "session"
	EntityDevice  = "device"
)

// AuditLog is an append-only record of an admin action or system event.
type AuditLog struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Actor      string    `gorm:"size:64;not null;index" json:"actor"`
	Action     string    `gorm:"size:64;not null;index" json:"action"`
	EntityType string    `gorm:"size:32;not null" json:"entityType"`
	EntityID   string    `gorm:"size:64;index" json:"entityId"`
	ChairID    string    `gorm:"size:64;index" json:"chairId,omitempty"`
	Message    string    `json:"message"`
	OldValues  JSON      `gorm:"type:jsonb" json:"oldValues,omitempty"`
	NewValues  JSON      `gorm:"type:jsonb" json:"newValues,omitempty"`
	IPAddress  string    `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
