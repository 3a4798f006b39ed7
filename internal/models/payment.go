package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the closed internal status vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusRejected || s == PaymentStatusCancelled
}

// Valid reports whether s belongs to the vocabulary.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.Terminal()
}

// Status detail values recorded locally.
const (
	StatusDetailAmountMismatch = "amount_mismatch"
)

// Payment is the local record of one processor payment.
type Payment struct {
	PaymentID    string          `gorm:"primaryKey;size:64" json:"paymentId"`
	ChairID      string          `gorm:"index;size:64;not null" json:"chairId"`
	Amount       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Status       PaymentStatus   `gorm:"size:16;not null;index" json:"status"`
	StatusDetail string          `json:"statusDetail,omitempty"`
	Source       string          `gorm:"size:16" json:"source"`

	ApprovedAt           *time.Time `json:"approvedAt,omitempty"`
	NotifiedAt           *time.Time `json:"notifiedAt,omitempty"`
	NotifyClaimedAt      *time.Time `json:"-"`
	NotificationAttempts int        `gorm:"not null;default:0" json:"notificationAttempts"`
	Processed            bool       `gorm:"not null;default:false" json:"processed"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotificationKind tags the device-notification state of a payment.
type NotificationKind int

const (
	NotNotified NotificationKind = iota
	NotificationInFlight
	Notified
)

// NotificationState is the explicit form of the notified_at/claim columns.
type NotificationState struct {
	Kind NotificationKind
	At   time.Time
}

// Notification derives the tagged notification state from the row.
func (p *Payment) Notification() NotificationState {
	switch {
	case p.NotifiedAt != nil:
		return NotificationState{Kind: Notified, At: *p.NotifiedAt}
	case p.NotifyClaimedAt != nil:
		return NotificationState{Kind: NotificationInFlight, At: *p.NotifyClaimedAt}
	default:
		return NotificationState{Kind: NotNotified}
	}
}

// Payment sources.
const (
	SourceIntent  = "intent"
	SourceWebhook = "webhook"
	SourcePolling = "polling"
)
