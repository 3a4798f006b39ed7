package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chair is the registry row of one physical massage chair and its
// controller. Config fields are edited by admins; Intent and Session are
// mutated only by the payment pipeline through conditional writes.
type Chair struct {
	ID               uint            `gorm:"primarykey" json:"-"`
	ChairID          string          `gorm:"uniqueIndex;size:64;not null" json:"chairId"`
	Address          string          `gorm:"not null" json:"address"`
	Price            decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	DurationSeconds  int             `gorm:"not null" json:"durationSeconds"`
	Location         string          `json:"location"`
	Active           bool            `gorm:"not null;index" json:"active"`
	PublicPaymentURL string          `json:"publicPaymentUrl"`

	Intent  ChairIntent  `gorm:"embedded;embeddedPrefix:intent_" json:"intent"`
	Session ChairSession `gorm:"embedded;embeddedPrefix:session_" json:"session"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChairIntent is the single-use payment intent currently bound to a chair.
// Seq is bumped every time the intent is released so that processor
// idempotency keys never repeat across intents.
type ChairIntent struct {
	Seq          int64               `gorm:"not null;default:0" json:"seq"`
	PaymentID    *string             `gorm:"size:64" json:"paymentId,omitempty"`
	QRCode       *string             `gorm:"type:text" json:"qrCode,omitempty"`
	QRCodeBase64 *string             `gorm:"type:text" json:"-"`
	Amount       decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"amount"`
	CreatedAt    *time.Time          `json:"createdAt,omitempty"`
}

// Bound reports whether an intent is attached.
func (i ChairIntent) Bound() bool {
	return i.PaymentID != nil && *i.PaymentID != ""
}

// ChairSession is the "in use until" window persisted on the chair row.
type ChairSession struct {
	Active    bool       `gorm:"not null;default:false;index" json:"active"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndsAt    *time.Time `gorm:"index" json:"endsAt,omitempty"`
	PaymentID *string    `gorm:"size:64" json:"paymentId,omitempty"`
}

// Session is the typed view of a live session.
type Session struct {
	ChairID   string    `json:"chairId"`
	PaymentID string    `json:"paymentId"`
	StartedAt time.Time `json:"startedAt"`
	EndsAt    time.Time `json:"endsAt"`
}

// Remaining returns how long the session still runs at now.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.EndsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether now is at or past the expected end.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.EndsAt)
}

// CurrentSession returns the chair's session, if one is active.
func (c *Chair) CurrentSession() (Session, bool) {
	if !c.Session.Active || c.Session.EndsAt == nil {
		return Session{}, false
	}
	s := Session{
		ChairID: c.ChairID,
		EndsAt:  *c.Session.EndsAt,
	}
	if c.Session.StartedAt != nil {
		s.StartedAt = *c.Session.StartedAt
	}
	if c.Session.PaymentID != nil {
		s.PaymentID = *c.Session.PaymentID
	}
	return s, true
}

// Duration is the configured session length.
func (c *Chair) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}
