package models

import "time"

// DeviceStatus is the last liveness report of a chair controller.
type DeviceStatus struct {
	ChairID         string     `gorm:"primaryKey;size:64" json:"chairId"`
	IsOnline        bool       `gorm:"not null;default:false" json:"isOnline"`
	LastPing        *time.Time `json:"lastPing,omitempty"`
	FirmwareVersion *string    `json:"firmwareVersion,omitempty"`
	Signal          *int       `json:"signal,omitempty"`
	UptimeSeconds   *int64     `json:"uptimeSeconds,omitempty"`
	ErrorMessage    *string    `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// OnlineAt derives presence: the stored flag must be set and the last ping
// must be younger than window.
func (d *DeviceStatus) OnlineAt(now time.Time, window time.Duration) bool {
	if !d.IsOnline || d.LastPing == nil {
		return false
	}
	return now.Sub(*d.LastPing) <= window
}
