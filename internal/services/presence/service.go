// Package presence records device heartbeats and derives online state at
// read time.
package presence

import (
	"context"
	"strings"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/models"
	"poltrona/internal/repositories"
)

// DefaultWindow is how old the last ping may be for a device to count as
// online.
const DefaultWindow = 2 * time.Minute

// Heartbeat is one ping as reported by a device.
type Heartbeat struct {
	ChairID         string
	FirmwareVersion *string
	Signal          *int
	UptimeSeconds   *int64
}

// View is a device status with its derived presence.
type View struct {
	models.DeviceStatus
	Online bool `json:"online"`
}

type Service interface {
	Heartbeat(ctx context.Context, hb Heartbeat) error
	Status(ctx context.Context, chairID string) (View, error)
	List(ctx context.Context) ([]View, error)
}

type service struct {
	repo   repositories.DeviceStatusRepository
	window time.Duration
	now    func() time.Time
}

func NewService(repo repositories.DeviceStatusRepository, window time.Duration) Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &service{
		repo:   repo,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Heartbeat(ctx context.Context, hb Heartbeat) error {
	chairID := strings.TrimSpace(hb.ChairID)
	if chairID == "" {
		return appErrors.ErrInvalidRequest.WithMessage("chairId is required")
	}
	return s.repo.Upsert(ctx, repositories.Heartbeat{
		ChairID:         chairID,
		At:              s.now(),
		FirmwareVersion: hb.FirmwareVersion,
		Signal:          hb.Signal,
		UptimeSeconds:   hb.UptimeSeconds,
	})
}

// Status reports an unknown device as offline rather than as an error.
func (s *service) Status(ctx context.Context, chairID string) (View, error) {
	status, err := s.repo.Find(ctx, chairID)
	if err == repositories.ErrNotFound {
		return View{DeviceStatus: models.DeviceStatus{ChairID: chairID}}, nil
	}
	if err != nil {
		return View{}, err
	}
	return s.view(status), nil
}

func (s *service) List(ctx context.Context) ([]View, error) {
	statuses, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(statuses))
	for i := range statuses {
		views = append(views, s.view(&statuses[i]))
	}
	return views, nil
}

func (s *service) view(status *models.DeviceStatus) View {
	return View{DeviceStatus: *status, Online: status.OnlineAt(s.now(), s.window)}
}
