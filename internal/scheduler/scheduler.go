// Package scheduler runs the polling and expiry sweeps on fixed intervals
// inside the server process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"poltrona/internal/services/reconciler"

	"github.com/sirupsen/logrus"
)

// Poller runs one polling sweep.
type Poller interface {
	Sweep(ctx context.Context) (reconciler.Summary, error)
}

// Expirer runs one expiry sweep.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

type Scheduler struct {
	poller         Poller
	expirer        Expirer
	pollInterval   time.Duration
	expiryInterval time.Duration
	log            logrus.FieldLogger
	wg             sync.WaitGroup
}

func New(poller Poller, expirer Expirer, pollInterval, expiryInterval time.Duration, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		poller:         poller,
		expirer:        expirer,
		pollInterval:   pollInterval,
		expiryInterval: expiryInterval,
		log:            log,
	}
}

// Start launches both loops. They stop when ctx is cancelled; Wait blocks
// until they have.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, "poll", s.pollInterval, func(ctx context.Context) error {
		_, err := s.poller.Sweep(ctx)
		return err
	})
	go s.loop(ctx, "expire", s.expiryInterval, func(ctx context.Context) error {
		_, err := s.expirer.ExpireDue(ctx)
		return err
	})
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// loop runs job once per tick. A slow job delays the next tick instead of
// overlapping with itself.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	defer s.wg.Done()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := s.log.WithField("job", name)
	log.WithField("interval", interval).Info("scheduled sweep started")

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduled sweep stopped")
			return
		case <-ticker.C:
			if err := job(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("scheduled sweep failed")
			}
		}
	}
}
