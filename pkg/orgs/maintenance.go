package orgs

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/robfig/cron/v3"
)

// DefaultExpirySchedule runs invitation expiry at the top of every hour.
const DefaultExpirySchedule = "0 * * * *"

// ExpiryRecorder observes expired invitation counts.
type ExpiryRecorder interface {
	RecordInvitationsExpired(n int)
}

// Maintenance runs the organization background jobs on a cron schedule.
type Maintenance struct {
	cron     *cron.Cron
	service  *Service
	logger   *observability.Logger
	recorder ExpiryRecorder
	timeout  time.Duration
}

// NewMaintenance schedules invitation expiry. recorder may be nil.
func NewMaintenance(service *Service, schedule string, logger *observability.Logger, recorder ExpiryRecorder) (*Maintenance, error) {
	if schedule == "" {
		schedule = DefaultExpirySchedule
	}
	m := &Maintenance{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		service:  service,
		logger:   logger,
		recorder: recorder,
		timeout:  time.Minute,
	}
	if _, err := m.cron.AddFunc(schedule, m.expireInvitations); err != nil {
		return nil, fmt.Errorf("failed to schedule invitation expiry: %w", err)
	}
	return m, nil
}

// Start starts the scheduler in its own goroutine.
func (m *Maintenance) Start() {
	m.cron.Start()
	m.logger.Info("Organization maintenance started")
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (m *Maintenance) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		m.logger.Warn("Organization maintenance stop timed out")
	}
}

// RunOnce runs every job immediately.
func (m *Maintenance) RunOnce() {
	m.expireInvitations()
}

func (m *Maintenance) expireInvitations() {
	defer observability.RecoverPanic(m.logger, "invitation expiry")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	n, err := m.service.ExpireInvitations(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Invitation expiry failed")
		return
	}
	if m.recorder != nil {
		m.recorder.RecordInvitationsExpired(n)
	}
	if n > 0 {
		m.logger.WithField("expired", n).Info("Expired pending invitations")
	}
}
