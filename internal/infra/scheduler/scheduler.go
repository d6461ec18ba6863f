package scheduler

import (
	"context"
	"fmt"
	"time"

	"course_delivery_bot/internal/app"
	"course_delivery_bot/internal/domain/submission"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper drops expired dialog state entries. The in-memory store needs a
// periodic sweep; Redis expires keys natively, in which case no sweeper is
// registered.
type Sweeper interface {
	Sweep() int
}

// reviewReminderAge is how long a submission may sit in AI_REVIEWED before
// curators get nudged about it.
const reviewReminderAge = 24 * time.Hour

type MaintenanceScheduler struct {
	cronEngine               *cron.Cron
	sweeper                  Sweeper
	subRepo                  submission.Repository
	notifier                 *app.Notifier
	logger                   *logrus.Entry
	cronSpecCorrelationSweep string
	cronSpecReviewReminder   string
}

func NewMaintenanceScheduler(
	sweeper Sweeper, // nil when the dialog store expires entries itself
	subRepo submission.Repository,
	notifier *app.Notifier,
	logger *logrus.Entry,
	cronSpecCorrelationSweep string, // e.g., "*/30 * * * *" (every 30 minutes)
	cronSpecReviewReminder string, // e.g., "0 10 * * *" (10:00 AM daily)
) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cronEngine:               cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		sweeper:                  sweeper,
		subRepo:                  subRepo,
		notifier:                 notifier,
		logger:                   logger,
		cronSpecCorrelationSweep: cronSpecCorrelationSweep,
		cronSpecReviewReminder:   cronSpecReviewReminder,
	}
}

func (s *MaintenanceScheduler) Start() {
	s.logger.Info("Starting maintenance scheduler...")

	if s.sweeper != nil {
		_, err := s.cronEngine.AddFunc(s.cronSpecCorrelationSweep, func() {
			removed := s.sweeper.Sweep()
			if removed > 0 {
				s.logger.WithField("removed", removed).Info("Swept expired dialog state entries")
			}
		})
		if err != nil {
			s.logger.Fatalf("Could not add correlation sweep cron job: %v", err)
		}
	}

	_, err := s.cronEngine.AddFunc(s.cronSpecReviewReminder, func() {
		s.logger.Info("Cron job triggered for stuck review check.")
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := s.remindAboutStuckReviews(ctx); err != nil {
			s.logger.WithError(err).Error("Error during stuck review check")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add review reminder cron job: %v", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Maintenance scheduler started with jobs.")
}

// remindAboutStuckReviews pings curators about submissions that were scored
// by the assistant but still wait for a human decision.
func (s *MaintenanceScheduler) remindAboutStuckReviews(ctx context.Context) error {
	stuck, err := s.subRepo.ListAwaitingCuratorReview(ctx, time.Now().Add(-reviewReminderAge))
	if err != nil {
		return fmt.Errorf("failed to list submissions awaiting review: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	s.logger.WithField("count", len(stuck)).Info("Found submissions stuck awaiting curator review")
	message := fmt.Sprintf(
		"Напоминание: %d ответ(ов) учеников ждут проверки больше суток. Пожалуйста, загляните в очередь.",
		len(stuck),
	)
	s.notifier.NotifyReviewersText(ctx, message)
	return nil
}

func (s *MaintenanceScheduler) Stop() {
	s.logger.Info("Stopping maintenance scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Maintenance scheduler gracefully stopped.")
}
