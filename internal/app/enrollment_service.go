package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/enrollment"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// EnrollmentService owns module access: curator unlock/lock and the
// auto-unlock of the first module for a freshly registered learner.
// A locked module keeps its enrollment row with status LOCKED; that row is
// the single source of truth for "locked".
type EnrollmentService struct {
	enrollRepo enrollment.Repository
	courseRepo course.Repository
	userRepo   user.Repository
	notifier   *Notifier
	logger     *logrus.Entry
}

func NewEnrollmentService(
	er enrollment.Repository,
	cr course.Repository,
	ur user.Repository,
	notifier *Notifier,
	logger *logrus.Entry,
) *EnrollmentService {
	return &EnrollmentService{
		enrollRepo: er,
		courseRepo: cr,
		userRepo:   ur,
		notifier:   notifier,
		logger:     logger,
	}
}

// Unlock grants a learner access to a module. Requires the performing user
// to hold the curator or admin role.
func (s *EnrollmentService) Unlock(ctx context.Context, curatorID, userID, moduleID int64) (*enrollment.Enrollment, error) {
	curator, err := s.userRepo.GetByID(ctx, curatorID)
	if err != nil {
		return nil, err
	}
	if !curator.CanReview() {
		return nil, ErrCuratorNotAuthorized
	}

	module, err := s.courseRepo.GetModuleByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	learner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	enr, err := s.unlock(ctx, userID, moduleID, sql.NullInt64{Int64: curatorID, Valid: true})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"module_id":  moduleID,
		"curator_id": curatorID,
	}).Info("Module unlocked by curator")

	s.notifier.NotifyLearnerModuleUnlocked(learner, module)
	return enr, nil
}

// Lock revokes a learner's access to a module. The enrollment row is kept
// with status LOCKED.
func (s *EnrollmentService) Lock(ctx context.Context, curatorID, userID, moduleID int64) error {
	curator, err := s.userRepo.GetByID(ctx, curatorID)
	if err != nil {
		return err
	}
	if !curator.CanReview() {
		return ErrCuratorNotAuthorized
	}

	enr, err := s.enrollRepo.GetByUserAndModule(ctx, userID, moduleID)
	if err != nil {
		return err
	}
	enr.Status = enrollment.StatusLocked
	if err := s.enrollRepo.Update(ctx, enr); err != nil {
		return fmt.Errorf("failed to lock enrollment: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"module_id":  moduleID,
		"curator_id": curatorID,
	}).Info("Module locked by curator")
	return nil
}

// AutoUnlockFirstModule opens the first course module for a newly registered
// learner without a curator reference.
func (s *EnrollmentService) AutoUnlockFirstModule(ctx context.Context, userID int64) error {
	module, err := s.courseRepo.GetFirstModule(ctx)
	if err != nil {
		if err == idb.ErrModuleNotFound {
			s.logger.Warn("Course has no modules, skipping auto-unlock")
			return nil
		}
		return err
	}
	if _, err := s.unlock(ctx, userID, module.ID, sql.NullInt64{}); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "module_id": module.ID}).Info("First module auto-unlocked")
	return nil
}

func (s *EnrollmentService) unlock(ctx context.Context, userID, moduleID int64, unlockedBy sql.NullInt64) (*enrollment.Enrollment, error) {
	now := time.Now()
	enr, err := s.enrollRepo.GetByUserAndModule(ctx, userID, moduleID)
	switch {
	case err == nil:
		enr.Status = enrollment.StatusInProgress
		enr.UnlockedAt = sql.NullTime{Time: now, Valid: true}
		enr.UnlockedBy = unlockedBy
		if err := s.enrollRepo.Update(ctx, enr); err != nil {
			return nil, fmt.Errorf("failed to re-unlock enrollment: %w", err)
		}
		return enr, nil
	case err == idb.ErrEnrollmentNotFound:
		enr = &enrollment.Enrollment{
			UserID:     userID,
			ModuleID:   moduleID,
			Status:     enrollment.StatusInProgress,
			UnlockedAt: sql.NullTime{Time: now, Valid: true},
			UnlockedBy: unlockedBy,
		}
		if err := s.enrollRepo.Create(ctx, enr); err != nil {
			return nil, fmt.Errorf("failed to create enrollment: %w", err)
		}
		return enr, nil
	default:
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
}

// Progress returns the learner's enrollments for the /progress command.
func (s *EnrollmentService) Progress(ctx context.Context, userID int64) ([]*enrollment.Enrollment, error) {
	return s.enrollRepo.ListByUser(ctx, userID)
}
