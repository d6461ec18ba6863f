// internal/domain/submission/repository.go
package submission

import (
	"context"
	"time"
)

// Repository defines persistence operations for Submission rows.
type Repository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id int64) (*Submission, error)
	GetByUserAndStep(ctx context.Context, userID, stepID int64) (*Submission, error)
	Update(ctx context.Context, s *Submission) error

	// UpdateIfStatus persists the submission only when the stored row is still
	// in one of the expected statuses. Returns ErrSubmissionStale otherwise,
	// which guards against two decisions racing on the same row.
	UpdateIfStatus(ctx context.Context, s *Submission, expected []Status) error

	// GetByPromptMessageID resolves an inbound reply to the submission whose
	// instructional prompt it answers.
	GetByPromptMessageID(ctx context.Context, userID int64, promptMessageID int) (*Submission, error)

	// GetLatestAwaitingRecording returns the user's most recently updated
	// voice/video submission that still lacks a stored answer.
	GetLatestAwaitingRecording(ctx context.Context, userID int64) (*Submission, error)

	ListByModuleAndUser(ctx context.Context, moduleID, userID int64) ([]*Submission, error)

	// AreAllStepsApproved reports whether every given step has a
	// CURATOR_APPROVED submission for the user. An empty step list counts as
	// approved.
	AreAllStepsApproved(ctx context.Context, userID int64, stepIDs []int64) (bool, error)

	// ListAwaitingCuratorReview returns submissions sitting in AI_REVIEWED
	// since before the given time, oldest first.
	ListAwaitingCuratorReview(ctx context.Context, before time.Time) ([]*Submission, error)
}
