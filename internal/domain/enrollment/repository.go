// internal/domain/enrollment/repository.go
package enrollment

import "context"

// Repository defines persistence operations for enrollments.
type Repository interface {
	Create(ctx context.Context, e *Enrollment) error
	GetByUserAndModule(ctx context.Context, userID, moduleID int64) (*Enrollment, error)
	Update(ctx context.Context, e *Enrollment) error
	ListByUser(ctx context.Context, userID int64) ([]*Enrollment, error)

	// MarkCompleted flips the enrollment to COMPLETED and stamps completed_at,
	// but only if it is still IN_PROGRESS. Reports whether the transition
	// happened, making repeated completion checks harmless.
	MarkCompleted(ctx context.Context, id int64) (bool, error)
}
