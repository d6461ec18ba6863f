package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"course_delivery_bot/internal/domain/enrollment"
)

// Custom errors specific to enrollment repository
var ErrEnrollmentNotFound = fmt.Errorf("enrollment not found")
var ErrDuplicateEnrollment = fmt.Errorf("duplicate enrollment (user_id, module_id)")

type PostgresEnrollmentRepository struct {
	db *sql.DB
}

func NewPostgresEnrollmentRepository(db *sql.DB) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{db: db}
}

func (r *PostgresEnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `INSERT INTO enrollments (user_id, module_id, status, unlocked_at, completed_at, unlocked_by)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, e.UserID, e.ModuleID, e.Status, e.UnlockedAt, e.CompletedAt, e.UnlockedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "enrollments_user_module_unique") {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("error creating enrollment: %w", err)
	}
	return nil
}

func (r *PostgresEnrollmentRepository) GetByUserAndModule(ctx context.Context, userID, moduleID int64) (*enrollment.Enrollment, error) {
	query := `SELECT id, user_id, module_id, status, unlocked_at, completed_at, unlocked_by, created_at, updated_at
               FROM enrollments WHERE user_id = $1 AND module_id = $2`
	e := enrollment.Enrollment{}
	err := r.db.QueryRowContext(ctx, query, userID, moduleID).Scan(
		&e.ID, &e.UserID, &e.ModuleID, &e.Status, &e.UnlockedAt, &e.CompletedAt, &e.UnlockedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("error getting enrollment: %w", err)
	}
	return &e, nil
}

func (r *PostgresEnrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	query := `UPDATE enrollments
               SET status = $1, unlocked_at = $2, completed_at = $3, unlocked_by = $4, updated_at = NOW()
               WHERE id = $5
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, e.Status, e.UnlockedAt, e.CompletedAt, e.UnlockedBy, e.ID).Scan(&e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrEnrollmentNotFound
		}
		return fmt.Errorf("error updating enrollment: %w", err)
	}
	return nil
}

func (r *PostgresEnrollmentRepository) ListByUser(ctx context.Context, userID int64) ([]*enrollment.Enrollment, error) {
	query := `SELECT e.id, e.user_id, e.module_id, e.status, e.unlocked_at, e.completed_at, e.unlocked_by, e.created_at, e.updated_at
               FROM enrollments e
               JOIN modules m ON m.id = e.module_id
               WHERE e.user_id = $1
               ORDER BY m.position ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing enrollments by user: %w", err)
	}
	defer rows.Close()

	enrollments := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e := &enrollment.Enrollment{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.ModuleID, &e.Status, &e.UnlockedAt, &e.CompletedAt, &e.UnlockedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}
	return enrollments, nil
}

// MarkCompleted transitions IN_PROGRESS -> COMPLETED atomically. The WHERE
// clause on status makes repeated calls report false instead of stamping
// completed_at twice.
func (r *PostgresEnrollmentRepository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE enrollments
               SET status = $1, completed_at = NOW(), updated_at = NOW()
               WHERE id = $2 AND status = $3
               RETURNING updated_at`
	var updatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, enrollment.StatusCompleted, id, enrollment.StatusInProgress).Scan(&updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error marking enrollment completed: %w", err)
	}
	return true, nil
}
