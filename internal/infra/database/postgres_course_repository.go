package database

import (
	"context"
	"database/sql"
	"fmt"

	"course_delivery_bot/internal/domain/course"
)

// Custom errors specific to course structure lookups
var ErrModuleNotFound = fmt.Errorf("module not found")
var ErrStepNotFound = fmt.Errorf("step not found")

type PostgresCourseRepository struct {
	db *sql.DB
}

func NewPostgresCourseRepository(db *sql.DB) *PostgresCourseRepository {
	return &PostgresCourseRepository{db: db}
}

func (r *PostgresCourseRepository) GetModuleByID(ctx context.Context, id int64) (*course.Module, error) {
	query := `SELECT id, title, position, created_at, updated_at FROM modules WHERE id = $1`
	m := course.Module{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Title, &m.Position, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("error getting module by ID: %w", err)
	}
	return &m, nil
}

func (r *PostgresCourseRepository) GetFirstModule(ctx context.Context) (*course.Module, error) {
	query := `SELECT id, title, position, created_at, updated_at FROM modules ORDER BY position ASC LIMIT 1`
	m := course.Module{}
	err := r.db.QueryRowContext(ctx, query).Scan(&m.ID, &m.Title, &m.Position, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("error getting first module: %w", err)
	}
	return &m, nil
}

func (r *PostgresCourseRepository) ListModules(ctx context.Context) ([]*course.Module, error) {
	query := `SELECT id, title, position, created_at, updated_at FROM modules ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing modules: %w", err)
	}
	defer rows.Close()

	modules := make([]*course.Module, 0)
	for rows.Next() {
		m := &course.Module{}
		if err := rows.Scan(&m.ID, &m.Title, &m.Position, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning module: %w", err)
		}
		modules = append(modules, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating modules: %w", err)
	}
	return modules, nil
}

const stepColumns = `id, module_id, title, content, step_type, answer_type, max_score, required, requires_scoring, rubric, position, created_at, updated_at`

func scanStep(row interface{ Scan(...any) error }) (*course.Step, error) {
	s := &course.Step{}
	err := row.Scan(
		&s.ID, &s.ModuleID, &s.Title, &s.Content, &s.Type, &s.AnswerType,
		&s.MaxScore, &s.Required, &s.RequiresScoring, &s.Rubric, &s.Position,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresCourseRepository) GetStepByID(ctx context.Context, id int64) (*course.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE id = $1`
	s, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStepNotFound
		}
		return nil, fmt.Errorf("error getting step by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresCourseRepository) ListStepsByModule(ctx context.Context, moduleID int64) ([]*course.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE module_id = $1 ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("error listing steps by module: %w", err)
	}
	defer rows.Close()

	steps := make([]*course.Step, 0)
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning step: %w", err)
		}
		steps = append(steps, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

func (r *PostgresCourseRepository) ListRequiredTaskStepIDs(ctx context.Context, moduleID int64) ([]int64, error) {
	query := `SELECT id FROM steps
               WHERE module_id = $1 AND required = TRUE AND step_type = $2
               ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, query, moduleID, course.StepTypeTask)
	if err != nil {
		return nil, fmt.Errorf("error listing required task steps: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning step ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step IDs: %w", err)
	}
	return ids, nil
}
