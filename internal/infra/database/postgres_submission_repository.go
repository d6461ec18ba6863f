package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"course_delivery_bot/internal/domain/submission"

	"github.com/lib/pq" // For pq.Array and driver registration
)

// Custom errors specific to submission repository
var ErrSubmissionNotFound = fmt.Errorf("submission not found")
var ErrDuplicateSubmission = fmt.Errorf("duplicate submission (user_id, step_id)")

// ErrSubmissionStale means a conditional update found the row in an
// unexpected status: someone else transitioned it first.
var ErrSubmissionStale = fmt.Errorf("submission status changed concurrently")

type PostgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db}
}

const submissionColumns = `id, user_id, module_id, step_id, answer_type, answer_text, answer_file_id,
               ai_score, ai_feedback, curator_score, curator_feedback, status,
               resubmission_requested, resubmission_requested_at, prompt_message_id, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (*submission.Submission, error) {
	s := &submission.Submission{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.ModuleID, &s.StepID, &s.AnswerType, &s.AnswerText, &s.AnswerFileID,
		&s.AIScore, &s.AIFeedback, &s.CuratorScore, &s.CuratorFeedback, &s.Status,
		&s.ResubmissionRequested, &s.ResubmissionRequestedAt, &s.PromptMessageID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) Create(ctx context.Context, s *submission.Submission) error {
	query := `INSERT INTO submissions
               (user_id, module_id, step_id, answer_type, answer_text, answer_file_id,
                ai_score, ai_feedback, curator_score, curator_feedback, status,
                resubmission_requested, resubmission_requested_at, prompt_message_id)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.ModuleID, s.StepID, s.AnswerType, s.AnswerText, s.AnswerFileID,
		s.AIScore, s.AIFeedback, s.CuratorScore, s.CuratorFeedback, s.Status,
		s.ResubmissionRequested, s.ResubmissionRequestedAt, s.PromptMessageID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "submissions_user_step_unique") {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("error creating submission: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) GetByID(ctx context.Context, id int64) (*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting submission by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) GetByUserAndStep(ctx context.Context, userID, stepID int64) (*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1 AND step_id = $2`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, userID, stepID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting submission by user and step: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) Update(ctx context.Context, s *submission.Submission) error {
	query := `UPDATE submissions
               SET answer_type = $1, answer_text = $2, answer_file_id = $3,
                   ai_score = $4, ai_feedback = $5, curator_score = $6, curator_feedback = $7,
                   status = $8, resubmission_requested = $9, resubmission_requested_at = $10,
                   prompt_message_id = $11, updated_at = NOW()
               WHERE id = $12
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.AnswerType, s.AnswerText, s.AnswerFileID,
		s.AIScore, s.AIFeedback, s.CuratorScore, s.CuratorFeedback,
		s.Status, s.ResubmissionRequested, s.ResubmissionRequestedAt,
		s.PromptMessageID, s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrSubmissionNotFound
		}
		return fmt.Errorf("error updating submission: %w", err)
	}
	return nil
}

// UpdateIfStatus is the compare-and-set variant of Update: the row is only
// written when its stored status is still one of the expected values.
func (r *PostgresSubmissionRepository) UpdateIfStatus(ctx context.Context, s *submission.Submission, expected []submission.Status) error {
	expectedStrings := make([]string, len(expected))
	for i, st := range expected {
		expectedStrings[i] = string(st)
	}

	query := `UPDATE submissions
               SET answer_type = $1, answer_text = $2, answer_file_id = $3,
                   ai_score = $4, ai_feedback = $5, curator_score = $6, curator_feedback = $7,
                   status = $8, resubmission_requested = $9, resubmission_requested_at = $10,
                   prompt_message_id = $11, updated_at = NOW()
               WHERE id = $12 AND status = ANY($13::varchar[])
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.AnswerType, s.AnswerText, s.AnswerFileID,
		s.AIScore, s.AIFeedback, s.CuratorScore, s.CuratorFeedback,
		s.Status, s.ResubmissionRequested, s.ResubmissionRequestedAt,
		s.PromptMessageID, s.ID, pq.Array(expectedStrings),
	).Scan(&s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrSubmissionStale
		}
		return fmt.Errorf("error conditionally updating submission: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) GetByPromptMessageID(ctx context.Context, userID int64, promptMessageID int) (*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
               WHERE user_id = $1 AND prompt_message_id = $2`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, userID, promptMessageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting submission by prompt message ID: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) GetLatestAwaitingRecording(ctx context.Context, userID int64) (*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
               WHERE user_id = $1
                 AND status = $2
                 AND answer_type IN ($3, $4)
                 AND answer_file_id IS NULL
               ORDER BY updated_at DESC
               LIMIT 1`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query,
		userID, submission.StatusSent, submission.AnswerTypeAudio, submission.AnswerTypeVideo))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting latest awaiting recording: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) ListByModuleAndUser(ctx context.Context, moduleID, userID int64) ([]*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
               WHERE module_id = $1 AND user_id = $2 ORDER BY step_id`
	rows, err := r.db.QueryContext(ctx, query, moduleID, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying submissions by module and user: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (r *PostgresSubmissionRepository) ListAwaitingCuratorReview(ctx context.Context, before time.Time) ([]*submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
               WHERE status = $1 AND updated_at < $2
               ORDER BY updated_at ASC`
	rows, err := r.db.QueryContext(ctx, query, submission.StatusAIReviewed, before)
	if err != nil {
		return nil, fmt.Errorf("error querying submissions awaiting review: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (r *PostgresSubmissionRepository) AreAllStepsApproved(ctx context.Context, userID int64, stepIDs []int64) (bool, error) {
	if len(stepIDs) == 0 {
		return true, nil // No steps expected, so all are "approved"
	}

	query := `SELECT COUNT(*)
               FROM unnest($1::bigint[]) AS required(step_id)
               LEFT JOIN submissions s
                 ON s.step_id = required.step_id AND s.user_id = $2 AND s.status = $3
               WHERE s.id IS NULL`

	var missingCount int
	err := r.db.QueryRowContext(ctx, query, pq.Array(stepIDs), userID, submission.StatusCuratorApproved).Scan(&missingCount)
	if err != nil {
		return false, fmt.Errorf("error checking approved steps: %w", err)
	}
	return missingCount == 0, nil
}

// Helper to scan multiple rows
func collectSubmissions(rows *sql.Rows) ([]*submission.Submission, error) {
	submissions := make([]*submission.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning submission row: %w", err)
		}
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission rows: %w", err)
	}
	return submissions, nil
}
