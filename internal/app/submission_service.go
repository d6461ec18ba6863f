package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/enrollment"
	"course_delivery_bot/internal/domain/scoring"
	"course_delivery_bot/internal/domain/submission"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// DecisionOutcome is a curator's verdict on a reviewed submission.
type DecisionOutcome string

const (
	OutcomeApprove DecisionOutcome = "APPROVE"
	OutcomeReturn  DecisionOutcome = "RETURN"
)

// defaultRubric is used when a step carries no rubric of its own.
const defaultRubric = "Оцени полноту и правильность ответа относительно задания. " +
	"Укажи сильные стороны и что можно улучшить."

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// SubmissionService owns the submission state machine:
// SENT -> AI_REVIEWED -> {CURATOR_APPROVED | CURATOR_RETURNED}, with re-entry
// from CURATOR_RETURNED via resubmission on the same row.
type SubmissionService struct {
	subRepo    submission.Repository
	courseRepo course.Repository
	enrollRepo enrollment.Repository
	userRepo   user.Repository
	scorer     scoring.Scorer
	notifier   *Notifier
	queue      TaskQueue
	logger     *logrus.Entry
}

func NewSubmissionService(
	sr submission.Repository,
	cr course.Repository,
	er enrollment.Repository,
	ur user.Repository,
	scorer scoring.Scorer,
	notifier *Notifier,
	queue TaskQueue,
	logger *logrus.Entry,
) *SubmissionService {
	return &SubmissionService{
		subRepo:    sr,
		courseRepo: cr,
		enrollRepo: er,
		userRepo:   ur,
		scorer:     scorer,
		notifier:   notifier,
		queue:      queue,
		logger:     logger,
	}
}

// CreateRequest carries a learner's answer for a step.
type CreateRequest struct {
	UserID       int64
	StepID       int64
	AnswerType   submission.AnswerType
	AnswerText   string
	AnswerFileID string
}

// Create validates preconditions, persists the submission with status SENT
// and schedules scoring when the step requires it. Reuses an existing
// CURATOR_RETURNED row for resubmission, clearing prior review results.
func (s *SubmissionService) Create(ctx context.Context, req CreateRequest) (*submission.Submission, error) {
	step, err := s.courseRepo.GetStepByID(ctx, req.StepID)
	if err != nil {
		return nil, err
	}
	if !step.Submittable() {
		return nil, ErrStepNotSubmittable
	}

	// A step that already has a live submission reports that even after the
	// module completed, so this check runs before the enrollment gate.
	sub, err := s.subRepo.GetByUserAndStep(ctx, req.UserID, req.StepID)
	if err != nil && err != idb.ErrSubmissionNotFound {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if sub != nil && sub.Status != submission.StatusCuratorReturned {
		return nil, ErrAlreadySubmitted
	}

	enr, err := s.enrollRepo.GetByUserAndModule(ctx, req.UserID, step.ModuleID)
	if err != nil {
		if err == idb.ErrEnrollmentNotFound {
			return nil, ErrModuleLocked
		}
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enr.Status != enrollment.StatusInProgress {
		return nil, ErrModuleLocked
	}

	if req.AnswerType != step.AnswerType {
		return nil, ErrAnswerTypeMismatch
	}
	if req.AnswerType == submission.AnswerTypeText {
		if strings.TrimSpace(req.AnswerText) == "" {
			return nil, ErrEmptyAnswer
		}
	} else if req.AnswerFileID == "" {
		return nil, ErrEmptyAnswer
	}

	if sub != nil {
		sub.ResetForResubmission()
		s.fillAnswer(sub, req)
		if err := s.subRepo.Update(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to update returned submission: %w", err)
		}
	} else {
		sub = &submission.Submission{
			UserID:     req.UserID,
			ModuleID:   step.ModuleID,
			StepID:     req.StepID,
			AnswerType: req.AnswerType,
			Status:     submission.StatusSent,
		}
		s.fillAnswer(sub, req)
		if err := s.subRepo.Create(ctx, sub); err != nil {
			if err == idb.ErrDuplicateSubmission {
				return nil, ErrAlreadySubmitted
			}
			return nil, fmt.Errorf("failed to create submission: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"user_id":       req.UserID,
		"step_id":       req.StepID,
	}).Info("Submission accepted")

	s.afterAnswerStored(ctx, sub, step)
	return sub, nil
}

func (s *SubmissionService) fillAnswer(sub *submission.Submission, req CreateRequest) {
	sub.AnswerText = sql.NullString{}
	sub.AnswerFileID = sql.NullString{}
	if req.AnswerText != "" {
		sub.AnswerText = sql.NullString{String: req.AnswerText, Valid: true}
	}
	if req.AnswerFileID != "" {
		sub.AnswerFileID = sql.NullString{String: req.AnswerFileID, Valid: true}
	}
}

// afterAnswerStored schedules the follow-up effects of a stored answer:
// scoring when the step requires it, otherwise a direct reviewer
// notification. Both are fire-and-forget.
func (s *SubmissionService) afterAnswerStored(ctx context.Context, sub *submission.Submission, step *course.Step) {
	if step.RequiresScoring {
		submissionID := sub.ID
		s.queue.Enqueue("apply-scoring", func(taskCtx context.Context) error {
			return s.ApplyScoring(taskCtx, submissionID)
		})
		return
	}
	learner, err := s.userRepo.GetByID(ctx, sub.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", sub.UserID).Error("Failed to load learner for reviewer notification")
		return
	}
	s.notifier.NotifyReviewersOfSubmission(ctx, sub, learner, step)
}

// ApplyScoring calls the scoring collaborator and moves the submission to
// AI_REVIEWED. A submission whose step does not require scoring, or that has
// already left SENT, is a no-op.
func (s *SubmissionService) ApplyScoring(ctx context.Context, submissionID int64) error {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to load submission %d for scoring: %w", submissionID, err)
	}
	step, err := s.courseRepo.GetStepByID(ctx, sub.StepID)
	if err != nil {
		return fmt.Errorf("failed to load step %d for scoring: %w", sub.StepID, err)
	}
	if !step.RequiresScoring {
		s.logger.WithField("submission_id", submissionID).Debug("Step does not require scoring, skipping")
		return nil
	}
	if sub.Status != submission.StatusSent {
		s.logger.WithFields(logrus.Fields{
			"submission_id": submissionID,
			"status":        sub.Status,
		}).Info("Submission already past SENT, skipping scoring")
		return nil
	}

	rubric := defaultRubric
	if step.Rubric.Valid && step.Rubric.String != "" {
		rubric = step.Rubric.String
	}

	raw, err := s.scorer.Score(ctx, scoring.Request{
		TaskText:   step.Content,
		AnswerText: sub.AnswerText.String,
		MaxScore:   step.MaxScore,
		Rubric:     rubric,
	})
	if err != nil {
		return fmt.Errorf("scoring call failed for submission %d: %w", submissionID, err)
	}

	return s.ApplyScoringResponse(ctx, submissionID, raw)
}

// ApplyScoringResponse parses a scoring collaborator reply (possibly
// malformed), persists score and feedback and notifies reviewers. Also the
// entry point for out-of-band scoring callbacks.
func (s *SubmissionService) ApplyScoringResponse(ctx context.Context, submissionID int64, raw string) error {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to load submission %d: %w", submissionID, err)
	}
	step, err := s.courseRepo.GetStepByID(ctx, sub.StepID)
	if err != nil {
		return fmt.Errorf("failed to load step %d: %w", sub.StepID, err)
	}

	score, feedback := parseScoringReply(raw, step.MaxScore)
	sub.AIScore = sql.NullFloat64{Float64: score, Valid: true}
	sub.AIFeedback = sql.NullString{String: feedback, Valid: true}
	sub.Status = submission.StatusAIReviewed

	err = s.subRepo.UpdateIfStatus(ctx, sub, []submission.Status{submission.StatusSent})
	if err != nil {
		if err == idb.ErrSubmissionStale {
			s.logger.WithField("submission_id", submissionID).Info("Submission left SENT before scoring landed, dropping result")
			return nil
		}
		return fmt.Errorf("failed to persist scoring result for submission %d: %w", submissionID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"ai_score":      score,
	}).Info("Submission pre-scored")

	learner, err := s.userRepo.GetByID(ctx, sub.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", sub.UserID).Error("Failed to load learner for reviewer notification")
		return nil
	}
	s.notifier.NotifyReviewersOfSubmission(ctx, sub, learner, step)
	return nil
}

// parseScoringReply extracts score and feedback from the collaborator's raw
// reply. The expected shape is {"score": n, "feedback": "..."}; anything else
// falls back to the first numeric token in the text, defaulting to 0, with
// the raw reply kept as feedback. The score is always clamped into
// [0, maxScore].
func parseScoringReply(raw string, maxScore float64) (float64, string) {
	var parsed struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err == nil {
		return clampScore(parsed.Score, maxScore), parsed.Feedback
	}

	if match := numberPattern.FindString(raw); match != "" {
		if score, err := strconv.ParseFloat(match, 64); err == nil {
			return clampScore(score, maxScore), raw
		}
	}
	return 0, raw
}

func clampScore(score, maxScore float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// Decide applies a curator's verdict. APPROVE without an explicit score
// defaults to full marks with canned feedback (the quick-approve button).
// The status update is compare-and-set: a second decision racing on the same
// submission fails with ErrSubmissionConflict.
func (s *SubmissionService) Decide(ctx context.Context, submissionID int64, outcome DecisionOutcome, score *float64, feedback string) (*submission.Submission, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	step, err := s.courseRepo.GetStepByID(ctx, sub.StepID)
	if err != nil {
		return nil, err
	}
	if sub.Status == submission.StatusCuratorApproved {
		return nil, ErrSubmissionConflict
	}

	switch outcome {
	case OutcomeApprove:
		finalScore := step.MaxScore
		if score != nil {
			if *score < 0 || *score > step.MaxScore {
				return nil, ErrScoreOutOfRange
			}
			finalScore = *score
		}
		finalFeedback := feedback
		if strings.TrimSpace(finalFeedback) == "" {
			finalFeedback = QuickApproveFeedback
		}
		sub.CuratorScore = sql.NullFloat64{Float64: finalScore, Valid: true}
		sub.CuratorFeedback = sql.NullString{String: finalFeedback, Valid: true}
		sub.Status = submission.StatusCuratorApproved

	case OutcomeReturn:
		if strings.TrimSpace(feedback) == "" {
			return nil, ErrFeedbackRequired
		}
		sub.CuratorFeedback = sql.NullString{String: feedback, Valid: true}
		sub.Status = submission.StatusCuratorReturned
		sub.ResubmissionRequested = true
		sub.ResubmissionRequestedAt = sql.NullTime{Time: time.Now(), Valid: true}

	default:
		return nil, fmt.Errorf("unknown decision outcome: %s", outcome)
	}

	err = s.subRepo.UpdateIfStatus(ctx, sub, []submission.Status{submission.StatusSent, submission.StatusAIReviewed})
	if err != nil {
		if err == idb.ErrSubmissionStale {
			return nil, ErrSubmissionConflict
		}
		return nil, fmt.Errorf("failed to persist decision for submission %d: %w", submissionID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"outcome":       outcome,
	}).Info("Curator decision applied")

	learner, err := s.userRepo.GetByID(ctx, sub.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", sub.UserID).Error("Failed to load learner for decision notification")
		return sub, nil
	}
	s.notifier.NotifyLearnerDecision(learner, step, sub)

	if outcome == OutcomeApprove {
		moduleID, userID := sub.ModuleID, sub.UserID
		s.queue.Enqueue("check-module-completion", func(taskCtx context.Context) error {
			return s.CheckModuleCompletion(taskCtx, moduleID, userID)
		})
	}
	return sub, nil
}

// CheckModuleCompletion flips the enrollment to COMPLETED when every
// required non-informational step has an approved submission. Idempotent:
// the enrollment transitions at most once and only the transition notifies.
func (s *SubmissionService) CheckModuleCompletion(ctx context.Context, moduleID, userID int64) error {
	stepIDs, err := s.courseRepo.ListRequiredTaskStepIDs(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("failed to list required steps for module %d: %w", moduleID, err)
	}

	// Modules with zero required steps are trivially complete.
	if len(stepIDs) > 0 {
		allApproved, err := s.subRepo.AreAllStepsApproved(ctx, userID, stepIDs)
		if err != nil {
			return fmt.Errorf("failed to check approved steps for module %d: %w", moduleID, err)
		}
		if !allApproved {
			return nil
		}
	}

	enr, err := s.enrollRepo.GetByUserAndModule(ctx, userID, moduleID)
	if err != nil {
		if err == idb.ErrEnrollmentNotFound {
			s.logger.WithFields(logrus.Fields{"module_id": moduleID, "user_id": userID}).Warn("Module complete but no enrollment row found")
			return nil
		}
		return fmt.Errorf("failed to load enrollment: %w", err)
	}

	completed, err := s.enrollRepo.MarkCompleted(ctx, enr.ID)
	if err != nil {
		return fmt.Errorf("failed to mark enrollment %d completed: %w", enr.ID, err)
	}
	if !completed {
		// Already COMPLETED earlier, nothing more to do.
		return nil
	}

	s.logger.WithFields(logrus.Fields{"module_id": moduleID, "user_id": userID}).Info("Module completed")

	learner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to load learner for completion notification")
		return nil
	}
	module, err := s.courseRepo.GetModuleByID(ctx, moduleID)
	if err != nil {
		s.logger.WithError(err).WithField("module_id", moduleID).Error("Failed to load module for completion notification")
		return nil
	}
	s.notifier.NotifyLearnerModuleComplete(learner, module)
	return nil
}
