package app

import (
	"context"
	"database/sql"
	"fmt"

	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/enrollment"
	"course_delivery_bot/internal/domain/submission"
	domainTelegram "course_delivery_bot/internal/domain/telegram"
	"course_delivery_bot/internal/domain/transcribe"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// ErrNoPendingPrompt means an inbound recording could not be matched to any
// open submission. The sender still gets a generic receipt; nothing is
// created or mutated.
var ErrNoPendingPrompt = fmt.Errorf("no pending recording prompt matches this message")

// AudioIntakeService correlates unsolicited voice/video messages with the
// submission they answer. Primary key: the replied-to message ID matching a
// stored prompt message ID. Fallback: the sender's most recent open
// recording prompt. With several open prompts the most recently updated one
// wins, which is a known limitation.
type AudioIntakeService struct {
	subRepo        submission.Repository
	courseRepo     course.Repository
	enrollRepo     enrollment.Repository
	userRepo       user.Repository
	telegramClient domainTelegram.Client
	transcriber    transcribe.Transcriber
	submissions    *SubmissionService
	logger         *logrus.Entry
}

func NewAudioIntakeService(
	sr submission.Repository,
	cr course.Repository,
	er enrollment.Repository,
	ur user.Repository,
	tc domainTelegram.Client,
	tr transcribe.Transcriber,
	submissions *SubmissionService,
	logger *logrus.Entry,
) *AudioIntakeService {
	return &AudioIntakeService{
		subRepo:        sr,
		courseRepo:     cr,
		enrollRepo:     er,
		userRepo:       ur,
		telegramClient: tc,
		transcriber:    tr,
		submissions:    submissions,
		logger:         logger,
	}
}

// StartAudioSubmission sends the learner an instructional message and opens
// a recording prompt: a SENT submission whose prompt_message_id is the sent
// message's ID, used later as the reply-correlation key. A previously
// returned submission for the step is reset and reused.
func (s *AudioIntakeService) StartAudioSubmission(ctx context.Context, userID, stepID int64) (*submission.Submission, error) {
	learner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !learner.TelegramID.Valid {
		return nil, ErrNoTelegramAccount
	}

	step, err := s.courseRepo.GetStepByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if !step.Submittable() {
		return nil, ErrStepNotSubmittable
	}
	if !step.AnswerType.IsRecording() {
		return nil, ErrAnswerTypeMismatch
	}

	// The approved check precedes the enrollment gate: approving the last
	// step completes the module, and the step must still report as approved
	// afterwards.
	existing, err := s.subRepo.GetByUserAndStep(ctx, userID, stepID)
	if err != nil && err != idb.ErrSubmissionNotFound {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if existing != nil && existing.Status == submission.StatusCuratorApproved {
		return nil, ErrAlreadyApproved
	}

	enr, err := s.enrollRepo.GetByUserAndModule(ctx, userID, step.ModuleID)
	if err != nil {
		if err == idb.ErrEnrollmentNotFound {
			return nil, ErrModuleLocked
		}
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enr.Status != enrollment.StatusInProgress {
		return nil, ErrModuleLocked
	}

	kind := "голосовым сообщением"
	if step.AnswerType == submission.AnswerTypeVideo {
		kind = "видеосообщением"
	}
	promptText := fmt.Sprintf("Задание «%s»: запишите ответ %s в ответ на это сообщение.", step.Title, kind)
	messageID, err := s.telegramClient.SendMessage(learner.TelegramID.Int64, promptText, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send recording prompt: %w", err)
	}

	if existing != nil {
		existing.ResetForResubmission()
		existing.AnswerType = step.AnswerType
		existing.AnswerText = sql.NullString{}
		existing.AnswerFileID = sql.NullString{}
		existing.PromptMessageID = sql.NullInt64{Int64: int64(messageID), Valid: true}
		if err := s.subRepo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reopen submission: %w", err)
		}
		s.logger.WithFields(logrus.Fields{"submission_id": existing.ID, "prompt_message_id": messageID}).Info("Recording prompt reopened")
		return existing, nil
	}

	sub := &submission.Submission{
		UserID:          userID,
		ModuleID:        step.ModuleID,
		StepID:          stepID,
		AnswerType:      step.AnswerType,
		Status:          submission.StatusSent,
		PromptMessageID: sql.NullInt64{Int64: int64(messageID), Valid: true},
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create recording submission: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"submission_id": sub.ID, "prompt_message_id": messageID}).Info("Recording prompt opened")
	return sub, nil
}

// HandleInboundRecording attributes an inbound voice/video message to a
// pending submission, stores the attachment reference, transcribes it when
// possible and hands over to the regular post-answer flow. Returns
// ErrNoPendingPrompt when nothing matches; callers acknowledge the sender
// and drop the message with a log trace only.
func (s *AudioIntakeService) HandleInboundRecording(ctx context.Context, senderChatID int64, replyToMessageID *int, fileID string) (*submission.Submission, error) {
	learner, err := s.userRepo.GetByTelegramID(ctx, senderChatID)
	if err != nil {
		if err == idb.ErrUserNotFound {
			return nil, ErrNoPendingPrompt
		}
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}

	sub, err := s.resolveSubmission(ctx, learner.ID, replyToMessageID)
	if err != nil {
		return nil, err
	}

	sub.AnswerFileID = sql.NullString{String: fileID, Valid: true}
	s.transcribeAnswer(ctx, sub, fileID)

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store recording answer: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"user_id":       learner.ID,
		"has_reply_ref": replyToMessageID != nil,
	}).Info("Recording attributed to submission")

	step, err := s.courseRepo.GetStepByID(ctx, sub.StepID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step %d: %w", sub.StepID, err)
	}
	s.submissions.afterAnswerStored(ctx, sub, step)
	return sub, nil
}

// resolveSubmission implements the correlation order: reply metadata first,
// then the sender's sole outstanding recording prompt.
func (s *AudioIntakeService) resolveSubmission(ctx context.Context, userID int64, replyToMessageID *int) (*submission.Submission, error) {
	if replyToMessageID != nil {
		sub, err := s.subRepo.GetByPromptMessageID(ctx, userID, *replyToMessageID)
		if err == nil {
			if sub.AwaitsAnswer() {
				return sub, nil
			}
			s.logger.WithField("submission_id", sub.ID).Info("Replied-to prompt is no longer open, trying fallback")
		} else if err != idb.ErrSubmissionNotFound {
			return nil, fmt.Errorf("failed to look up prompt correlation: %w", err)
		}
	}

	sub, err := s.subRepo.GetLatestAwaitingRecording(ctx, userID)
	if err != nil {
		if err == idb.ErrSubmissionNotFound {
			return nil, ErrNoPendingPrompt
		}
		return nil, fmt.Errorf("failed to look up outstanding prompts: %w", err)
	}
	return sub, nil
}

// transcribeAnswer fills AnswerText with the recording's transcript. Both
// the download and the transcription are best-effort: on failure the answer
// text stays empty and the intake continues.
func (s *AudioIntakeService) transcribeAnswer(ctx context.Context, sub *submission.Submission, fileID string) {
	if s.transcriber == nil {
		return
	}
	data, err := s.telegramClient.DownloadFile(fileID)
	if err != nil {
		s.logger.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to download recording, skipping transcription")
		return
	}
	hint := "answer.ogg"
	if sub.AnswerType == submission.AnswerTypeVideo {
		hint = "answer.mp4"
	}
	text, err := s.transcriber.Transcribe(ctx, data, hint)
	if err != nil {
		s.logger.WithError(err).WithField("submission_id", sub.ID).Warn("Transcription failed, keeping answer text empty")
		return
	}
	if text != "" {
		sub.AnswerText = sql.NullString{String: text, Valid: true}
	}
}
