package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"course_delivery_bot/internal/domain/correlation"
	domainTelegram "course_delivery_bot/internal/domain/telegram"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// DialogService runs the two per-sender conversational state machines over
// the correlation store: the registration dialog and the question relay.
// Registration takes priority at entry; a sender is never in both at once.
type DialogService struct {
	store          correlation.Store
	userRepo       user.Repository
	telegramClient domainTelegram.Client
	enrollments    *EnrollmentService
	submissions    *SubmissionService
	replyTTL       time.Duration
	logger         *logrus.Entry
}

func NewDialogService(
	store correlation.Store,
	ur user.Repository,
	tc domainTelegram.Client,
	enrollments *EnrollmentService,
	submissions *SubmissionService,
	replyTTL time.Duration,
	logger *logrus.Entry,
) *DialogService {
	return &DialogService{
		store:          store,
		userRepo:       ur,
		telegramClient: tc,
		enrollments:    enrollments,
		submissions:    submissions,
		replyTTL:       replyTTL,
		logger:         logger,
	}
}

// StartRegistration opens (or restarts) the registration dialog for a chat.
func (s *DialogService) StartRegistration(ctx context.Context, chatID int64) error {
	dialog := correlation.RegistrationDialog{Stage: correlation.StageWaitingFirstName}
	if err := s.store.Set(ctx, correlation.RegistrationKey(chatID), dialog, 0); err != nil {
		return fmt.Errorf("failed to open registration dialog: %w", err)
	}
	_, err := s.telegramClient.SendMessage(chatID, "Давайте познакомимся! Как вас зовут? Напишите имя.", nil)
	return err
}

// StartQuestion opens the question relay for a registered learner. If a
// registration dialog is open it takes priority and is re-prompted instead.
func (s *DialogService) StartQuestion(ctx context.Context, chatID int64) error {
	var dialog correlation.RegistrationDialog
	inRegistration, err := s.store.Get(ctx, correlation.RegistrationKey(chatID), &dialog)
	if err != nil {
		return err
	}
	if inRegistration {
		return s.repromptRegistration(chatID, dialog.Stage)
	}

	if err := s.store.Set(ctx, correlation.QuestionKey(chatID), correlation.QuestionThread{Open: true}, 0); err != nil {
		return fmt.Errorf("failed to open question thread: %w", err)
	}
	_, err = s.telegramClient.SendMessage(chatID, "Напишите ваш вопрос одним сообщением, и я передам его кураторам.", nil)
	return err
}

// StartReturnFeedback marks a curator as owing feedback text for a returned
// submission; their next text message completes the return decision.
func (s *DialogService) StartReturnFeedback(ctx context.Context, curatorChatID int64, submissionID int64) error {
	entry := correlation.ReturnFeedback{SubmissionID: submissionID}
	if err := s.store.Set(ctx, correlation.ReturnFeedbackKey(curatorChatID), entry, s.replyTTL); err != nil {
		return fmt.Errorf("failed to open return feedback prompt: %w", err)
	}
	_, err := s.telegramClient.SendMessage(curatorChatID, "Напишите комментарий для ученика: почему задание возвращается?", nil)
	return err
}

// HandleText routes an inbound text message through the dialog state
// machines, in priority order. Returns false when no dialog claimed the
// message and the caller should fall through to its default handling.
func (s *DialogService) HandleText(ctx context.Context, chatID int64, replyToMessageID *int, text string) (bool, error) {
	var dialog correlation.RegistrationDialog
	inRegistration, err := s.store.Get(ctx, correlation.RegistrationKey(chatID), &dialog)
	if err != nil {
		return false, err
	}
	if inRegistration {
		return true, s.advanceRegistration(ctx, chatID, &dialog, text)
	}

	sender, err := s.userRepo.GetByTelegramID(ctx, chatID)
	if err != nil {
		if err == idb.ErrUserNotFound {
			// First contact from an unknown sender opens registration.
			return true, s.StartRegistration(ctx, chatID)
		}
		return false, fmt.Errorf("failed to resolve sender: %w", err)
	}

	if sender.CanReview() {
		handled, err := s.handleCuratorText(ctx, sender, chatID, replyToMessageID, text)
		if handled || err != nil {
			return handled, err
		}
	}

	var thread correlation.QuestionThread
	questionOpen, err := s.store.Get(ctx, correlation.QuestionKey(chatID), &thread)
	if err != nil {
		return false, err
	}
	if questionOpen {
		return true, s.relayQuestion(ctx, sender, chatID, text)
	}

	return false, nil
}

// HandleNonText re-prompts an in-progress registration dialog without
// advancing it. Returns false when the sender is not registering.
func (s *DialogService) HandleNonText(ctx context.Context, chatID int64) (bool, error) {
	var dialog correlation.RegistrationDialog
	inRegistration, err := s.store.Get(ctx, correlation.RegistrationKey(chatID), &dialog)
	if err != nil || !inRegistration {
		return false, err
	}
	return true, s.repromptRegistration(chatID, dialog.Stage)
}

func (s *DialogService) advanceRegistration(ctx context.Context, chatID int64, dialog *correlation.RegistrationDialog, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.repromptRegistration(chatID, dialog.Stage)
	}

	switch dialog.Stage {
	case correlation.StageWaitingFirstName:
		dialog.FirstName = text
		dialog.Stage = correlation.StageWaitingLastName
		if err := s.store.Set(ctx, correlation.RegistrationKey(chatID), dialog, 0); err != nil {
			return err
		}
		_, err := s.telegramClient.SendMessage(chatID, "Отлично! Теперь напишите фамилию.", nil)
		return err

	case correlation.StageWaitingLastName:
		dialog.LastName = text
		dialog.Stage = correlation.StageWaitingPosition
		if err := s.store.Set(ctx, correlation.RegistrationKey(chatID), dialog, 0); err != nil {
			return err
		}
		_, err := s.telegramClient.SendMessage(chatID, "И последнее: укажите вашу должность.", nil)
		return err

	case correlation.StageWaitingPosition:
		return s.completeRegistration(ctx, chatID, dialog, text)

	default:
		s.logger.WithField("stage", dialog.Stage).Warn("Unknown registration stage, restarting dialog")
		return s.StartRegistration(ctx, chatID)
	}
}

func (s *DialogService) completeRegistration(ctx context.Context, chatID int64, dialog *correlation.RegistrationDialog, position string) error {
	newUser := &user.User{
		TelegramID: sql.NullInt64{Int64: chatID, Valid: true},
		FirstName:  dialog.FirstName,
		LastName:   sql.NullString{String: dialog.LastName, Valid: dialog.LastName != ""},
		Position:   sql.NullString{String: position, Valid: true},
		Role:       user.RoleLearner,
		IsActive:   true,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if err == idb.ErrDuplicateTelegramID {
			// Registered through another path while the dialog was open.
			_ = s.store.Delete(ctx, correlation.RegistrationKey(chatID))
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := s.store.Delete(ctx, correlation.RegistrationKey(chatID)); err != nil {
		s.logger.WithError(err).Warn("Failed to clear registration dialog state")
	}

	s.logger.WithFields(logrus.Fields{"user_id": newUser.ID, "chat_id": chatID}).Info("Learner registered")

	if err := s.enrollments.AutoUnlockFirstModule(ctx, newUser.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", newUser.ID).Error("Failed to auto-unlock first module")
	}

	_, err := s.telegramClient.SendMessage(chatID,
		fmt.Sprintf("Спасибо, %s! Регистрация завершена, первый модуль курса уже открыт.", dialog.FirstName), nil)
	return err
}

func (s *DialogService) repromptRegistration(chatID int64, stage correlation.RegistrationStage) error {
	var prompt string
	switch stage {
	case correlation.StageWaitingFirstName:
		prompt = "Пожалуйста, напишите имя текстом."
	case correlation.StageWaitingLastName:
		prompt = "Пожалуйста, напишите фамилию текстом."
	case correlation.StageWaitingPosition:
		prompt = "Пожалуйста, напишите должность текстом."
	default:
		prompt = "Пожалуйста, ответьте текстом."
	}
	_, err := s.telegramClient.SendMessage(chatID, prompt, nil)
	return err
}

// relayQuestion broadcasts the learner's question to every active reviewer
// and registers each relayed message ID so a curator's reply can be routed
// back without command syntax. Entries expire after the configured TTL.
func (s *DialogService) relayQuestion(ctx context.Context, sender *user.User, chatID int64, text string) error {
	reviewers, err := s.userRepo.ListActiveReviewers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list reviewers for question relay: %w", err)
	}

	relayText := fmt.Sprintf("Вопрос от %s:\n%s", sender.FullName(), text)
	relayed := 0
	for _, reviewer := range reviewers {
		if !reviewer.TelegramID.Valid {
			continue
		}
		messageID, err := s.telegramClient.SendMessage(reviewer.TelegramID.Int64, relayText, nil)
		if err != nil {
			s.logger.WithError(err).WithField("reviewer_id", reviewer.ID).Error("Failed to relay question to reviewer")
			continue
		}
		entry := correlation.CuratorReply{LearnerChatID: chatID, LearnerName: sender.FullName()}
		if err := s.store.Set(ctx, correlation.CuratorReplyKey(reviewer.TelegramID.Int64, messageID), entry, s.replyTTL); err != nil {
			s.logger.WithError(err).Error("Failed to register curator reply correlation")
		}
		relayed++
	}

	if err := s.store.Delete(ctx, correlation.QuestionKey(chatID)); err != nil {
		s.logger.WithError(err).Warn("Failed to clear question thread state")
	}

	if relayed == 0 {
		_, err := s.telegramClient.SendMessage(chatID, "Сейчас некому передать вопрос, попробуйте позже.", nil)
		return err
	}
	_, err = s.telegramClient.SendMessage(chatID, "Вопрос передан кураторам. Ответ придёт сюда же.", nil)
	return err
}

// handleCuratorText resolves curator-side text messages: pending return
// feedback first, then replies to relayed questions.
func (s *DialogService) handleCuratorText(ctx context.Context, sender *user.User, chatID int64, replyToMessageID *int, text string) (bool, error) {
	var pending correlation.ReturnFeedback
	awaitingFeedback, err := s.store.Get(ctx, correlation.ReturnFeedbackKey(chatID), &pending)
	if err != nil {
		return false, err
	}
	if awaitingFeedback {
		if err := s.store.Delete(ctx, correlation.ReturnFeedbackKey(chatID)); err != nil {
			s.logger.WithError(err).Warn("Failed to clear return feedback state")
		}
		_, err := s.submissions.Decide(ctx, pending.SubmissionID, OutcomeReturn, nil, text)
		if err != nil {
			if err == ErrSubmissionConflict {
				_, sendErr := s.telegramClient.SendMessage(chatID, "Это задание уже проверено другим куратором.", nil)
				return true, sendErr
			}
			return true, err
		}
		_, sendErr := s.telegramClient.SendMessage(chatID, "Задание возвращено ученику на доработку.", nil)
		return true, sendErr
	}

	if replyToMessageID == nil {
		return false, nil
	}
	var reply correlation.CuratorReply
	found, err := s.store.Get(ctx, correlation.CuratorReplyKey(chatID, *replyToMessageID), &reply)
	if err != nil || !found {
		return false, err
	}

	_, err = s.telegramClient.SendMessage(reply.LearnerChatID, fmt.Sprintf("Ответ куратора:\n%s", text), nil)
	if err != nil {
		return true, fmt.Errorf("failed to relay curator reply: %w", err)
	}
	_, err = s.telegramClient.SendMessage(chatID, "Ответ передан ученику.", nil)
	return true, err
}
