package app

import (
	"context"
	"fmt"

	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/submission"
	domainTelegram "course_delivery_bot/internal/domain/telegram"
	"course_delivery_bot/internal/domain/user"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Callback data prefixes for curator inline actions.
const (
	CallbackApprovePrefix = "sub_approve_"
	CallbackReturnPrefix  = "sub_return_"
)

// QuickApproveFeedback is the canned feedback used when a curator approves
// via the inline button without writing anything.
const QuickApproveFeedback = "Отличная работа, задание зачтено!"

// Notifier formats and dispatches outbound messages keyed off submission
// state transitions. All sends go through the task queue: at-least-once,
// failures logged and retried there, never propagated to the caller.
type Notifier struct {
	userRepo       user.Repository
	telegramClient domainTelegram.Client
	queue          TaskQueue
	logger         *logrus.Entry
}

func NewNotifier(ur user.Repository, tc domainTelegram.Client, queue TaskQueue, logger *logrus.Entry) *Notifier {
	return &Notifier{
		userRepo:       ur,
		telegramClient: tc,
		queue:          queue,
		logger:         logger,
	}
}

// NotifyReviewersOfSubmission fans out a review request to every active
// curator/admin. Each send is its own task so one failing recipient never
// blocks the others.
func (n *Notifier) NotifyReviewersOfSubmission(ctx context.Context, sub *submission.Submission, learner *user.User, step *course.Step) {
	reviewers, err := n.userRepo.ListActiveReviewers(ctx)
	if err != nil {
		n.logger.WithError(err).Error("Failed to list reviewers for submission notification")
		return
	}
	if len(reviewers) == 0 {
		n.logger.WithField("submission_id", sub.ID).Warn("No active reviewers to notify")
		return
	}

	text := n.formatReviewRequest(sub, learner, step)
	for _, reviewer := range reviewers {
		if !reviewer.TelegramID.Valid {
			continue
		}
		chatID := reviewer.TelegramID.Int64
		n.queue.Enqueue("notify-reviewer", func(taskCtx context.Context) error {
			markup := &telebot.ReplyMarkup{}
			btnApprove := markup.Data("Зачесть", fmt.Sprintf("%s%d", CallbackApprovePrefix, sub.ID))
			btnReturn := markup.Data("Вернуть", fmt.Sprintf("%s%d", CallbackReturnPrefix, sub.ID))
			markup.Inline(markup.Row(btnApprove, btnReturn))

			if _, err := n.telegramClient.SendMessage(chatID, text, &telebot.SendOptions{ReplyMarkup: markup}); err != nil {
				return err
			}
			n.forwardRecording(sub, chatID)
			return nil
		})
	}
}

// forwardRecording attaches the learner's original recording under the review
// request so curators can listen without opening the learner's chat. Best
// effort: a failed download or send leaves the text notification standing.
func (n *Notifier) forwardRecording(sub *submission.Submission, chatID int64) {
	if !sub.AnswerFileID.Valid || !sub.AnswerType.IsRecording() {
		return
	}
	data, err := n.telegramClient.DownloadFile(sub.AnswerFileID.String)
	if err != nil {
		n.logger.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to download recording for review")
		return
	}
	if sub.AnswerType == submission.AnswerTypeVideo {
		err = n.telegramClient.SendDocument(chatID, data, "answer.mp4", "Ответ ученика")
	} else {
		err = n.telegramClient.SendVoice(chatID, data, "Ответ ученика")
	}
	if err != nil {
		n.logger.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to forward recording to reviewer")
	}
}

func (n *Notifier) formatReviewRequest(sub *submission.Submission, learner *user.User, step *course.Step) string {
	text := fmt.Sprintf("Новый ответ на проверку.\nУченик: %s\nШаг: %s\n", learner.FullName(), step.Title)
	if sub.AIScore.Valid {
		text += fmt.Sprintf("Предварительная оценка ИИ: %.1f из %.0f\n", sub.AIScore.Float64, step.MaxScore)
	}
	if sub.AIFeedback.Valid && sub.AIFeedback.String != "" {
		text += fmt.Sprintf("Комментарий ИИ: %s\n", sub.AIFeedback.String)
	}
	if sub.AnswerText.Valid && sub.AnswerText.String != "" {
		text += fmt.Sprintf("Ответ: %s", sub.AnswerText.String)
	} else if sub.AnswerFileID.Valid {
		text += "Ответ: вложение (аудио/видео)."
	}
	return text
}

// NotifyLearnerDecision tells the learner a curator approved or returned
// their submission.
func (n *Notifier) NotifyLearnerDecision(learner *user.User, step *course.Step, sub *submission.Submission) {
	if !learner.TelegramID.Valid {
		n.logger.WithField("user_id", learner.ID).Debug("Learner has no chat identity, skipping decision notification")
		return
	}
	chatID := learner.TelegramID.Int64

	var text string
	switch sub.Status {
	case submission.StatusCuratorApproved:
		text = fmt.Sprintf("Задание «%s» зачтено!", step.Title)
		if sub.CuratorScore.Valid {
			text += fmt.Sprintf(" Оценка: %.1f из %.0f.", sub.CuratorScore.Float64, step.MaxScore)
		}
		if sub.CuratorFeedback.Valid && sub.CuratorFeedback.String != "" {
			text += "\n" + sub.CuratorFeedback.String
		}
	case submission.StatusCuratorReturned:
		text = fmt.Sprintf("Задание «%s» возвращено на доработку.\nКомментарий куратора: %s\nВы можете отправить ответ заново.", step.Title, sub.CuratorFeedback.String)
	default:
		return
	}

	n.queue.Enqueue("notify-learner-decision", func(taskCtx context.Context) error {
		_, err := n.telegramClient.SendMessage(chatID, text, nil)
		return err
	})
}

// NotifyLearnerModuleComplete congratulates the learner on finishing a module.
func (n *Notifier) NotifyLearnerModuleComplete(learner *user.User, module *course.Module) {
	if !learner.TelegramID.Valid {
		return
	}
	chatID := learner.TelegramID.Int64
	text := fmt.Sprintf("Поздравляем! Модуль «%s» пройден полностью.", module.Title)
	n.queue.Enqueue("notify-module-complete", func(taskCtx context.Context) error {
		_, err := n.telegramClient.SendMessage(chatID, text, nil)
		return err
	})
}

// NotifyLearnerModuleUnlocked tells the learner a module became available.
func (n *Notifier) NotifyLearnerModuleUnlocked(learner *user.User, module *course.Module) {
	if !learner.TelegramID.Valid {
		return
	}
	chatID := learner.TelegramID.Int64
	text := fmt.Sprintf("Вам открыт модуль «%s». Можно приступать!", module.Title)
	n.queue.Enqueue("notify-module-unlocked", func(taskCtx context.Context) error {
		_, err := n.telegramClient.SendMessage(chatID, text, nil)
		return err
	})
}

// NotifyReviewersText sends a plain text message to every active reviewer.
// Used by the scheduler for stuck-review reminders.
func (n *Notifier) NotifyReviewersText(ctx context.Context, text string) {
	reviewers, err := n.userRepo.ListActiveReviewers(ctx)
	if err != nil {
		n.logger.WithError(err).Error("Failed to list reviewers for text notification")
		return
	}
	for _, reviewer := range reviewers {
		if !reviewer.TelegramID.Valid {
			continue
		}
		chatID := reviewer.TelegramID.Int64
		n.queue.Enqueue("notify-reviewer-text", func(taskCtx context.Context) error {
			_, err := n.telegramClient.SendMessage(chatID, text, nil)
			return err
		})
	}
}
