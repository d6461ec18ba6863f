// internal/infra/telegram/learner_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"course_delivery_bot/internal/app"
	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/enrollment"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterLearnerHandlers wires commands and inbound messages from the
// learner side: registration, questions, progress and voice/video answers.
func RegisterLearnerHandlers(
	ctx context.Context,
	b *telebot.Bot,
	dialogService *app.DialogService,
	audioIntake *app.AudioIntakeService,
	enrollmentService *app.EnrollmentService,
	userRepo user.Repository,
	courseRepo course.Repository,
	baseLogger *logrus.Entry,
) {
	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "/start", "sender_id": senderID})
		logCtx.Info("Command received")

		sender, err := userRepo.GetByTelegramID(ctx, senderID)
		if err == nil {
			if sender.CanReview() {
				return c.Send(fmt.Sprintf("Привет, %s! Я буду присылать вам ответы учеников на проверку.", sender.FirstName))
			}
			return c.Send(fmt.Sprintf("С возвращением, %s! Продолжайте обучение. /progress покажет ваш прогресс.", sender.FirstName))
		}
		if err != idb.ErrUserNotFound {
			logCtx.WithError(err).Error("Failed to check sender")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}

		logCtx.Info("Unknown sender, starting registration")
		return dialogService.StartRegistration(ctx, senderID)
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "/help", "sender_id": senderID})
		logCtx.Info("Command received")

		sender, err := userRepo.GetByTelegramID(ctx, senderID)
		if err == nil && sender.CanReview() {
			var helpText strings.Builder
			helpText.WriteString("Команды куратора:\n\n")
			helpText.WriteString("Кнопки «Зачесть» и «Вернуть» приходят под каждым ответом ученика.\n")
			helpText.WriteString("Ответьте на пересланный вопрос ученика, и я передам ответ ему.\n\n")
			helpText.WriteString("`/help` - Показать это сообщение.")
			return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		var helpText strings.Builder
		helpText.WriteString("Доступные команды:\n\n")
		helpText.WriteString("`/start` - Регистрация и приветствие.\n")
		helpText.WriteString("`/progress` - Ваш прогресс по модулям.\n")
		helpText.WriteString("`/ask` - Задать вопрос кураторам.\n")
		helpText.WriteString("`/help` - Показать это сообщение.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/ask", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "/ask", "sender_id": senderID})
		logCtx.Info("Command received")

		if _, err := userRepo.GetByTelegramID(ctx, senderID); err != nil {
			if err == idb.ErrUserNotFound {
				return dialogService.StartRegistration(ctx, senderID)
			}
			logCtx.WithError(err).Error("Failed to check sender")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}
		return dialogService.StartQuestion(ctx, senderID)
	})

	b.Handle("/progress", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "/progress", "sender_id": senderID})
		logCtx.Info("Command received")

		sender, err := userRepo.GetByTelegramID(ctx, senderID)
		if err != nil {
			if err == idb.ErrUserNotFound {
				return dialogService.StartRegistration(ctx, senderID)
			}
			logCtx.WithError(err).Error("Failed to check sender")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}

		enrollments, err := enrollmentService.Progress(ctx, sender.ID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to load progress")
			return c.Send("Не удалось загрузить прогресс. Попробуйте позже.")
		}
		if len(enrollments) == 0 {
			return c.Send("Вам пока не открыт ни один модуль. Куратор откроет доступ.")
		}

		var response strings.Builder
		response.WriteString("Ваш прогресс:\n")
		for _, e := range enrollments {
			module, err := courseRepo.GetModuleByID(ctx, e.ModuleID)
			title := fmt.Sprintf("Модуль %d", e.ModuleID)
			if err == nil {
				title = module.Title
			}
			var status string
			switch e.Status {
			case enrollment.StatusCompleted:
				status = "пройден"
			case enrollment.StatusInProgress:
				status = "в работе"
			default:
				status = "закрыт"
			}
			response.WriteString(fmt.Sprintf("— %s: %s\n", title, status))
		}
		return c.Send(response.String())
	})

	b.Handle(telebot.OnText, func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "on_text", "sender_id": senderID})

		var replyTo *int
		if c.Message().ReplyTo != nil {
			replyTo = &c.Message().ReplyTo.ID
		}

		handled, err := dialogService.HandleText(ctx, senderID, replyTo, c.Text())
		if err != nil {
			logCtx.WithError(err).Error("Dialog handling failed")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}
		if handled {
			return nil
		}
		return c.Send("Я не понял сообщение. Используйте /help для списка команд.")
	})

	handleRecording := func(c telebot.Context, fileID string) error {
		senderID := c.Sender().ID
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "on_recording", "sender_id": senderID})

		// A recording during registration is non-text input: re-prompt.
		handled, err := dialogService.HandleNonText(ctx, senderID)
		if err != nil {
			logCtx.WithError(err).Error("Dialog handling failed")
		}
		if handled {
			return nil
		}

		var replyTo *int
		if c.Message().ReplyTo != nil {
			replyTo = &c.Message().ReplyTo.ID
		}

		_, err = audioIntake.HandleInboundRecording(ctx, senderID, replyTo, fileID)
		if err != nil {
			if err == app.ErrNoPendingPrompt {
				logCtx.Info("Recording did not match any pending prompt, dropping")
				return c.Send("Сообщение получено. Если вы отвечали на задание, начните его сначала.")
			}
			logCtx.WithError(err).Error("Failed to process inbound recording")
			return c.Send("Произошла ошибка при обработке записи. Попробуйте ещё раз.")
		}
		return c.Send("Ответ получен и отправлен на проверку!")
	}

	b.Handle(telebot.OnVoice, func(c telebot.Context) error {
		return handleRecording(c, c.Message().Voice.FileID)
	})
	b.Handle(telebot.OnVideoNote, func(c telebot.Context) error {
		return handleRecording(c, c.Message().VideoNote.FileID)
	})
	b.Handle(telebot.OnVideo, func(c telebot.Context) error {
		return handleRecording(c, c.Message().Video.FileID)
	})
}
