// internal/infra/telegram/curator_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"course_delivery_bot/internal/app"
	idb "course_delivery_bot/internal/infra/database"

	"gopkg.in/telebot.v3"
)

// RegisterCuratorHandlers wires the inline approve/return buttons that
// curators press under submission notifications.
func RegisterCuratorHandlers(
	ctx context.Context,
	b *telebot.Bot,
	submissionService *app.SubmissionService,
	dialogService *app.DialogService,
) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := strings.TrimPrefix(c.Callback().Data, "\f")

		if strings.HasPrefix(data, app.CallbackApprovePrefix) {
			submissionID, err := strconv.ParseInt(strings.TrimPrefix(data, app.CallbackApprovePrefix), 10, 64)
			if err != nil {
				c.Bot().OnError(fmt.Errorf("invalid submission ID in approve callback %q: %w", data, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Ошибка обработки ответа."})
			}

			// Quick approve: no explicit score means full marks with canned
			// feedback.
			_, err = submissionService.Decide(ctx, submissionID, app.OutcomeApprove, nil, "")
			if err != nil {
				switch err {
				case app.ErrSubmissionConflict:
					return c.Respond(&telebot.CallbackResponse{Text: "Задание уже проверено."})
				case idb.ErrSubmissionNotFound:
					return c.Respond(&telebot.CallbackResponse{Text: "Задание не найдено."})
				default:
					c.Bot().OnError(fmt.Errorf("error approving submission %d: %w", submissionID, err), c)
					return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка."})
				}
			}
			return c.Respond(&telebot.CallbackResponse{Text: "Задание зачтено!"})

		} else if strings.HasPrefix(data, app.CallbackReturnPrefix) {
			submissionID, err := strconv.ParseInt(strings.TrimPrefix(data, app.CallbackReturnPrefix), 10, 64)
			if err != nil {
				c.Bot().OnError(fmt.Errorf("invalid submission ID in return callback %q: %w", data, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Ошибка обработки ответа."})
			}

			// Returning needs feedback: the curator's next text message
			// completes the decision.
			if err := dialogService.StartReturnFeedback(ctx, c.Sender().ID, submissionID); err != nil {
				c.Bot().OnError(fmt.Errorf("error opening return feedback for submission %d: %w", submissionID, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка."})
			}
			return c.Respond()
		}

		c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
		return c.Respond(&telebot.CallbackResponse{Text: "Неизвестное действие."})
	})
}
