// internal/infra/telegram/client.go
package telegram

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain chat client using gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message and returns the platform message ID so
// callers can use it as a reply-correlation key.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) (int, error) {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID}
	msg, err := tba.bot.Send(recipient, text, options)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (tba *TelebotAdapter) SendVoice(recipientChatID int64, data []byte, caption string) error {
	recipient := &telebot.User{ID: recipientChatID}
	voice := &telebot.Voice{File: telebot.FromReader(bytes.NewReader(data)), Caption: caption}
	_, err := tba.bot.Send(recipient, voice)
	return err
}

func (tba *TelebotAdapter) SendDocument(recipientChatID int64, data []byte, filename, caption string) error {
	recipient := &telebot.User{ID: recipientChatID}
	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(data)),
		FileName: filename,
		Caption:  caption,
	}
	_, err := tba.bot.Send(recipient, doc)
	return err
}

// DownloadFile fetches an inbound attachment by its platform file reference.
func (tba *TelebotAdapter) DownloadFile(fileID string) ([]byte, error) {
	reader, err := tba.bot.File(&telebot.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", fileID, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}
