package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for the chat gateway.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	// SendMessage sends a text message and returns the platform message ID,
	// which callers use as a reply-correlation key.
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) (int, error)

	// SendVoice sends an audio recording as a voice message.
	SendVoice(recipientChatID int64, data []byte, caption string) error

	// SendDocument sends an arbitrary file.
	SendDocument(recipientChatID int64, data []byte, filename, caption string) error

	// DownloadFile fetches the bytes of an inbound attachment by its opaque
	// platform file reference.
	DownloadFile(fileID string) ([]byte, error)
}
