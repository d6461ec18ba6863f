// internal/domain/transcribe/transcriber.go
package transcribe

import "context"

// Transcriber converts a voice/video recording into text. The transcript is
// treated as the answer body for scoring and display. Failures are surfaced
// as errors; the caller logs them and proceeds with an empty transcript
// rather than failing the whole intake.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filenameHint string) (string, error)
}
