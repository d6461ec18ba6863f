// internal/domain/submission/shared_types.go
package submission

// Status represents the review lifecycle state of a submission.
type Status string

const (
	StatusSent            Status = "SENT"
	StatusAIReviewed      Status = "AI_REVIEWED"
	StatusCuratorApproved Status = "CURATOR_APPROVED"
	StatusCuratorReturned Status = "CURATOR_RETURNED"
)

// AnswerType identifies the kind of answer artifact a step expects.
type AnswerType string

const (
	AnswerTypeText  AnswerType = "TEXT"
	AnswerTypeAudio AnswerType = "AUDIO"
	AnswerTypeVideo AnswerType = "VIDEO"
	AnswerTypeFile  AnswerType = "FILE"
)

// IsAttachment reports whether the answer is carried as a file reference
// rather than inline text.
func (t AnswerType) IsAttachment() bool {
	return t == AnswerTypeAudio || t == AnswerTypeVideo || t == AnswerTypeFile
}

// IsRecording reports whether the answer arrives as a voice or video message
// over the chat channel.
func (t AnswerType) IsRecording() bool {
	return t == AnswerTypeAudio || t == AnswerTypeVideo
}
