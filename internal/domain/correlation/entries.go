// internal/domain/correlation/entries.go
package correlation

import "fmt"

// RegistrationStage marks how far a registration dialog has advanced.
// Each stage is resolved by the next text message from the same sender.
type RegistrationStage string

const (
	StageWaitingFirstName RegistrationStage = "WAITING_FIRST_NAME"
	StageWaitingLastName  RegistrationStage = "WAITING_LAST_NAME"
	StageWaitingPosition  RegistrationStage = "WAITING_POSITION"
)

// RegistrationDialog holds the partially collected profile of an
// unregistered sender.
type RegistrationDialog struct {
	Stage     RegistrationStage `json:"stage"`
	FirstName string            `json:"first_name,omitempty"`
	LastName  string            `json:"last_name,omitempty"`
}

// QuestionThread marks a learner whose next text message is a question to be
// relayed to curators.
type QuestionThread struct {
	Open bool `json:"open"`
}

// CuratorReply maps a message relayed to a curator back to the learner who
// asked, so the curator's reply can be routed without command syntax.
type CuratorReply struct {
	LearnerChatID int64  `json:"learner_chat_id"`
	LearnerName   string `json:"learner_name"`
}

// ReturnFeedback marks a curator whose next text message is the feedback for
// a submission they chose to return.
type ReturnFeedback struct {
	SubmissionID int64 `json:"submission_id"`
}

func RegistrationKey(chatID int64) string {
	return fmt.Sprintf("reg:%d", chatID)
}

func QuestionKey(chatID int64) string {
	return fmt.Sprintf("question:%d", chatID)
}

// CuratorReplyKey is scoped by the curator's chat: message IDs are only
// unique per chat on the platform.
func CuratorReplyKey(curatorChatID int64, messageID int) string {
	return fmt.Sprintf("curreply:%d:%d", curatorChatID, messageID)
}

func ReturnFeedbackKey(curatorChatID int64) string {
	return fmt.Sprintf("retfb:%d", curatorChatID)
}
