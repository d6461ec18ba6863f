// internal/domain/submission/submission.go
package submission

import (
	"database/sql"
	"time"
)

// Submission is one learner's answer for one course step, together with its
// review lifecycle. At most one row exists per (user, step) pair; the unique
// constraint lives in the 'submissions' table.
type Submission struct {
	ID                      int64
	UserID                  int64 // Foreign key to users.id
	ModuleID                int64 // Foreign key to modules.id
	StepID                  int64 // Foreign key to steps.id
	AnswerType              AnswerType
	AnswerText              sql.NullString  // Raw text, or transcript for recordings
	AnswerFileID            sql.NullString  // Opaque attachment reference from the chat platform
	AIScore                 sql.NullFloat64 // Set once by the scoring collaborator
	AIFeedback              sql.NullString
	CuratorScore            sql.NullFloat64
	CuratorFeedback         sql.NullString
	Status                  Status
	ResubmissionRequested   bool
	ResubmissionRequestedAt sql.NullTime
	PromptMessageID         sql.NullInt64 // Outbound message the learner is expected to reply to
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// ResetForResubmission clears prior review results so the submission can run
// the lifecycle again from SENT on the same row.
func (s *Submission) ResetForResubmission() {
	s.AIScore = sql.NullFloat64{}
	s.AIFeedback = sql.NullString{}
	s.CuratorScore = sql.NullFloat64{}
	s.CuratorFeedback = sql.NullString{}
	s.ResubmissionRequested = false
	s.ResubmissionRequestedAt = sql.NullTime{}
	s.Status = StatusSent
}

// AwaitsAnswer reports whether the submission is an open recording prompt
// still waiting for its voice/video message.
func (s *Submission) AwaitsAnswer() bool {
	return s.Status == StatusSent && s.AnswerType.IsRecording() && !s.AnswerFileID.Valid
}
