package app

import "fmt"

// Precondition violations surfaced synchronously to the direct caller.
// Boundaries (bot handlers, HTTP API) map these onto user-facing messages
// and status codes; fire-and-forget side effects never raise them.
var (
	ErrModuleLocked         = fmt.Errorf("module is not unlocked for this learner")
	ErrStepNotSubmittable   = fmt.Errorf("step does not accept submissions")
	ErrAnswerTypeMismatch   = fmt.Errorf("answer type does not match what the step expects")
	ErrEmptyAnswer          = fmt.Errorf("answer payload is empty")
	ErrAlreadySubmitted     = fmt.Errorf("already submitted, awaiting review")
	ErrAlreadyApproved      = fmt.Errorf("submission is already approved")
	ErrSubmissionConflict   = fmt.Errorf("submission was already decided")
	ErrScoreOutOfRange      = fmt.Errorf("score is outside the step's allowed range")
	ErrFeedbackRequired     = fmt.Errorf("returning a submission requires feedback")
	ErrNoTelegramAccount    = fmt.Errorf("learner has no linked Telegram account")
	ErrCuratorNotAuthorized = fmt.Errorf("performing user is not a curator")
)
