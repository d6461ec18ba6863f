// internal/domain/scoring/scorer.go
package scoring

import "context"

// Request carries everything the scoring collaborator needs to pre-score an
// answer. An empty Rubric means the collaborator-facing client supplies its
// built-in default rubric.
type Request struct {
	TaskText   string
	AnswerText string
	MaxScore   float64
	Rubric     string
}

// Scorer is the external automated-grading collaborator. It returns the raw
// reply text; the collaborator is allowed to answer with something other
// than the requested JSON shape, so callers parse defensively.
type Scorer interface {
	Score(ctx context.Context, req Request) (string, error)
}
