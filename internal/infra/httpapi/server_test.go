package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course_delivery_bot/internal/domain/submission"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSubmissionRepo serves reads for handler tests; writes are untested here
// since they go through the application service.
type stubSubmissionRepo struct {
	rows map[int64]*submission.Submission
}

func (r *stubSubmissionRepo) Create(context.Context, *submission.Submission) error { return nil }
func (r *stubSubmissionRepo) GetByID(_ context.Context, id int64) (*submission.Submission, error) {
	s, ok := r.rows[id]
	if !ok {
		return nil, idb.ErrSubmissionNotFound
	}
	return s, nil
}
func (r *stubSubmissionRepo) GetByUserAndStep(context.Context, int64, int64) (*submission.Submission, error) {
	return nil, idb.ErrSubmissionNotFound
}
func (r *stubSubmissionRepo) Update(context.Context, *submission.Submission) error { return nil }
func (r *stubSubmissionRepo) UpdateIfStatus(context.Context, *submission.Submission, []submission.Status) error {
	return nil
}
func (r *stubSubmissionRepo) GetByPromptMessageID(context.Context, int64, int) (*submission.Submission, error) {
	return nil, idb.ErrSubmissionNotFound
}
func (r *stubSubmissionRepo) GetLatestAwaitingRecording(context.Context, int64) (*submission.Submission, error) {
	return nil, idb.ErrSubmissionNotFound
}
func (r *stubSubmissionRepo) ListByModuleAndUser(context.Context, int64, int64) ([]*submission.Submission, error) {
	return nil, nil
}
func (r *stubSubmissionRepo) AreAllStepsApproved(context.Context, int64, []int64) (bool, error) {
	return false, nil
}
func (r *stubSubmissionRepo) ListAwaitingCuratorReview(context.Context, time.Time) ([]*submission.Submission, error) {
	return nil, nil
}

func newTestRouter(repo *stubSubmissionRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(io.Discard)
	server := NewServer(nil, repo, l.WithField("component", "test"))
	return server.Router()
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&stubSubmissionRepo{rows: map[int64]*submission.Submission{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSubmission(t *testing.T) {
	repo := &stubSubmissionRepo{rows: map[int64]*submission.Submission{
		42: {
			ID:         42,
			UserID:     7,
			ModuleID:   1,
			StepID:     10,
			AnswerType: submission.AnswerTypeText,
			AnswerText: sql.NullString{String: "ответ", Valid: true},
			AIScore:    sql.NullFloat64{Float64: 8, Valid: true},
			Status:     submission.StatusAIReviewed,
		},
	}}
	router := newTestRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/submissions/42", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body submissionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.ID)
	assert.Equal(t, "AI_REVIEWED", body.Status)
	assert.Equal(t, "ответ", body.AnswerText)
	require.NotNil(t, body.AIScore)
	assert.Equal(t, 8.0, *body.AIScore)
	assert.Nil(t, body.CuratorScore)
}

func TestGetSubmission_NotFound(t *testing.T) {
	router := newTestRouter(&stubSubmissionRepo{rows: map[int64]*submission.Submission{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/submissions/999", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
