// internal/infra/httpapi/server.go
package httpapi

import (
	"net/http"

	"course_delivery_bot/internal/app"
	"course_delivery_bot/internal/domain/submission"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server exposes the submission lifecycle over HTTP: the web front-end
// creates text submissions here, curators decide through their own tooling
// and out-of-band scorers post results back.
type Server struct {
	submissionService *app.SubmissionService
	subRepo           submission.Repository
	logger            *logrus.Entry
}

func NewServer(submissionService *app.SubmissionService, subRepo submission.Repository, logger *logrus.Entry) *Server {
	return &Server{
		submissionService: submissionService,
		subRepo:           subRepo,
		logger:            logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/submissions", s.createSubmission)
		api.GET("/submissions/:id", s.getSubmission)
		api.POST("/submissions/:id/decision", s.decideSubmission)
		api.POST("/scoring/callback", s.scoringCallback)
	}
	return router
}

type createSubmissionRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	StepID       int64  `json:"step_id" binding:"required"`
	AnswerType   string `json:"answer_type" binding:"required"`
	AnswerText   string `json:"answer_text"`
	AnswerFileID string `json:"answer_file_id"`
}

func (s *Server) createSubmission(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := s.submissionService.Create(c.Request.Context(), app.CreateRequest{
		UserID:       req.UserID,
		StepID:       req.StepID,
		AnswerType:   submission.AnswerType(req.AnswerType),
		AnswerText:   req.AnswerText,
		AnswerFileID: req.AnswerFileID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submissionView(sub))
}

func (s *Server) getSubmission(c *gin.Context) {
	var uri struct {
		ID int64 `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := s.subRepo.GetByID(c.Request.Context(), uri.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, submissionView(sub))
}

type decisionRequest struct {
	Outcome  string   `json:"outcome" binding:"required"`
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

func (s *Server) decideSubmission(c *gin.Context) {
	var uri struct {
		ID int64 `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := app.DecisionOutcome(req.Outcome)
	if outcome != app.OutcomeApprove && outcome != app.OutcomeReturn {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be APPROVE or RETURN"})
		return
	}

	sub, err := s.submissionService.Decide(c.Request.Context(), uri.ID, outcome, req.Score, req.Feedback)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, submissionView(sub))
}

type scoringCallbackRequest struct {
	SubmissionID int64  `json:"submission_id" binding:"required"`
	Response     string `json:"response" binding:"required"`
}

func (s *Server) scoringCallback(c *gin.Context) {
	var req scoringCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.submissionService.ApplyScoringResponse(c.Request.Context(), req.SubmissionID, req.Response); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// respondError maps the application's precondition taxonomy onto HTTP
// status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	switch err {
	case idb.ErrSubmissionNotFound, idb.ErrStepNotFound, idb.ErrModuleNotFound, idb.ErrUserNotFound, idb.ErrEnrollmentNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case app.ErrModuleLocked, app.ErrCuratorNotAuthorized:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case app.ErrAlreadySubmitted, app.ErrAlreadyApproved, app.ErrSubmissionConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case app.ErrStepNotSubmittable, app.ErrAnswerTypeMismatch, app.ErrEmptyAnswer, app.ErrScoreOutOfRange, app.ErrFeedbackRequired:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.WithError(err).Error("Unhandled error in HTTP handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type submissionResponse struct {
	ID                    int64    `json:"id"`
	UserID                int64    `json:"user_id"`
	ModuleID              int64    `json:"module_id"`
	StepID                int64    `json:"step_id"`
	AnswerType            string   `json:"answer_type"`
	AnswerText            string   `json:"answer_text,omitempty"`
	AnswerFileID          string   `json:"answer_file_id,omitempty"`
	AIScore               *float64 `json:"ai_score,omitempty"`
	AIFeedback            string   `json:"ai_feedback,omitempty"`
	CuratorScore          *float64 `json:"curator_score,omitempty"`
	CuratorFeedback       string   `json:"curator_feedback,omitempty"`
	Status                string   `json:"status"`
	ResubmissionRequested bool     `json:"resubmission_requested"`
}

func submissionView(sub *submission.Submission) submissionResponse {
	view := submissionResponse{
		ID:                    sub.ID,
		UserID:                sub.UserID,
		ModuleID:              sub.ModuleID,
		StepID:                sub.StepID,
		AnswerType:            string(sub.AnswerType),
		AnswerText:            sub.AnswerText.String,
		AnswerFileID:          sub.AnswerFileID.String,
		AIFeedback:            sub.AIFeedback.String,
		CuratorFeedback:       sub.CuratorFeedback.String,
		Status:                string(sub.Status),
		ResubmissionRequested: sub.ResubmissionRequested,
	}
	if sub.AIScore.Valid {
		v := sub.AIScore.Float64
		view.AIScore = &v
	}
	if sub.CuratorScore.Valid {
		v := sub.CuratorScore.Float64
		view.CuratorScore = &v
	}
	return view
}
