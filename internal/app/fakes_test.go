package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"course_delivery_bot/internal/domain/course"
	"course_delivery_bot/internal/domain/enrollment"
	"course_delivery_bot/internal/domain/scoring"
	"course_delivery_bot/internal/domain/submission"
	"course_delivery_bot/internal/domain/user"
	idb "course_delivery_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

// syncQueue runs enqueued tasks inline so tests see all side effects by the
// time the triggering call returns.
type syncQueue struct {
	names []string
	errs  []error
}

func (q *syncQueue) Enqueue(name string, fn func(ctx context.Context) error) {
	q.names = append(q.names, name)
	q.errs = append(q.errs, fn(context.Background()))
}

func (q *syncQueue) count(name string) int {
	n := 0
	for _, got := range q.names {
		if got == name {
			n++
		}
	}
	return n
}

// fakeSubmissionRepo is an in-memory submission.Repository with the same
// CAS semantics as the postgres implementation.
type fakeSubmissionRepo struct {
	mu     sync.Mutex
	nextID int64
	seq    int64
	rows   map[int64]submission.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{rows: make(map[int64]submission.Submission)}
}

func (r *fakeSubmissionRepo) stamp() time.Time {
	r.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Second)
}

func (r *fakeSubmissionRepo) Create(_ context.Context, s *submission.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == s.UserID && row.StepID == s.StepID {
			return idb.ErrDuplicateSubmission
		}
	}
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = r.stamp()
	s.UpdatedAt = s.CreatedAt
	r.rows[s.ID] = *s
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id int64) (*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, idb.ErrSubmissionNotFound
	}
	return &row, nil
}

func (r *fakeSubmissionRepo) GetByUserAndStep(_ context.Context, userID, stepID int64) (*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.StepID == stepID {
			row := row
			return &row, nil
		}
	}
	return nil, idb.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) Update(_ context.Context, s *submission.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; !ok {
		return idb.ErrSubmissionNotFound
	}
	s.UpdatedAt = r.stamp()
	r.rows[s.ID] = *s
	return nil
}

func (r *fakeSubmissionRepo) UpdateIfStatus(_ context.Context, s *submission.Submission, expected []submission.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[s.ID]
	if !ok {
		return idb.ErrSubmissionStale
	}
	matches := false
	for _, st := range expected {
		if stored.Status == st {
			matches = true
			break
		}
	}
	if !matches {
		return idb.ErrSubmissionStale
	}
	s.UpdatedAt = r.stamp()
	r.rows[s.ID] = *s
	return nil
}

func (r *fakeSubmissionRepo) GetByPromptMessageID(_ context.Context, userID int64, promptMessageID int) (*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.PromptMessageID.Valid && row.PromptMessageID.Int64 == int64(promptMessageID) {
			row := row
			return &row, nil
		}
	}
	return nil, idb.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) GetLatestAwaitingRecording(_ context.Context, userID int64) (*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *submission.Submission
	for _, row := range r.rows {
		row := row
		if row.UserID != userID || row.Status != submission.StatusSent {
			continue
		}
		if !row.AnswerType.IsRecording() || row.AnswerFileID.Valid {
			continue
		}
		if latest == nil || row.UpdatedAt.After(latest.UpdatedAt) {
			latest = &row
		}
	}
	if latest == nil {
		return nil, idb.ErrSubmissionNotFound
	}
	return latest, nil
}

func (r *fakeSubmissionRepo) ListByModuleAndUser(_ context.Context, moduleID, userID int64) ([]*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*submission.Submission, 0)
	for _, row := range r.rows {
		if row.ModuleID == moduleID && row.UserID == userID {
			row := row
			out = append(out, &row)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) AreAllStepsApproved(_ context.Context, userID int64, stepIDs []int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stepID := range stepIDs {
		approved := false
		for _, row := range r.rows {
			if row.UserID == userID && row.StepID == stepID && row.Status == submission.StatusCuratorApproved {
				approved = true
				break
			}
		}
		if !approved {
			return false, nil
		}
	}
	return true, nil
}

func (r *fakeSubmissionRepo) ListAwaitingCuratorReview(_ context.Context, before time.Time) ([]*submission.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*submission.Submission, 0)
	for _, row := range r.rows {
		if row.Status == submission.StatusAIReviewed && row.UpdatedAt.Before(before) {
			row := row
			out = append(out, &row)
		}
	}
	return out, nil
}

type fakeCourseRepo struct {
	modules map[int64]*course.Module
	steps   map[int64]*course.Step
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		modules: make(map[int64]*course.Module),
		steps:   make(map[int64]*course.Step),
	}
}

func (r *fakeCourseRepo) GetModuleByID(_ context.Context, id int64) (*course.Module, error) {
	m, ok := r.modules[id]
	if !ok {
		return nil, idb.ErrModuleNotFound
	}
	return m, nil
}

func (r *fakeCourseRepo) GetFirstModule(_ context.Context) (*course.Module, error) {
	var first *course.Module
	for _, m := range r.modules {
		if first == nil || m.Position < first.Position {
			first = m
		}
	}
	if first == nil {
		return nil, idb.ErrModuleNotFound
	}
	return first, nil
}

func (r *fakeCourseRepo) ListModules(_ context.Context) ([]*course.Module, error) {
	out := make([]*course.Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeCourseRepo) GetStepByID(_ context.Context, id int64) (*course.Step, error) {
	s, ok := r.steps[id]
	if !ok {
		return nil, idb.ErrStepNotFound
	}
	return s, nil
}

func (r *fakeCourseRepo) ListStepsByModule(_ context.Context, moduleID int64) ([]*course.Step, error) {
	out := make([]*course.Step, 0)
	for _, s := range r.steps {
		if s.ModuleID == moduleID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeCourseRepo) ListRequiredTaskStepIDs(_ context.Context, moduleID int64) ([]int64, error) {
	out := make([]int64, 0)
	for _, s := range r.steps {
		if s.ModuleID == moduleID && s.Required && s.Type == course.StepTypeTask {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

type fakeEnrollmentRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]enrollment.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{rows: make(map[int64]enrollment.Enrollment)}
}

func (r *fakeEnrollmentRepo) Create(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == e.UserID && row.ModuleID == e.ModuleID {
			return idb.ErrDuplicateEnrollment
		}
	}
	r.nextID++
	e.ID = r.nextID
	r.rows[e.ID] = *e
	return nil
}

func (r *fakeEnrollmentRepo) GetByUserAndModule(_ context.Context, userID, moduleID int64) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.ModuleID == moduleID {
			row := row
			return &row, nil
		}
	}
	return nil, idb.ErrEnrollmentNotFound
}

func (r *fakeEnrollmentRepo) Update(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[e.ID]; !ok {
		return idb.ErrEnrollmentNotFound
	}
	r.rows[e.ID] = *e
	return nil
}

func (r *fakeEnrollmentRepo) ListByUser(_ context.Context, userID int64) ([]*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*enrollment.Enrollment, 0)
	for _, row := range r.rows {
		if row.UserID == userID {
			row := row
			out = append(out, &row)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) MarkCompleted(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, idb.ErrEnrollmentNotFound
	}
	if row.Status != enrollment.StatusInProgress {
		return false, nil
	}
	row.Status = enrollment.StatusCompleted
	r.rows[id] = row
	return true, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{rows: make(map[int64]user.User)}
}

func (r *fakeUserRepo) add(u user.User) *user.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = r.nextID
	r.rows[u.ID] = u
	return &u
}

func (r *fakeUserRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.TelegramID.Valid {
		for _, row := range r.rows {
			if row.TelegramID.Valid && row.TelegramID.Int64 == u.TelegramID.Int64 {
				return idb.ErrDuplicateTelegramID
			}
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.rows[u.ID] = *u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	return &row, nil
}

func (r *fakeUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TelegramID.Valid && row.TelegramID.Int64 == telegramID {
			row := row
			return &row, nil
		}
	}
	return nil, idb.ErrUserNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[u.ID]; !ok {
		return idb.ErrUserNotFound
	}
	r.rows[u.ID] = *u
	return nil
}

func (r *fakeUserRepo) ListActiveReviewers(_ context.Context) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*user.User, 0)
	for _, row := range r.rows {
		if row.IsActive && (row.Role == user.RoleCurator || row.Role == user.RoleAdmin) {
			row := row
			out = append(out, &row)
		}
	}
	return out, nil
}

type fakeScorer struct {
	reply    string
	err      error
	lastReq  scoring.Request
	numCalls int
}

func (s *fakeScorer) Score(_ context.Context, req scoring.Request) (string, error) {
	s.lastReq = req
	s.numCalls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *telebot.SendOptions
}

// fakeTelegramClient records outbound messages and hands out incrementing
// message IDs starting at 100.
type fakeTelegramClient struct {
	mu          sync.Mutex
	sent        []sentMessage
	voices      []int64
	documents   []int64
	nextMsgID   int
	sendErr     error
	fileData    []byte
	downloadErr error
}

func newFakeTelegramClient() *fakeTelegramClient {
	return &fakeTelegramClient{nextMsgID: 100, fileData: []byte("recording")}
}

func (c *fakeTelegramClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.nextMsgID++
	c.sent = append(c.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return c.nextMsgID, nil
}

func (c *fakeTelegramClient) SendVoice(chatID int64, data []byte, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices = append(c.voices, chatID)
	return nil
}

func (c *fakeTelegramClient) SendDocument(chatID int64, data []byte, filename, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents = append(c.documents, chatID)
	return nil
}

func (c *fakeTelegramClient) DownloadFile(fileID string) ([]byte, error) {
	if c.downloadErr != nil {
		return nil, c.downloadErr
	}
	return c.fileData, nil
}

func (c *fakeTelegramClient) messagesTo(chatID int64) []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, 0)
	for _, m := range c.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeTelegramClient) lastMessageID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextMsgID
}

// testEnv bundles the services with all their fakes wired together.
type testEnv struct {
	subRepo     *fakeSubmissionRepo
	courseRepo  *fakeCourseRepo
	enrollRepo  *fakeEnrollmentRepo
	userRepo    *fakeUserRepo
	scorer      *fakeScorer
	transcriber *fakeTranscriber
	telegram    *fakeTelegramClient
	queue       *syncQueue

	notifier    *Notifier
	submissions *SubmissionService
	enrollments *EnrollmentService
	audioIntake *AudioIntakeService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		subRepo:     newFakeSubmissionRepo(),
		courseRepo:  newFakeCourseRepo(),
		enrollRepo:  newFakeEnrollmentRepo(),
		userRepo:    newFakeUserRepo(),
		scorer:      &fakeScorer{reply: `{"score": 8, "feedback": "ok"}`},
		transcriber: &fakeTranscriber{},
		telegram:    newFakeTelegramClient(),
		queue:       &syncQueue{},
	}
	logger := testLogger()
	env.notifier = NewNotifier(env.userRepo, env.telegram, env.queue, logger)
	env.submissions = NewSubmissionService(
		env.subRepo, env.courseRepo, env.enrollRepo, env.userRepo,
		env.scorer, env.notifier, env.queue, logger,
	)
	env.enrollments = NewEnrollmentService(env.enrollRepo, env.courseRepo, env.userRepo, env.notifier, logger)
	env.audioIntake = NewAudioIntakeService(
		env.subRepo, env.courseRepo, env.enrollRepo, env.userRepo,
		env.telegram, env.transcriber, env.submissions, logger,
	)
	return env
}

// seedLearner creates a registered learner with a linked chat and an
// IN_PROGRESS enrollment in the given module.
func (env *testEnv) seedLearner(chatID int64, moduleID int64) *user.User {
	learner := env.userRepo.add(user.User{
		TelegramID: nullInt64(chatID),
		FirstName:  "Анна",
		Role:       user.RoleLearner,
		IsActive:   true,
	})
	if moduleID != 0 {
		env.enrollRepo.rows[moduleID*1000+learner.ID] = enrollment.Enrollment{
			ID:       moduleID*1000 + learner.ID,
			UserID:   learner.ID,
			ModuleID: moduleID,
			Status:   enrollment.StatusInProgress,
		}
	}
	return learner
}

func (env *testEnv) seedCurator(chatID int64) *user.User {
	return env.userRepo.add(user.User{
		TelegramID: nullInt64(chatID),
		FirstName:  "Олег",
		Role:       user.RoleCurator,
		IsActive:   true,
	})
}

func (env *testEnv) seedModule(id int64, title string) *course.Module {
	m := &course.Module{ID: id, Title: title, Position: int(id)}
	env.courseRepo.modules[id] = m
	return m
}

func (env *testEnv) seedStep(id, moduleID int64, answerType submission.AnswerType, maxScore float64, requiresScoring bool) *course.Step {
	s := &course.Step{
		ID:              id,
		ModuleID:        moduleID,
		Title:           fmt.Sprintf("Шаг %d", id),
		Content:         "Опишите процесс.",
		Type:            course.StepTypeTask,
		AnswerType:      answerType,
		MaxScore:        maxScore,
		Required:        true,
		RequiresScoring: requiresScoring,
	}
	env.courseRepo.steps[id] = s
	return s
}

func userWithoutChat() user.User {
	return user.User{FirstName: "Борис", Role: user.RoleLearner, IsActive: true}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}
