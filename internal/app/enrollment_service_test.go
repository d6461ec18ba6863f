package app

import (
	"context"
	"testing"

	"course_delivery_bot/internal/domain/enrollment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlock_RequiresReviewerRole(t *testing.T) {
	env := newTestEnv()
	env.seedModule(2, "Продвинутый")
	learner := env.seedLearner(500, 0)
	other := env.seedLearner(501, 0)

	_, err := env.enrollments.Unlock(context.Background(), other.ID, learner.ID, 2)
	assert.ErrorIs(t, err, ErrCuratorNotAuthorized)
}

func TestUnlock_CreatesEnrollmentAndNotifies(t *testing.T) {
	env := newTestEnv()
	env.seedModule(2, "Продвинутый")
	learner := env.seedLearner(500, 0)
	curator := env.seedCurator(900)

	enr, err := env.enrollments.Unlock(context.Background(), curator.ID, learner.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, enrollment.StatusInProgress, enr.Status)
	assert.True(t, enr.UnlockedAt.Valid)
	assert.Equal(t, curator.ID, enr.UnlockedBy.Int64)
	assert.Equal(t, 1, env.queue.count("notify-module-unlocked"))

	messages := env.telegram.messagesTo(500)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "Продвинутый")
}

func TestUnlock_ReopensLockedEnrollment(t *testing.T) {
	env := newTestEnv()
	env.seedModule(1, "Основы")
	learner := env.seedLearner(500, 1)
	curator := env.seedCurator(900)

	require.NoError(t, env.enrollments.Lock(context.Background(), curator.ID, learner.ID, 1))
	enr, err := env.enrollRepo.GetByUserAndModule(context.Background(), learner.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusLocked, enr.Status, "locked enrollments are retained, not deleted")

	reopened, err := env.enrollments.Unlock(context.Background(), curator.ID, learner.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusInProgress, reopened.Status)
	assert.Equal(t, enr.ID, reopened.ID, "the same enrollment row is reused")
}

func TestAutoUnlockFirstModule(t *testing.T) {
	env := newTestEnv()
	env.seedModule(3, "Третий")
	env.seedModule(1, "Первый")
	learner := env.seedLearner(500, 0)

	require.NoError(t, env.enrollments.AutoUnlockFirstModule(context.Background(), learner.ID))

	enr, err := env.enrollRepo.GetByUserAndModule(context.Background(), learner.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusInProgress, enr.Status)
	assert.False(t, enr.UnlockedBy.Valid, "auto-unlock carries no curator reference")

	_, err = env.enrollRepo.GetByUserAndModule(context.Background(), learner.ID, 3)
	assert.Error(t, err, "only the first module opens")
}

func TestAutoUnlockFirstModule_NoModulesIsNoop(t *testing.T) {
	env := newTestEnv()
	learner := env.seedLearner(500, 0)

	require.NoError(t, env.enrollments.AutoUnlockFirstModule(context.Background(), learner.ID))

	list, err := env.enrollRepo.ListByUser(context.Background(), learner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
