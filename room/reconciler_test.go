package room

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webbben/code-duel-client/model"
)

func newTestReconciler(users ...string) (*Reconciler, *model.Room) {
	logger := zerolog.Nop()
	snap := &model.Room{
		ID:         "room1",
		Title:      "test room",
		Difficulty: 2,
		Users:      users,
	}
	return NewReconciler(&logger, snap), snap
}

func roomMsg(update model.RoomUpdate) model.Message {
	return model.NewRoomMessage("room1", update)
}

func TestApplySettingsChanges(t *testing.T) {
	r, snap := newTestReconciler("a", "b")

	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeRoomName, "speed round")))
	assert.Equal(t, "speed round", snap.Title)

	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeTimeLimit, 30)))
	assert.Equal(t, 30, snap.TimeLimit)

	r.Apply(roomMsg(model.NewUpdate(model.UpdateRandomProblem, true)))
	assert.True(t, snap.RandomProblem)

	assert.Equal(t, int64(3), r.Revision())
	assert.False(t, r.LastUpdate().IsZero())
}

func TestApplyDifficultyLastWriteWins(t *testing.T) {
	r, snap := newTestReconciler("a")

	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeDifficulty, 3)))
	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeDifficulty, 1)))

	assert.Equal(t, 1, snap.Difficulty)
}

func TestApplyUserJoinIdempotent(t *testing.T) {
	r, snap := newTestReconciler("a", "b")

	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserJoin, "c")))
	assert.Equal(t, []string{"a", "b", "c"}, snap.Users)

	// joining again changes nothing
	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserJoin, "c")))
	assert.Equal(t, []string{"a", "b", "c"}, snap.Users)
}

func TestApplyUserLeave(t *testing.T) {
	r, snap := newTestReconciler("a", "b")

	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserLeave, "b")))
	assert.Equal(t, []string{"a"}, snap.Users)

	// leave for a user not present is a no-op
	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserLeave, "c")))
	assert.Equal(t, []string{"a"}, snap.Users)
}

func TestApplyLaunchGame(t *testing.T) {
	r, snap := newTestReconciler("a")

	r.Apply(roomMsg(model.RoomUpdate{Type: model.UpdateLaunchGame, Data: map[string]any{}}))
	assert.True(t, snap.InGame)
}

func TestApplyChangeProblem(t *testing.T) {
	r, snap := newTestReconciler("a")

	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeProblem, map[string]any{
		"id":         "two-sum",
		"name":       "Two Sum",
		"difficulty": 1,
	})))
	assert.Equal(t, "two-sum", snap.Problem)
	require.NotNil(t, r.Problem())
	assert.Equal(t, "Two Sum", r.Problem().Name)

	// unsetting the problem clears both snapshot field and cache
	r.Apply(roomMsg(model.NewUpdate(model.UpdateChangeProblem, nil)))
	assert.Equal(t, "", snap.Problem)
	assert.Nil(t, r.Problem())
}

func TestApplySetUserReadyDoesNotMutate(t *testing.T) {
	r, snap := newTestReconciler("a")
	before := *snap

	r.Apply(roomMsg(model.NewUpdate(model.UpdateSetUserReady, "a")))

	assert.Equal(t, before.Title, snap.Title)
	assert.Equal(t, before.Difficulty, snap.Difficulty)
	assert.Equal(t, before.InGame, snap.InGame)
}

func TestSnapshotIsACopy(t *testing.T) {
	r, snap := newTestReconciler("a")

	before := r.Snapshot()
	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserJoin, "b")))

	assert.Equal(t, []string{"a"}, before.Users)
	assert.Equal(t, []string{"a", "b"}, snap.Users)
	assert.Equal(t, []string{"a", "b"}, r.Snapshot().Users)
}

func TestApplyUnknownTypeIgnored(t *testing.T) {
	r, snap := newTestReconciler("a")

	r.Apply(roomMsg(model.NewUpdate("SOMETHING_NEW", "whatever")))

	assert.Equal(t, "test room", snap.Title)
	assert.Equal(t, int64(0), r.Revision())
}

func TestApplyMalformedUpdateDropped(t *testing.T) {
	r, snap := newTestReconciler("a")

	r.Apply(model.Message{Type: model.KindRoomMessage, Timestamp: model.Now()})
	r.Apply(roomMsg(model.RoomUpdate{Type: model.UpdateChangeDifficulty, Data: map[string]any{"value": "not a number"}}))
	r.Apply(roomMsg(model.NewUpdate(model.UpdateUserJoin, "")))

	assert.Equal(t, 2, snap.Difficulty)
	assert.Equal(t, []string{"a"}, snap.Users)
	assert.Equal(t, int64(0), r.Revision())
}
