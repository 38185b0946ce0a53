package game

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/model"
)

type (
	// Subscriber is the connection surface the tracker consumes.
	Subscriber interface {
		Subscribe(kind string, fn func(msg model.Message)) func()
	}

	// Tracker keeps per-user test case progress for one running game,
	// plus the terminal game-over state. Progress is last-write-wins per
	// user and only accepted for users currently in the room; the member
	// list is read live from the shared room snapshot.
	//
	// The terminal flag is the single source of truth consumers must
	// check before accepting further gameplay input. Updates arrive on a
	// connection's dispatch goroutine; the accessors are safe to call
	// from any goroutine.
	Tracker struct {
		logger zerolog.Logger
		snap   *model.Room

		mx       sync.Mutex
		progress map[string]int
		gameOver bool
		winner   string
	}
)

// NewTracker builds a tracker for the room's current members, all
// starting at zero passed tests.
func NewTracker(logger *zerolog.Logger, snap *model.Room) *Tracker {
	progress := make(map[string]int, len(snap.Users))
	for _, user := range snap.Users {
		progress[user] = 0
	}
	return &Tracker{
		logger: logger.With().
			Str("component", "tracker").
			Str("roomID", snap.ID).Logger(),
		snap:     snap,
		progress: progress,
	}
}

// Attach subscribes the tracker to game messages on the given connection
// and returns the unsubscribe function.
func (t *Tracker) Attach(sub Subscriber) func() {
	return sub.Subscribe(model.KindGameMessage, t.Apply)
}

// Apply consumes one game message. Unrecognized update types are ignored.
func (t *Tracker) Apply(msg model.Message) {
	update := msg.RoomUpdate
	if update == nil || update.Type == "" {
		t.logger.Warn().Msg("dropping game message without update")
		return
	}

	switch update.Type {
	case model.UpdateCodeSubmitResult:
		passed, ok := update.IntValue()
		if !ok {
			t.logger.Warn().Msg("dropping submit result without numeric value")
			return
		}
		t.UpdateProgress(update.User(), passed)

	case model.UpdateGameOver:
		t.HandleGameOver(update.StringValue())

	default:
		t.logger.Debug().Str("update", update.Type).Msg("ignoring unrecognized game update")
	}
}

// UpdateProgress records the number of test cases a user has passed,
// replacing any prior count. Updates for users not in the room are
// dropped with a warning.
func (t *Tracker) UpdateProgress(user string, passed int) {
	if !t.snap.HasUser(user) {
		t.logger.Warn().Str("user", user).Msg("progress update for user not in this room")
		return
	}
	t.mx.Lock()
	t.progress[user] = passed
	t.mx.Unlock()
	t.logger.Debug().Str("user", user).Int("passed", passed).Msg("user progress updated")
}

// HandleGameOver marks the game as finished. An empty winner means the
// game ended in a tie.
func (t *Tracker) HandleGameOver(winner string) {
	t.mx.Lock()
	t.gameOver = true
	t.winner = winner
	t.mx.Unlock()
	t.logger.Debug().Str("winner", winner).Msg("game over")
}

// Progress returns the user's current passed test count.
func (t *Tracker) Progress(user string) int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.progress[user]
}

// AllProgress returns a copy of the progress map.
func (t *Tracker) AllProgress() map[string]int {
	t.mx.Lock()
	defer t.mx.Unlock()
	out := make(map[string]int, len(t.progress))
	for user, passed := range t.progress {
		out[user] = passed
	}
	return out
}

// Terminal reports whether the game has ended.
func (t *Tracker) Terminal() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.gameOver
}

// Winner returns the winning username, or "" for a tie (or while the
// game is still running).
func (t *Tracker) Winner() string {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.winner
}
