package room

import (
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/model"
)

type (
	// Subscriber is the connection surface the reconciler consumes.
	Subscriber interface {
		Subscribe(kind string, fn func(msg model.Message)) func()
	}

	// Reconciler applies inbound room update messages to a shared room
	// snapshot. The snapshot is owned by the session that loaded it; the
	// reconciler only mutates it by reference. Every applied update bumps
	// a revision counter and a last-update timestamp, which observers use
	// as their recomputation trigger since snapshot mutation is not
	// otherwise observable.
	//
	// Updates arrive on a connection's dispatch goroutine; the accessors
	// are safe to call from any goroutine, and Snapshot hands out copies.
	Reconciler struct {
		logger zerolog.Logger

		mx         sync.Mutex
		snap       *model.Room
		problem    *model.ProblemOverview
		revision   int64
		lastUpdate time.Time
	}
)

func NewReconciler(logger *zerolog.Logger, snap *model.Room) *Reconciler {
	return &Reconciler{
		logger: logger.With().
			Str("component", "reconciler").
			Str("roomID", snap.ID).Logger(),
		snap: snap,
	}
}

// Attach subscribes the reconciler to room messages on the given
// connection and returns the unsubscribe function.
func (r *Reconciler) Attach(sub Subscriber) func() {
	return sub.Subscribe(model.KindRoomMessage, r.Apply)
}

// Apply executes one room update against the snapshot, in arrival order.
// Unrecognized update types are ignored for forward compatibility, and
// malformed updates are dropped with a diagnostic; neither mutates the
// snapshot or bumps the revision.
func (r *Reconciler) Apply(msg model.Message) {
	r.mx.Lock()
	defer r.mx.Unlock()
	update := msg.RoomUpdate
	if update == nil || update.Type == "" {
		r.logger.Warn().Msg("dropping room message without update")
		return
	}
	logger := r.logger.With().Str("update", update.Type).Logger()

	switch update.Type {
	case model.UpdateChangeRoomName:
		r.snap.Title = update.StringValue()
		logger.Debug().Str("title", r.snap.Title).Msg("room name changed")

	case model.UpdateChangeDifficulty:
		v, ok := update.IntValue()
		if !ok {
			logger.Warn().Msg("dropping update without numeric value")
			return
		}
		r.snap.Difficulty = v
		logger.Debug().Int("difficulty", v).Msg("room difficulty changed")

	case model.UpdateChangeTimeLimit:
		v, ok := update.IntValue()
		if !ok {
			logger.Warn().Msg("dropping update without numeric value")
			return
		}
		r.snap.TimeLimit = v
		logger.Debug().Int("timeLimit", v).Msg("room time limit changed")

	case model.UpdateChangeProblem:
		overview, err := update.ProblemValue()
		if err != nil {
			logger.Warn().Err(err).Msg("dropping update with malformed problem value")
			return
		}
		r.problem = overview
		if overview != nil {
			r.snap.Problem = overview.ID
		} else {
			r.snap.Problem = ""
		}
		logger.Debug().Str("problemID", r.snap.Problem).Msg("room problem changed")

	case model.UpdateRandomProblem:
		v, ok := update.BoolValue()
		if !ok {
			logger.Warn().Msg("dropping update without boolean value")
			return
		}
		r.snap.RandomProblem = v
		logger.Debug().Bool("randomProblem", v).Msg("random problem flag changed")

	case model.UpdateUserJoin:
		user := update.StringValue()
		if user == "" {
			logger.Warn().Msg("dropping join update without username")
			return
		}
		if !r.snap.HasUser(user) {
			r.snap.Users = append(r.snap.Users, user)
		}
		logger.Debug().Str("user", user).Msg("user joined the room")

	case model.UpdateUserLeave:
		user := update.StringValue()
		if user == "" {
			logger.Warn().Msg("dropping leave update without username")
			return
		}
		r.removeUser(user)
		logger.Debug().Str("user", user).Msg("user left the room")

	case model.UpdateLaunchGame:
		r.snap.InGame = true
		logger.Debug().Msg("game launched")

	case model.UpdateSetUserReady:
		// ready state is not tracked on the snapshot yet
		logger.Debug().Str("user", update.StringValue()).Msg("user is now ready")

	case model.UpdateChangeMode:
		// game mode has no client-side representation yet
		logger.Debug().Msg("room mode changed")

	default:
		logger.Debug().Msg("ignoring unrecognized room update")
		return
	}

	r.revision++
	r.lastUpdate = time.UnixMilli(msg.Timestamp)
	if r.logger.GetLevel() <= zerolog.TraceLevel {
		r.logger.Trace().Str("snapshot", spew.Sdump(r.snap)).Msg("room update applied")
	}
}

func (r *Reconciler) removeUser(user string) {
	users := r.snap.Users[:0]
	for _, u := range r.snap.Users {
		if u != user {
			users = append(users, u)
		}
	}
	r.snap.Users = users
}

// Revision returns the number of updates applied so far. Observers
// recompute derived state whenever it changes.
func (r *Reconciler) Revision() int64 {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.revision
}

// LastUpdate returns the timestamp of the most recently applied update.
func (r *Reconciler) LastUpdate() time.Time {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.lastUpdate
}

// Problem returns the overview of the currently selected problem, when
// one was delivered over a CHANGE_PROBLEM update. May be nil.
func (r *Reconciler) Problem() *model.ProblemOverview {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.problem
}

// Snapshot returns a copy of the room state as of the last applied
// update. The live snapshot stays private so readers on other goroutines
// never observe a half-applied update.
func (r *Reconciler) Snapshot() *model.Room {
	r.mx.Lock()
	defer r.mx.Unlock()
	snap := r.snap.Clone()
	return &snap
}
