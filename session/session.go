package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/chat"
	"github.com/webbben/code-duel-client/game"
	"github.com/webbben/code-duel-client/model"
	"github.com/webbben/code-duel-client/room"
)

var (
	ErrJoin     = errors.New("unable to join room")
	ErrLoad     = errors.New("unable to load room data")
	ErrLeave    = errors.New("unable to leave room")
	ErrLaunch   = errors.New("unable to launch game")
	ErrNoRoom   = errors.New("session has no active room")
	ErrNoTarget = errors.New("room has no problem selected")
)

type (
	// RoomAPI is the HTTP collaborator surface the session needs.
	RoomAPI interface {
		GetRoom(ctx context.Context, roomID string) (*model.Room, error)
		JoinRoom(ctx context.Context, roomID string) error
		LeaveRoom(ctx context.Context, roomID string) error
		LaunchGame(ctx context.Context, roomID, problemID string) error
	}

	// Conn is the per-room connection surface. Satisfied by
	// *connection.Connection.
	Conn interface {
		Open(ctx context.Context) error
		Publish(msg model.Message)
		Subscribe(kind string, fn func(msg model.Message)) func()
		Close()
	}

	// Session owns one room membership: it loads the room snapshot over
	// HTTP, opens the room connection, and keeps the reconciler, game
	// tracker and chat transcript attached to it. The live snapshot is
	// mutated on the connection's dispatch goroutine; Room hands out
	// copies, so the session is safe to drive from other goroutines
	// (e.g. a UI input loop).
	Session struct {
		logger   zerolog.Logger
		api      RoomAPI
		dial     DialFunc
		username string

		mx         sync.Mutex
		roomData   *model.Room
		conn       Conn
		reconciler *room.Reconciler
		tracker    *game.Tracker
		transcript *chat.Transcript
		unsubs     []func()
	}

	// DialFunc builds the (unopened) connection for a room.
	DialFunc func(roomID string) Conn

	Config struct {
		Logger   *zerolog.Logger
		API      RoomAPI
		Dial     DialFunc
		Username string
	}
)

func New(cfg Config) *Session {
	return &Session{
		logger: cfg.Logger.With().
			Str("component", "session").
			Str("username", cfg.Username).Logger(),
		api:      cfg.API,
		dial:     cfg.Dial,
		username: cfg.Username,
	}
}

// Join enters the room server-side, loads the room snapshot, and opens
// the room connection with the reconciler, transcript and status
// subscriptions already in place, so no message delivered after the open
// transition can be missed. If loading the snapshot fails after the join
// was accepted, the membership is released again before returning.
func (s *Session) Join(ctx context.Context, roomID string) error {
	if err := s.api.JoinRoom(ctx, roomID); err != nil {
		return errors.Join(ErrJoin, err)
	}
	roomData, err := s.api.GetRoom(ctx, roomID)
	if err != nil {
		if leaveErr := s.api.LeaveRoom(ctx, roomID); leaveErr != nil {
			s.logger.Warn().Err(leaveErr).Str("roomID", roomID).
				Msg("unable to release membership after failed room load")
		}
		return errors.Join(ErrLoad, err)
	}
	roomData.ID = roomID

	s.mx.Lock()
	s.roomData = roomData
	s.conn = s.dial(roomID)
	s.reconciler = room.NewReconciler(&s.logger, roomData)
	s.transcript = chat.NewTranscript(&s.logger, s.username)

	s.unsubs = append(s.unsubs,
		s.reconciler.Attach(s.conn),
		s.transcript.Attach(s.conn),
		// the progress tracker is built once the game actually starts,
		// so its progress map covers the members present at launch
		s.conn.Subscribe(model.KindRoomMessage, s.onRoomMessage),
	)
	conn := s.conn
	s.mx.Unlock()

	if err = conn.Open(ctx); err != nil {
		return err
	}
	s.logger.Debug().Str("roomID", roomID).Msg("joined room")
	return nil
}

func (s *Session) onRoomMessage(msg model.Message) {
	if msg.RoomUpdate == nil || msg.RoomUpdate.Type != model.UpdateLaunchGame {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.roomData == nil || s.tracker != nil {
		return
	}
	s.tracker = game.NewTracker(&s.logger, s.roomData)
	s.unsubs = append(s.unsubs, s.tracker.Attach(s.conn))
	s.logger.Debug().Msg("game tracker attached")
}

// Leave tears the session down: subscriptions removed, connection closed
// (discarding any unsent messages), and the server-side membership
// released.
func (s *Session) Leave(ctx context.Context) error {
	s.mx.Lock()
	if s.roomData == nil {
		s.mx.Unlock()
		return ErrNoRoom
	}
	roomID := s.roomData.ID
	conn := s.conn
	unsubs := s.unsubs
	s.unsubs = nil
	s.roomData = nil
	s.mx.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	conn.Close()

	err := s.api.LeaveRoom(ctx, roomID)
	s.logger.Debug().Str("roomID", roomID).Msg("left room")
	if err != nil {
		return errors.Join(ErrLeave, err)
	}
	return nil
}

// SendChat sends a chat message as the session user, with optimistic
// local append.
func (s *Session) SendChat(content string) {
	s.mx.Lock()
	transcript, conn := s.transcript, s.conn
	s.mx.Unlock()
	if transcript == nil {
		return
	}
	transcript.Send(conn, content)
}

// SendRoomUpdate broadcasts a room setting change to the other clients.
func (s *Session) SendRoomUpdate(updateType string, value any) {
	s.mx.Lock()
	conn := s.conn
	s.mx.Unlock()
	if conn == nil {
		return
	}
	conn.Publish(model.NewRoomMessage("", model.NewUpdate(updateType, value)))
}

// Launch asks the server to start the game for the selected problem.
// Room owners only; the server broadcasts LAUNCH_GAME to everyone once
// it accepts.
func (s *Session) Launch(ctx context.Context) error {
	snap := s.Room()
	if snap == nil {
		return ErrNoRoom
	}
	if snap.Problem == "" && !snap.RandomProblem {
		return ErrNoTarget
	}
	if err := s.api.LaunchGame(ctx, snap.ID, snap.Problem); err != nil {
		return errors.Join(ErrLaunch, err)
	}
	return nil
}

// Room returns a copy of the current room snapshot, or nil before Join
// and after Leave.
func (s *Session) Room() *model.Room {
	s.mx.Lock()
	reconciler := s.reconciler
	joined := s.roomData != nil
	s.mx.Unlock()
	if !joined {
		return nil
	}
	return reconciler.Snapshot()
}

func (s *Session) Reconciler() *room.Reconciler {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.reconciler
}

// Tracker returns the game progress tracker, or nil until the game has
// launched.
func (s *Session) Tracker() *game.Tracker {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.tracker
}

func (s *Session) Transcript() *chat.Transcript {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.transcript
}
