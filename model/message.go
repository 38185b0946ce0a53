package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Message types carried over a room websocket connection.
const (
	KindAuthorization = "authorization"
	KindChatMessage   = "chat_message"
	KindRoomMessage   = "room_message"
	KindGameMessage   = "game_message"
	KindServerNotify  = "server_notify"
)

// Room update types that can be broadcast to other clients in a room.
const (
	UpdateChangeRoomName   = "CHANGE_ROOM_NAME"
	UpdateChangeDifficulty = "CHANGE_DIFFICULTY"
	UpdateChangeMode       = "CHANGE_MODE"
	UpdateChangeTimeLimit  = "CHANGE_TIME_LIMIT"
	UpdateChangeProblem    = "CHANGE_PROBLEM"
	UpdateRandomProblem    = "RANDOM_PROBLEM"
	UpdateSetUserReady     = "SET_USER_READY"
	UpdateUserJoin         = "USER_JOIN"
	UpdateUserLeave        = "USER_LEAVE"
	UpdateLaunchGame       = "LAUNCH_GAME"
	UpdateCodeSubmitResult = "CODE_SUBMIT_RESULT"
	UpdateGameOver         = "GAME_OVER"
)

// SystemSender is the sender recorded on messages originated by the server
// rather than by a user in the room.
const SystemSender = "server"

// authSender is stamped on authorization messages, which carry a token
// instead of user content.
const authSender = "websocket"

var (
	ErrMissingSender   = errors.New("message has no sender")
	ErrEmptyContent    = errors.New("message has no content")
	ErrMalformedUpdate = errors.New("room update is missing type or data")
	ErrUnknownKind     = errors.New("unknown message type")
)

// Message is one websocket frame. Fields are populated depending on Type:
// chat messages carry Sender and Content, room and game messages carry a
// RoomUpdate, authorization messages carry a token in Content.
type Message struct {
	Type       string      `json:"type"`
	Room       string      `json:"room,omitempty"`
	Sender     string      `json:"sender,omitempty"`
	Content    string      `json:"content,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	RoomUpdate *RoomUpdate `json:"roomupdate,omitempty"`
}

// RoomUpdate describes a single change to room or game state. Data always
// has a "value" entry, and may carry more context (e.g. "user" on
// CODE_SUBMIT_RESULT).
type RoomUpdate struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Now returns the client clock as milliseconds since epoch, the timestamp
// unit used on every message.
func Now() int64 {
	return time.Now().UnixMilli()
}

func NewUpdate(updateType string, value any) RoomUpdate {
	return RoomUpdate{
		Type: updateType,
		Data: map[string]any{"value": value},
	}
}

func NewChatMessage(room, sender, content string) Message {
	return Message{
		Type:      KindChatMessage,
		Room:      room,
		Sender:    sender,
		Content:   content,
		Timestamp: Now(),
	}
}

func NewRoomMessage(room string, update RoomUpdate) Message {
	return Message{
		Type:       KindRoomMessage,
		Room:       room,
		Timestamp:  Now(),
		RoomUpdate: &update,
	}
}

func NewGameMessage(room string, update RoomUpdate) Message {
	return Message{
		Type:       KindGameMessage,
		Room:       room,
		Timestamp:  Now(),
		RoomUpdate: &update,
	}
}

func NewAuthMessage(room, token string) Message {
	return Message{
		Type:      KindAuthorization,
		Room:      room,
		Sender:    authSender,
		Content:   token,
		Timestamp: Now(),
	}
}

// Validate reports whether the message carries enough information to be
// worth sending. Inbound messages are not validated this way; unknown or
// incomplete inbound frames are dropped by their consumers instead.
func (m *Message) Validate() error {
	switch m.Type {
	case KindChatMessage:
		if m.Sender == "" {
			return ErrMissingSender
		}
		if strings.TrimSpace(m.Content) == "" {
			return ErrEmptyContent
		}
	case KindRoomMessage, KindGameMessage:
		if m.RoomUpdate == nil || m.RoomUpdate.Type == "" || m.RoomUpdate.Data == nil {
			return ErrMalformedUpdate
		}
	case KindAuthorization:
		if m.Content == "" {
			return ErrEmptyContent
		}
	case KindServerNotify:
	default:
		return ErrUnknownKind
	}
	return nil
}

// Value returns the update's "value" entry, or nil if absent.
func (u *RoomUpdate) Value() any {
	if u.Data == nil {
		return nil
	}
	return u.Data["value"]
}

func (u *RoomUpdate) StringValue() string {
	s, _ := u.Value().(string)
	return s
}

// IntValue converts the "value" entry to an int. JSON numbers decode as
// float64, so both forms are accepted.
func (u *RoomUpdate) IntValue() (int, bool) {
	switch v := u.Value().(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func (u *RoomUpdate) BoolValue() (bool, bool) {
	b, ok := u.Value().(bool)
	return b, ok
}

// User returns the "user" context entry carried by CODE_SUBMIT_RESULT
// updates.
func (u *RoomUpdate) User() string {
	if u.Data == nil {
		return ""
	}
	s, _ := u.Data["user"].(string)
	return s
}

// ProblemValue decodes the "value" entry as a problem overview. A nil
// overview with nil error means the problem was unset.
func (u *RoomUpdate) ProblemValue() (*ProblemOverview, error) {
	v := u.Value()
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var overview ProblemOverview
	if err = json.Unmarshal(raw, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}
