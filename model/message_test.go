package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageRoundTrip(t *testing.T) {
	msg := NewChatMessage("room1", "alice", "hello there")

	b, err := json.Marshal(&msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestRoomMessageRoundTrip(t *testing.T) {
	msg := NewRoomMessage("room1", NewUpdate(UpdateChangeRoomName, "new name"))

	b, err := json.Marshal(&msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.Room, decoded.Room)
	assert.Equal(t, msg.Timestamp, decoded.Timestamp)
	require.NotNil(t, decoded.RoomUpdate)
	assert.Equal(t, UpdateChangeRoomName, decoded.RoomUpdate.Type)
	assert.Equal(t, "new name", decoded.RoomUpdate.StringValue())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{
			name: "valid chat message",
			msg:  NewChatMessage("room1", "alice", "hi"),
		},
		{
			name:    "blank chat content",
			msg:     NewChatMessage("room1", "alice", "   "),
			wantErr: ErrEmptyContent,
		},
		{
			name:    "chat without sender",
			msg:     NewChatMessage("room1", "", "hi"),
			wantErr: ErrMissingSender,
		},
		{
			name: "valid room update",
			msg:  NewRoomMessage("room1", NewUpdate(UpdateChangeDifficulty, 2)),
		},
		{
			name:    "room message without update",
			msg:     Message{Type: KindRoomMessage, Timestamp: Now()},
			wantErr: ErrMalformedUpdate,
		},
		{
			name: "room update without type",
			msg: Message{
				Type:       KindRoomMessage,
				Timestamp:  Now(),
				RoomUpdate: &RoomUpdate{Data: map[string]any{"value": 1}},
			},
			wantErr: ErrMalformedUpdate,
		},
		{
			name: "room update without data",
			msg: Message{
				Type:       KindRoomMessage,
				Timestamp:  Now(),
				RoomUpdate: &RoomUpdate{Type: UpdateChangeDifficulty},
			},
			wantErr: ErrMalformedUpdate,
		},
		{
			name: "valid authorization",
			msg:  NewAuthMessage("room1", "tok1"),
		},
		{
			name:    "authorization without token",
			msg:     NewAuthMessage("room1", ""),
			wantErr: ErrEmptyContent,
		},
		{
			name:    "unknown kind",
			msg:     Message{Type: "mystery", Timestamp: Now()},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUpdateValueHelpers(t *testing.T) {
	// JSON numbers decode as float64
	u := RoomUpdate{Type: UpdateChangeDifficulty, Data: map[string]any{"value": float64(3)}}
	v, ok := u.IntValue()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	u = NewUpdate(UpdateChangeDifficulty, 2)
	v, ok = u.IntValue()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	u = NewUpdate(UpdateRandomProblem, true)
	b, ok := u.BoolValue()
	require.True(t, ok)
	assert.True(t, b)

	u = NewUpdate(UpdateChangeRoomName, 42)
	assert.Equal(t, "", u.StringValue())

	u = RoomUpdate{
		Type: UpdateCodeSubmitResult,
		Data: map[string]any{"value": float64(5), "user": "bob"},
	}
	assert.Equal(t, "bob", u.User())
}

func TestProblemValue(t *testing.T) {
	// CHANGE_PROBLEM arrives with the overview as a generic JSON object
	u := RoomUpdate{
		Type: UpdateChangeProblem,
		Data: map[string]any{
			"value": map[string]any{
				"id":         "two-sum",
				"name":       "Two Sum",
				"difficulty": float64(1),
			},
		},
	}
	overview, err := u.ProblemValue()
	require.NoError(t, err)
	require.NotNil(t, overview)
	assert.Equal(t, "two-sum", overview.ID)
	assert.Equal(t, "Two Sum", overview.Name)
	assert.Equal(t, 1, overview.Difficulty)

	// unset problem
	u = RoomUpdate{Type: UpdateChangeProblem, Data: map[string]any{"value": nil}}
	overview, err = u.ProblemValue()
	require.NoError(t, err)
	assert.Nil(t, overview)
}

func TestRoomHasUser(t *testing.T) {
	r := Room{Users: []string{"a", "b"}}
	assert.True(t, r.HasUser("a"))
	assert.False(t, r.HasUser("c"))
}

func TestRoomClone(t *testing.T) {
	r := Room{Title: "dup", Users: []string{"a", "b"}}
	clone := r.Clone()

	r.Users[0] = "z"
	r.Users = append(r.Users, "c")

	assert.Equal(t, []string{"a", "b"}, clone.Users)
	assert.Equal(t, "dup", clone.Title)
}
