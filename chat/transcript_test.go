package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webbben/code-duel-client/model"
)

type fakePublisher struct {
	published []model.Message
}

func (f *fakePublisher) Publish(msg model.Message) {
	f.published = append(f.published, msg)
}

func newTestTranscript(self string) *Transcript {
	logger := zerolog.Nop()
	return NewTranscript(&logger, self)
}

func TestSendAppendsOptimistically(t *testing.T) {
	tr := newTestTranscript("alice")
	pub := &fakePublisher{}

	tr.Send(pub, "hi")

	require.Len(t, pub.published, 1)
	assert.Equal(t, model.KindChatMessage, pub.published[0].Type)
	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "hi", tr.Entries()[0].Content)

	// the same message echoed back from the wire must not double-display
	tr.Append(pub.published[0])
	assert.Equal(t, 1, tr.Len())
}

func TestSendRejectsBlankContent(t *testing.T) {
	tr := newTestTranscript("alice")
	pub := &fakePublisher{}

	tr.Send(pub, "   ")

	assert.Empty(t, pub.published)
	assert.Equal(t, 0, tr.Len())
}

// Sends come from the local user's input loop while inbound appends come
// from the connection's dispatch goroutine.
func TestConcurrentSendAndAppend(t *testing.T) {
	tr := newTestTranscript("alice")
	pub := &fakePublisher{}

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			tr.Append(model.NewChatMessage("room1", "bob", "inbound"))
		}
	}()
	for i := 0; i < rounds; i++ {
		tr.Send(pub, "outbound")
	}
	wg.Wait()

	assert.Equal(t, 2*rounds, tr.Len())
	assert.Len(t, pub.published, rounds)
	for i, entry := range tr.Entries() {
		tr.Grouping(i)
		assert.NotEmpty(t, entry.Sender)
	}
}

func TestAppendArrivalOrder(t *testing.T) {
	tr := newTestTranscript("alice")

	// arrival order governs display even when timestamps disagree
	first := model.NewChatMessage("room1", "bob", "later clock")
	first.Timestamp = 2000
	second := model.NewChatMessage("room1", "carol", "earlier clock")
	second.Timestamp = 1000

	tr.Append(first)
	tr.Append(second)

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Sender)
	assert.Equal(t, "carol", entries[1].Sender)
}

func TestAppendServerNotify(t *testing.T) {
	tr := newTestTranscript("alice")

	tr.Append(model.Message{
		Type:      model.KindServerNotify,
		Content:   "bob joined the room",
		Timestamp: model.Now(),
	})

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].System)
	assert.Equal(t, model.SystemSender, entries[0].Sender)
}

func TestAppendDropsIncomplete(t *testing.T) {
	tr := newTestTranscript("alice")

	tr.Append(model.Message{Type: model.KindChatMessage, Sender: "bob"})
	tr.Append(model.Message{Type: model.KindChatMessage, Content: "no sender"})
	tr.Append(model.Message{Type: model.KindServerNotify})
	tr.Append(model.NewRoomMessage("room1", model.NewUpdate(model.UpdateLaunchGame, nil)))

	assert.Equal(t, 0, tr.Len())
}

func TestGrouping(t *testing.T) {
	tr := newTestTranscript("alice")
	base := time.Now().UnixMilli()

	msgs := []model.Message{
		{Type: model.KindChatMessage, Sender: "bob", Content: "one", Timestamp: base},
		{Type: model.KindChatMessage, Sender: "bob", Content: "two", Timestamp: base + 1000},
		{Type: model.KindChatMessage, Sender: "carol", Content: "three", Timestamp: base + 2000},
		{Type: model.KindChatMessage, Sender: "carol", Content: "four", Timestamp: base + 2000 + 6*time.Minute.Milliseconds()},
	}
	for _, msg := range msgs {
		tr.Append(msg)
	}

	showSender, showTimestamp := tr.Grouping(0)
	assert.True(t, showSender)
	assert.True(t, showTimestamp)

	// same sender, close in time: label-free continuation
	showSender, showTimestamp = tr.Grouping(1)
	assert.False(t, showSender)
	assert.False(t, showTimestamp)

	// sender changed
	showSender, showTimestamp = tr.Grouping(2)
	assert.True(t, showSender)
	assert.False(t, showTimestamp)

	// same sender but a long pause
	showSender, showTimestamp = tr.Grouping(3)
	assert.False(t, showSender)
	assert.True(t, showTimestamp)

	// out of range
	showSender, showTimestamp = tr.Grouping(99)
	assert.False(t, showSender)
	assert.False(t, showTimestamp)
}
