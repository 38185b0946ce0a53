package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/model"
)

// timestampGap is how far apart two consecutive entries must be before
// the second one shows its own timestamp again.
const timestampGap = 5 * time.Minute

type (
	// Subscriber is the connection surface the transcript consumes.
	Subscriber interface {
		Subscribe(kind string, fn func(msg model.Message)) func()
	}

	// Publisher is the outbound surface used when sending chat messages.
	Publisher interface {
		Publish(msg model.Message)
	}

	// Entry is one transcript line.
	Entry struct {
		Sender    string
		Content   string
		Timestamp int64
		// System marks server notifications, which render differently
		// from user chat.
		System bool
	}

	// Transcript is the append-only chat log for one room, ordered by
	// arrival (not by timestamp, which is client-generated and subject
	// to clock skew). Entries are never mutated or removed.
	//
	// Safe for concurrent use: inbound appends arrive on a connection's
	// dispatch goroutine while sends may come from a UI input loop.
	Transcript struct {
		logger  zerolog.Logger
		self    string

		mx      sync.Mutex
		entries []Entry
	}
)

// NewTranscript builds a transcript for the local user identified by
// self, whose inbound messages are treated as echoes of optimistic local
// appends.
func NewTranscript(logger *zerolog.Logger, self string) *Transcript {
	return &Transcript{
		logger: logger.With().Str("component", "transcript").Logger(),
		self:   self,
	}
}

// Attach subscribes the transcript to chat messages and server
// notifications on the given connection, and returns a function removing
// both subscriptions.
func (t *Transcript) Attach(sub Subscriber) func() {
	unsubChat := sub.Subscribe(model.KindChatMessage, t.Append)
	unsubNotify := sub.Subscribe(model.KindServerNotify, t.Append)
	return func() {
		unsubChat()
		unsubNotify()
	}
}

// Append adds one inbound message to the transcript. Chat messages from
// the local user are skipped: they were already appended optimistically
// when sent, and the wire copy would double-display them. Matching by
// sender identity is a heuristic, not exact deduplication; the wire
// carries no message identifier to match on.
func (t *Transcript) Append(msg model.Message) {
	t.mx.Lock()
	defer t.mx.Unlock()
	switch msg.Type {
	case model.KindChatMessage:
		if msg.Sender == t.self {
			t.logger.Debug().Msg("skipping echoed chat message")
			return
		}
		if msg.Sender == "" || msg.Content == "" {
			t.logger.Warn().Msg("dropping chat message without sender or content")
			return
		}
		t.entries = append(t.entries, Entry{
			Sender:    msg.Sender,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})

	case model.KindServerNotify:
		if msg.Content == "" {
			t.logger.Warn().Msg("dropping server notification without content")
			return
		}
		sender := msg.Sender
		if sender == "" {
			sender = model.SystemSender
		}
		t.entries = append(t.entries, Entry{
			Sender:    sender,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			System:    true,
		})

	default:
		t.logger.Debug().Str("type", msg.Type).Msg("ignoring message kind")
	}
}

// Send publishes a chat message from the local user and appends it to the
// transcript immediately, without waiting for the wire echo. Blank
// messages are dropped with a warning.
func (t *Transcript) Send(pub Publisher, content string) {
	if strings.TrimSpace(content) == "" || t.self == "" {
		t.logger.Warn().Msg("couldn't send message due to insufficient information")
		return
	}
	msg := model.NewChatMessage("", t.self, content)
	t.mx.Lock()
	t.entries = append(t.entries, Entry{
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	t.mx.Unlock()
	pub.Publish(msg)
}

// Entries returns a copy of the transcript in arrival order.
func (t *Transcript) Entries() []Entry {
	t.mx.Lock()
	defer t.mx.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return len(t.entries)
}

// Grouping derives how entry i should render relative to its
// predecessor: the sender label is shown when the sender changed, and
// the timestamp label is shown when entries are far enough apart in
// time. It is a pure function of sequence position and stores nothing.
func (t *Transcript) Grouping(i int) (showSender, showTimestamp bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if i < 0 || i >= len(t.entries) {
		return false, false
	}
	if i == 0 {
		return true, true
	}
	entry, prev := t.entries[i], t.entries[i-1]
	showSender = prev.Sender != entry.Sender
	gap := entry.Timestamp - prev.Timestamp
	if gap < 0 {
		gap = -gap
	}
	showTimestamp = gap > timestampGap.Milliseconds()
	return showSender, showTimestamp
}
