package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/webbben/code-duel-client/model"
)

const (
	defaultHandshakeTimeout   = 3 * time.Second
	defaultWriteDeadline      = 5 * time.Second
	defaultCloseWriteDeadline = 2 * time.Second
	defaultMaxMessageSize     = 9000
	defaultPingInterval       = 5 * time.Second
	defaultPongWait           = 7 * time.Second
	defaultReconnectMinDelay  = time.Second
	defaultReconnectMaxDelay  = 30 * time.Second
)

var (
	ErrDial   = errors.New("unable to open room connection")
	ErrClosed = errors.New("connection is closed")
)

// Status is the connection lifecycle state.
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusOpen
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "closed"
	}
}

type (
	// Connection is one persistent websocket connection to a room. It
	// queues outbound messages while the transport is down, flushes the
	// queue in FIFO order once open (after the authorization message, if
	// a token was configured), and fans inbound messages out to
	// subscribers by message type.
	//
	// Subscriber callbacks run sequentially on the connection's read
	// goroutine, in the order frames arrive from the transport. State
	// shared between callbacks therefore needs no locking of its own.
	Connection struct {
		logger    zerolog.Logger
		endpoint  string
		roomID    string
		token     string
		reconnect bool
		onStatus  func(Status, error)
		subs      *registry

		mx      sync.Mutex
		status  Status
		ws      *websocket.Conn
		queue   []model.Message
		closed  bool
		closeCh chan struct{}
	}

	Config struct {
		Logger *zerolog.Logger
		// Endpoint is the websocket URL without the room query
		// parameter, e.g. ws://localhost:8080/ws.
		Endpoint string
		RoomID   string
		// Token, when set, is delivered in an authorization message
		// immediately after the transport opens and before any queued
		// messages are flushed.
		Token string
		// Reconnect enables automatic redial with backoff after an
		// unexpected close. An explicit Close never redials.
		Reconnect bool
		// OnStatus, when set, is invoked on every lifecycle transition.
		// The error is non-nil when the transition was caused by a
		// transport failure.
		OnStatus func(Status, error)
	}
)

func New(cfg Config) *Connection {
	return &Connection{
		logger: cfg.Logger.With().
			Str("component", "connection").
			Str("roomID", cfg.RoomID).
			Str("session", uuid.NewString()).Logger(),
		endpoint:  cfg.Endpoint,
		roomID:    cfg.RoomID,
		token:     cfg.Token,
		reconnect: cfg.Reconnect,
		onStatus:  cfg.OnStatus,
		subs:      newRegistry(),
		closeCh:   make(chan struct{}),
	}
}

// Open dials the room endpoint and brings the connection to the open
// state. Calling Open while the connection is already open or connecting
// is a no-op. On dial failure the connection returns to the closed state
// and any queued messages are kept for a later attempt.
func (c *Connection) Open(ctx context.Context) error {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		return ErrClosed
	}
	if c.status != StatusClosed {
		c.mx.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.mx.Unlock()
	c.notify(StatusConnecting, nil)

	ws, err := c.dial(ctx)
	if err != nil {
		c.mx.Lock()
		c.status = StatusClosed
		c.mx.Unlock()
		c.logger.Error().Err(err).Msg("failed to open room connection")
		c.notify(StatusClosed, err)
		return errors.Join(ErrDial, err)
	}
	c.attach(ws)
	return nil
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	addr := fmt.Sprintf("%s?room=%s", c.endpoint, url.QueryEscape(c.roomID))
	ws, _, err := dialer.DialContext(ctx, addr, nil)
	return ws, err
}

// attach installs the transport, performs the authorization handshake and
// queue flush atomically with respect to concurrent publishes, and starts
// the read and ping goroutines.
func (c *Connection) attach(ws *websocket.Conn) {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		c.shutdownTransport(ws)
		return
	}
	c.ws = ws
	c.status = StatusOpen
	if c.token != "" {
		c.write(ws, model.NewAuthMessage(c.roomID, c.token))
	}
	queued := len(c.queue)
	for _, msg := range c.queue {
		c.write(ws, msg)
	}
	c.queue = nil
	c.mx.Unlock()

	c.logger.Debug().Int("flushed", queued).Msg("room connection open")
	c.notify(StatusOpen, nil)

	go c.readLoop(ws)
	go c.pingLoop(ws)
}

// Publish sends the message immediately when the transport is open, and
// enqueues it otherwise. Messages failing validation or published after
// Close are dropped with a warning; the caller gets no delivery
// confirmation either way.
func (c *Connection) Publish(msg model.Message) {
	if err := msg.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type).Msg("dropping invalid outbound message")
		return
	}
	if msg.Room == "" {
		msg.Room = c.roomID
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = model.Now()
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		c.logger.Warn().Str("type", msg.Type).Msg("dropping message published after close")
		return
	}
	if c.status != StatusOpen {
		c.queue = append(c.queue, msg)
		c.logger.Debug().Str("type", msg.Type).Int("queued", len(c.queue)).
			Msg("transport not open, message queued")
		return
	}
	c.write(c.ws, msg)
}

// Subscribe registers fn for inbound messages of the given type and
// returns its unsubscribe function. Subscribing before Open is safe and
// misses nothing: the message listener is bound to the transport, not to
// the first subscriber.
func (c *Connection) Subscribe(kind string, fn func(msg model.Message)) func() {
	return c.subs.add(kind, fn)
}

// Close shuts the transport down and discards any unsent queued messages.
// Safe to call multiple times and while the connection was never opened.
func (c *Connection) Close() {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	ws := c.ws
	c.ws = nil
	c.status = StatusClosed
	dropped := len(c.queue)
	c.queue = nil
	c.mx.Unlock()

	if dropped > 0 {
		c.logger.Debug().Int("dropped", dropped).Msg("discarding unsent queued messages")
	}
	if ws != nil {
		c.shutdownTransport(ws)
	}
	c.logger.Debug().Msg("room connection closed")
	c.notify(StatusClosed, nil)
}

func (c *Connection) Status() Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}

// write serializes and transmits one message. Callers must hold c.mx, so
// transport writes never interleave.
func (c *Connection) write(ws *websocket.Conn, msg model.Message) {
	b, err := json.Marshal(&msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal outgoing message")
		return
	}
	if err = ws.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket write deadline")
		return
	}
	if err = ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Error().Err(err).Str("type", msg.Type).Msg("failed to write outgoing message")
		return
	}
	c.logger.Trace().Str("type", msg.Type).Msg("message sent")
}

func (c *Connection) readLoop(ws *websocket.Conn) {
	ws.SetReadLimit(defaultMaxMessageSize)
	readDeadlineFunc := func(deadline time.Duration) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	}
	ws.SetPongHandler(func(string) error {
		c.logger.Trace().Msg("got pong")
		return readDeadlineFunc(defaultPongWait)
	})
	if err := readDeadlineFunc(defaultPongWait); err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket read deadline")
		c.detach(ws, err)
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection closed by server")
			} else {
				c.logger.Error().Err(err).Msg("unexpected error during receive")
			}
			c.detach(ws, err)
			return
		}

		var msg model.Message
		if err = json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed incoming message")
			continue
		}
		if msg.Type == "" {
			c.logger.Warn().Msg("dropping incoming message without type")
			continue
		}
		c.logger.Trace().Str("type", msg.Type).Msg("message received")
		c.subs.dispatch(msg)
	}
}

func (c *Connection) pingLoop(ws *websocket.Conn) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer pingTicker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-pingTicker.C:
			c.mx.Lock()
			if c.ws != ws {
				c.mx.Unlock()
				return
			}
			err := ws.SetWriteDeadline(time.Now().Add(defaultWriteDeadline))
			if err == nil {
				err = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
			c.mx.Unlock()
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to send ping")
				return
			}
			c.logger.Trace().Msg("ping sent")
		}
	}
}

// detach drops the failed transport. Queued and newly published messages
// keep accumulating; with Reconnect enabled a redial loop takes over.
func (c *Connection) detach(ws *websocket.Conn, err error) {
	c.mx.Lock()
	if c.ws != ws {
		// another goroutine already replaced or closed this transport
		c.mx.Unlock()
		return
	}
	c.ws = nil
	c.status = StatusClosed
	redial := c.reconnect && !c.closed
	c.mx.Unlock()

	_ = ws.Close()
	c.notify(StatusClosed, err)

	if redial {
		go c.redial()
	}
}

func (c *Connection) redial() {
	c.mx.Lock()
	if c.closed || c.status != StatusClosed {
		c.mx.Unlock()
		return
	}
	c.status = StatusConnecting
	c.mx.Unlock()
	c.notify(StatusConnecting, nil)

	b := &backoff.Backoff{
		Min:    defaultReconnectMinDelay,
		Max:    defaultReconnectMaxDelay,
		Jitter: true,
	}
	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(b.Duration()):
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultHandshakeTimeout)
		ws, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", int(b.Attempt())).Msg("reconnect attempt failed")
			continue
		}
		c.logger.Debug().Msg("reconnected")
		c.attach(ws)
		return
	}
}

// shutdownTransport sends a close frame and closes the underlying
// transport.
func (c *Connection) shutdownTransport(ws *websocket.Conn) {
	err := ws.SetWriteDeadline(time.Now().Add(defaultCloseWriteDeadline))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket write deadline during closing")
	} else if err = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		c.logger.Error().Err(err).Msg("failed to send close frame")
	}
	if err = ws.Close(); err != nil {
		c.logger.Error().Err(err).Msg("failed to close websocket connection")
	}
}

func (c *Connection) notify(status Status, err error) {
	if c.onStatus != nil {
		c.onStatus(status, err)
	}
}
