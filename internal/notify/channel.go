package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrapedeck/scrapedeck/internal/metrics"
)

// State is the connection lifecycle phase of a Channel.
type State string

// Channel states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Errors surfaced by Channel operations.
var (
	// ErrConnectInFlight is returned when Connect is called while another
	// connect attempt is still outstanding. Concurrent connects do not queue.
	ErrConnectInFlight = errors.New("connect already in flight")
	// ErrNotConnected is returned when Send is invoked without an open
	// connection. The message is dropped; there is no outbound buffering.
	ErrNotConnected = errors.New("channel not connected")
)

// Config controls Channel behavior.
//   - URL: the notification endpoint.
//   - BaseDelay: first reconnect delay; attempt n waits BaseDelay × 2^(n−1)
//     (default 1s). No jitter, no delay cap beyond the attempt ceiling.
//   - MaxAttempts: reconnect attempts before giving up (default 5).
//   - Logger: optional structured logger.
type Config struct {
	URL         string
	BaseDelay   time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

const (
	defaultBaseDelay   = time.Second
	defaultMaxAttempts = 5
)

// Handler consumes one inbound message. Handlers run sequentially on the
// channel's dispatch goroutine; a panicking handler is isolated and does not
// prevent delivery to the remaining handlers.
type Handler func(Message)

// Channel owns a single persistent duplex connection: connect/reconnect
// lifecycle, outbound serialization, and inbound dispatch by message kind.
type Channel struct {
	cfg       Config
	transport Transport
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	conn     Conn
	attempts int
	// gen increments on every explicit Disconnect. Goroutines spawned for an
	// older generation observe the mismatch and stand down, which makes the
	// resolution of an abandoned connect attempt a no-op.
	gen        int
	subs       map[Kind]map[int]Handler
	nextSubID  int
	lastMsg    Message
	hasLastMsg bool
	cancelRun  context.CancelFunc

	// sleep is swapped out by tests to observe scheduled reconnect delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChannel constructs a Channel over the given transport. The channel
// starts disconnected; call Connect to open it.
func NewChannel(transport Transport, cfg Config) *Channel {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		state:     StateDisconnected,
		subs:      make(map[Kind]map[int]Handler),
		sleep:     sleepContext,
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is currently open.
func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// Connect opens the connection. If already connected it succeeds immediately
// without a new handshake. If a connect attempt is already outstanding it
// fails immediately with ErrConnectInFlight. On success the reconnect attempt
// counter resets to zero.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return ErrConnectInFlight
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, c.cfg.URL)

	c.mu.Lock()
	if c.gen != gen {
		// Torn down while the dial was in flight.
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("channel connect: %w", err)
	}
	c.openLocked(conn, gen)
	c.mu.Unlock()
	return nil
}

// openLocked installs an open connection and starts the run goroutine.
// Caller holds c.mu.
func (c *Channel) openLocked(conn Conn, gen int) {
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	go c.run(runCtx, conn, gen)
}

// Disconnect closes the connection, clears all registered handlers, and
// resets the attempt counter. It is a full teardown, not a pause; any
// in-flight connect or reconnect resolves as a no-op afterwards.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	cancel := c.cancelRun
	c.conn = nil
	c.cancelRun = nil
	c.state = StateDisconnected
	c.attempts = 0
	c.subs = make(map[Kind]map[int]Handler)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Send serializes and transmits msg. If the connection is not open the
// message is dropped and ErrNotConnected returned; nothing is queued.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	if !ValidKind(msg.Kind) {
		return fmt.Errorf("send: unknown message kind %q", msg.Kind)
	}
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || conn == nil {
		c.logger.Warn("dropping outbound message while disconnected", zap.String("kind", string(msg.Kind)))
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("write outbound message: %w", err)
	}
	metrics.ObserveMessageSent(string(msg.Kind))
	return nil
}

// Subscribe registers handler for the given kind and returns an unsubscribe
// function. Calling the returned function more than once is a no-op.
func (c *Channel) Subscribe(kind Kind, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[int]Handler)
	}
	id := c.nextSubID
	c.nextSubID++
	c.subs[kind][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if handlers, ok := c.subs[kind]; ok {
			delete(handlers, id)
		}
	}
}

// Last returns the most recent inbound message of any kind.
func (c *Channel) Last() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMsg, c.hasLastMsg
}

// run reads inbound frames and, on unexpected close, drives the reconnect
// policy. Parsing, dispatch, and reconnects all happen on this goroutine, so
// handlers never run concurrently with each other or with a reconnect.
func (c *Channel) run(ctx context.Context, conn Conn, gen int) {
	for {
		cause := c.readAll(ctx, conn)
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.conn = nil
		c.mu.Unlock()
		c.logger.Warn("connection closed unexpectedly", zap.Error(cause))

		next, ok := c.redial(ctx, gen)
		if !ok {
			return
		}
		conn = next
	}
}

// readAll consumes frames until the connection fails, returning the cause.
func (c *Channel) readAll(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

// redial retries the connection with exponential backoff. It returns the new
// connection, or false once the attempt ceiling is hit or the channel was
// torn down.
func (c *Channel) redial(ctx context.Context, gen int) (Conn, bool) {
	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return nil, false
		}
		c.attempts++
		attempt := c.attempts
		if attempt > c.cfg.MaxAttempts {
			c.attempts = c.cfg.MaxAttempts
			c.mu.Unlock()
			c.logger.Error("reconnect attempts exhausted, manual connect required",
				zap.Int("max_attempts", c.cfg.MaxAttempts))
			return nil, false
		}
		c.state = StateConnecting
		c.mu.Unlock()

		delay := c.cfg.BaseDelay << (attempt - 1)
		c.logger.Info("scheduling reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			c.standDown(gen)
			return nil, false
		}
		metrics.ObserveReconnectAttempt()

		conn, err := c.transport.Dial(ctx, c.cfg.URL)
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			if err == nil {
				_ = conn.Close()
			}
			return nil, false
		}
		if err != nil {
			c.state = StateDisconnected
			c.mu.Unlock()
			c.logger.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.conn = conn
		c.state = StateConnected
		c.attempts = 0
		c.mu.Unlock()
		c.logger.Info("reconnected", zap.Int("attempt", attempt))
		return conn, true
	}
}

// standDown returns the channel to disconnected after an aborted reconnect.
func (c *Channel) standDown(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.state = StateDisconnected
}

// dispatch parses one inbound frame and invokes every handler registered for
// its kind. Malformed payloads are reported and dropped; a panicking handler
// does not prevent delivery to the rest and does not close the connection.
func (c *Channel) dispatch(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		c.logger.Warn("dropping malformed inbound message", zap.Error(err))
		return
	}
	metrics.ObserveMessageReceived(string(msg.Kind))

	c.mu.Lock()
	c.lastMsg = msg
	c.hasLastMsg = true
	handlers := make([]Handler, 0, len(c.subs[msg.Kind]))
	for _, h := range c.subs[msg.Kind] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		c.invoke(h, msg)
	}
}

func (c *Channel) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked during dispatch",
				zap.String("kind", string(msg.Kind)),
				zap.Any("panic", r))
		}
	}()
	h(msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
