// Package stream maintains the push channel for live session updates. It
// parses server-sent frames into typed events, fans them out to
// subscribers, and reconnects with exponential backoff when the channel
// drops unexpectedly.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// Kind tags an incoming frame. The set is closed; dispatch switches on it
// exhaustively.
type Kind int

const (
	KindAgentOutput Kind = iota
	KindProgressUpdate
	KindError
	KindStatusChange
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAgentOutput:
		return "agent_output"
	case KindProgressUpdate:
		return "progress_update"
	case KindError:
		return "error"
	case KindStatusChange:
		return "status_change"
	}
	return "unknown"
}

// kindForWire maps the server's type tag to a Kind. The backend has used
// both long and short names for the same events.
func kindForWire(s string) (Kind, bool) {
	switch s {
	case "agent_output", "output":
		return KindAgentOutput, true
	case "progress_update", "progress", "session":
		return KindProgressUpdate, true
	case "error":
		return KindError, true
	case "status_change", "status":
		return KindStatusChange, true
	}
	return 0, false
}

// Frame is one parsed server push. Raw holds the original text for frames
// that did not parse as structured events.
type Frame struct {
	Kind      Kind
	SessionID string
	Timestamp string
	Data      map[string]any
	Raw       string
}

// Status describes the channel's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Opener dials the push channel for a session. *backend.Client satisfies it.
type Opener interface {
	OpenStream(ctx context.Context, sessionID string) (*http.Response, error)
}

// Handler receives frames. Handlers run on the channel's reader goroutine
// and must not block.
type Handler func(Frame)

type subscriber struct {
	kind *Kind
	fn   Handler
}

// Config holds channel settings.
type Config struct {
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	Logger               *slog.Logger
}

// Option configures the channel.
type Option func(*Config)

// WithReconnectBase sets the delay before the first reconnect attempt. The
// delay doubles on every subsequent attempt.
func WithReconnectBase(d time.Duration) Option {
	return func(c *Config) { c.ReconnectBase = d }
}

// WithMaxReconnectAttempts caps how many consecutive reconnects are tried
// before the channel gives up with a terminal error.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) { c.MaxReconnectAttempts = n }
}

// WithLogger sets the channel logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Channel is a push subscription for one session. The zero value is not
// usable; construct with NewChannel.
type Channel struct {
	opener Opener
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	status    Status
	sessionID string
	subs      map[int]subscriber
	nextSub   int
	cancel    context.CancelFunc
	body      io.ReadCloser
	closed    bool
}

// NewChannel creates a disconnected channel over the given opener.
func NewChannel(opener Opener, opts ...Option) *Channel {
	cfg := Config{
		ReconnectBase:        3 * time.Second,
		MaxReconnectAttempts: 10,
		Logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Channel{
		opener: opener,
		cfg:    cfg,
		logger: cfg.Logger,
		status: StatusDisconnected,
		subs:   make(map[int]subscriber),
	}
}

// Subscribe registers a handler for one frame kind and returns a function
// that removes it.
func (c *Channel) Subscribe(kind Kind, fn Handler) func() {
	return c.register(&kind, fn)
}

// SubscribeAll registers a handler for every frame.
func (c *Channel) SubscribeAll(fn Handler) func() {
	return c.register(nil, fn)
}

func (c *Channel) register(kind *Kind, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscriber{kind: kind, fn: fn}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Connect dials the push channel. It returns an error if the first dial
// fails; after that, drops are handled by automatic reconnection.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	const op = "streamConnect"

	c.mu.Lock()
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return apierrors.Newf(op, apierrors.ClassStream, "channel is already connected")
	}
	c.closed = false
	c.sessionID = sessionID
	c.mu.Unlock()
	c.setStatus(StatusConnecting)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	resp, err := c.opener.OpenStream(ctx, sessionID)
	if err != nil {
		cancel()
		c.setStatus(StatusDisconnected)
		return apierrors.New(op, apierrors.ClassStream, err).
			WithMessage("failed to open live update channel")
	}

	c.mu.Lock()
	c.cancel = cancel
	c.body = resp.Body
	c.mu.Unlock()
	c.setStatus(StatusConnected)

	go c.run(runCtx, resp.Body)
	return nil
}

// run reads frames until the body fails, then cycles through reconnects
// until one succeeds or the attempt budget is spent.
func (c *Channel) run(ctx context.Context, body io.ReadCloser) {
	for {
		c.read(body)
		_ = body.Close()

		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.logger.Warn("live update channel dropped", "session", c.SessionID())

		body = c.reconnect(ctx)
		if body == nil {
			return
		}
	}
}

// read parses server-sent events off the body and dispatches each frame.
// Data lines accumulate until the blank line that ends an event.
func (c *Channel) read(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				c.dispatch(parseFrame(strings.Join(data, "\n")))
				data = data[:0]
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(payload, " "))
		}
	}
	if len(data) > 0 {
		c.dispatch(parseFrame(strings.Join(data, "\n")))
	}
}

// reconnect redials with exponential backoff. It returns the new body, or
// nil when the channel is done for good.
func (c *Channel) reconnect(ctx context.Context) io.ReadCloser {
	delay := c.cfg.ReconnectBase
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		c.setStatus(StatusConnecting)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		if c.isClosed() {
			return nil
		}

		resp, err := c.opener.OpenStream(ctx, c.SessionID())
		if err == nil {
			c.mu.Lock()
			c.body = resp.Body
			c.mu.Unlock()
			c.setStatus(StatusConnected)
			return resp.Body
		}
		c.logger.Warn("reconnect attempt failed",
			"attempt", attempt, "max", c.cfg.MaxReconnectAttempts, "error", err)
		delay *= 2
	}

	terminal := apierrors.Newf("streamReconnect", apierrors.ClassStream,
		"gave up after %d reconnect attempts", c.cfg.MaxReconnectAttempts)
	c.setStatus(StatusError)
	c.dispatch(Frame{
		Kind: KindError,
		Data: map[string]any{"error": terminal.Error()},
	})
	return nil
}

// parseFrame decodes one event payload. Unstructured payloads become
// best-effort agent output rather than being dropped.
func parseFrame(payload string) Frame {
	var wire struct {
		Type      string         `json:"type"`
		SessionID string         `json:"session_id"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
		Content   string         `json:"content"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return Frame{Kind: KindAgentOutput, Raw: payload}
	}
	kind, ok := kindForWire(wire.Type)
	if !ok {
		return Frame{Kind: KindAgentOutput, Raw: payload}
	}
	data := wire.Data
	if data == nil && wire.Content != "" {
		data = map[string]any{"content": wire.Content}
	}
	return Frame{
		Kind:      kind,
		SessionID: wire.SessionID,
		Timestamp: wire.Timestamp,
		Data:      data,
		Raw:       payload,
	}
}

func (c *Channel) dispatch(frame Frame) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.kind == nil || *sub.kind == frame.Kind {
			handlers = append(handlers, sub.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(frame)
	}
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()
	if changed {
		c.dispatch(Frame{
			Kind: KindStatusChange,
			Data: map[string]any{"status": string(s)},
		})
	}
}

// Status reports the connection state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID reports the session this channel is bound to.
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Disconnect cancels any pending reconnect, closes the channel, and leaves
// it reusable. Safe to call more than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed && c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	body := c.body
	c.cancel = nil
	c.body = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	c.setStatus(StatusDisconnected)
}
