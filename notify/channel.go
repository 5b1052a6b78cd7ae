// Package notify maintains the live, session-scoped notification feed for
// the Quantify client.
//
// The Channel watches the session store and keeps exactly one push
// connection open while a session with the notifications.read permission
// exists: it reconnects with a fixed backoff when the socket drops,
// re-authenticates by reconnecting whenever the user or access token
// changes, and tears everything down the moment the session becomes
// invalid. Incoming events are de-duplicated by ID into a bounded feed;
// out-of-band control events are routed to the event bus and never touch
// the feed.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MuhibNayem/quantify-go/api"
	"github.com/MuhibNayem/quantify-go/internal/metrics"
	"github.com/MuhibNayem/quantify-go/pkg/bus"
	"github.com/MuhibNayem/quantify-go/pkg/observe"
	"github.com/MuhibNayem/quantify-go/session"
)

// PermissionRead gates the notification channel; sessions without it get no
// socket and an empty feed.
const PermissionRead = "notifications.read"

// Control event tags routed to the event bus instead of the feed.
const (
	EventBulkJobStatus   = "BULK_JOB_STATUS"
	EventReturnUpdated   = "RETURN_UPDATED"
	EventReturnRequested = "RETURN_REQUESTED"
)

// defaultBackoff is the fixed delay before a reconnect attempt.
const defaultBackoff = 5 * time.Second

// State is the channel's connection lifecycle state.
type State int

const (
	// StateDisconnected holds no socket: initial, after logout, after
	// permission loss.
	StateDisconnected State = iota
	// StateConnecting has a dial in flight.
	StateConnecting
	// StateConnected has an open socket delivering events.
	StateConnected
	// StateReconnectPending has a single backoff timer armed after an
	// unexpected close.
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectPending:
		return "reconnect-pending"
	}
	return "unknown"
}

// Option is a functional option for configuring a Channel.
type Option func(*Channel)

// WithTransport sets the connection factory. Defaults to a real WebSocket
// dialer; tests inject a fake.
func WithTransport(t Transport) Option {
	return func(c *Channel) { c.transport = t }
}

// WithBackoff sets the reconnect delay. Defaults to 5 seconds.
func WithBackoff(d time.Duration) Option {
	return func(c *Channel) { c.backoff = d }
}

// WithSocketURL overrides the push endpoint URL. Defaults to the URL derived
// from the API base.
func WithSocketURL(u string) Option {
	return func(c *Channel) { c.socketURL = u }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithMetrics sets the Prometheus instrumentation. Defaults to none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// Channel is the reconnecting, de-duplicating notification subscription
// manager.
type Channel struct {
	client    *api.Client
	events    *bus.Bus
	transport Transport
	socketURL string
	backoff   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	feed *observe.Observable[FeedState]

	// generation fences stale dial results, reader goroutines, and feed
	// publications. Bumped under mu, but read atomically so it can be
	// checked without the lock.
	generation atomic.Int64

	mu          sync.Mutex
	state       State
	userID      uint
	token       string
	conn        Conn
	reconnect   *time.Timer
	unsubscribe func()
	fetching    bool
	fetchDone   *sync.Cond
}

// NewChannel creates a Channel bound to the client's session store. Call
// Start to begin observing the session.
func NewChannel(client *api.Client, events *bus.Bus, opts ...Option) *Channel {
	c := &Channel{
		client:    client,
		events:    events,
		transport: &WebSocketTransport{},
		socketURL: DeriveSocketURL(client.BaseURL()),
		backoff:   defaultBackoff,
		logger:    slog.Default(),
		feed:      observe.New(FeedState{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.fetchDone = sync.NewCond(&c.mu)
	return c
}

// Start subscribes the channel to session changes. The current session is
// evaluated immediately, so a valid persisted session connects without
// waiting for the next login.
func (c *Channel) Start() {
	c.mu.Lock()
	already := c.unsubscribe != nil
	c.mu.Unlock()
	if already {
		return
	}
	unsub := c.client.Sessions().Subscribe(c.onSessionChange)
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()
}

// Close detaches from the session store and tears down any socket or
// pending reconnect timer.
func (c *Channel) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	// Detach first so a concurrent session change cannot re-dial.
	if unsub != nil {
		unsub()
	}

	c.mu.Lock()
	c.userID = 0
	c.token = ""
	c.teardownLocked()
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	c.feed.Set(FeedState{})
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Feed returns the current feed state.
func (c *Channel) Feed() FeedState {
	return c.feed.Get()
}

// Subscribe registers fn for synchronous delivery of every feed state
// replacement and returns an unsubscribe function.
func (c *Channel) Subscribe(fn func(FeedState)) (unsubscribe func()) {
	return c.feed.Subscribe(fn)
}

// onSessionChange enforces the session-scoping rules: an invalid session
// forces Disconnected and an empty feed synchronously; a changed user or
// token tears down and reconnects; an unchanged valid session is left alone.
func (c *Channel) onSessionChange(s session.Session) {
	var uid uint
	if s.User != nil {
		uid = s.User.ID
	}
	token := s.AccessToken
	valid := uid != 0 && token != "" && s.HasPermission(PermissionRead)

	c.mu.Lock()
	if !valid {
		hadSession := c.userID != 0 || c.token != "" || c.conn != nil || c.reconnect != nil
		c.userID = 0
		c.token = ""
		c.teardownLocked()
		c.mu.Unlock()
		if hadSession {
			c.logger.Info("session invalid, notification channel disconnected")
		}
		c.metrics.SetConnected(false)
		c.feed.Set(FeedState{})
		return
	}

	changed := uid != c.userID || token != c.token
	c.userID = uid
	c.token = token
	c.mu.Unlock()

	if changed {
		go c.Refresh(context.Background())
		c.connect()
	}
}

// connect tears down any previous socket or timer and dials a fresh
// connection for the current session. The dial happens off the caller's
// goroutine; the generation counter discards its result if the channel
// moved on meanwhile.
func (c *Channel) connect() {
	c.mu.Lock()
	c.teardownLocked()
	uid, token := c.userID, c.token
	if uid == 0 || token == "" {
		c.mu.Unlock()
		return
	}
	gen := c.generation.Add(1)
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial(gen, token)
}

func (c *Channel) dial(gen int64, token string) {
	target, err := socketURLWithToken(c.socketURL, token)
	if err != nil {
		c.logger.Error("bad socket url", "url", c.socketURL, "error", err)
		return
	}

	conn, err := c.transport.Dial(context.Background(), target)

	c.mu.Lock()
	if gen != c.generation.Load() {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("notification socket dial failed", "error", err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	// A teardown can land between releasing the lock and this publication.
	// The teardown bumps the generation before it resets the feed, so
	// re-checking inside the update guarantees a logged-out feed is never
	// left marked connected.
	applied := false
	c.feed.Update(func(s FeedState) FeedState {
		if gen != c.generation.Load() {
			return s
		}
		s.Connected = true
		applied = true
		return s
	})
	if applied {
		c.logger.Debug("notification socket connected")
		c.metrics.SetConnected(true)
	}

	go c.readLoop(gen, conn)
}

// readLoop delivers messages until the connection errors. A stale
// generation means this socket was already superseded; only the current
// generation may schedule a reconnect.
func (c *Channel) readLoop(gen int64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen != c.generation.Load() {
				c.mu.Unlock()
				return
			}
			c.conn = nil
			stillValid := c.userID != 0 && c.token != ""
			if stillValid {
				c.logger.Warn("notification socket closed, scheduling reconnect", "error", err)
				c.scheduleReconnectLocked()
			} else {
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			c.metrics.SetConnected(false)
			c.feed.Update(func(s FeedState) FeedState {
				s.Connected = false
				return s
			})
			return
		}
		c.handleMessage(data)
	}
}

// scheduleReconnectLocked arms the backoff timer. At most one timer is ever
// pending; further close events while it is armed are no-ops.
// Callers must hold c.mu.
func (c *Channel) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}
	c.state = StateReconnectPending
	c.reconnect = time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		c.metrics.ObserveReconnect()
		c.connect()
	})
}

// teardownLocked cancels any pending timer, fences outstanding dial and
// reader goroutines, and closes any open socket. Callers must hold c.mu.
func (c *Channel) teardownLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.generation.Add(1)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
}

// handleMessage routes one inbound payload: malformed JSON is dropped,
// control events go to the bus, everything else enters the feed.
func (c *Channel) handleMessage(data []byte) {
	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.logger.Warn("malformed push message dropped", "error", err)
		return
	}

	switch probe.Event {
	case EventBulkJobStatus, EventReturnUpdated, EventReturnRequested:
		c.events.Publish(bus.Event{Tag: probe.Event, Payload: data})
		return
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.logger.Warn("malformed notification dropped", "error", err)
		return
	}
	if n.ID == 0 {
		c.logger.Warn("notification without id dropped")
		return
	}

	c.metrics.ObserveNotification()
	c.feed.Update(func(s FeedState) FeedState {
		return pushItem(s, n)
	})
}

// Refresh re-fetches the notification list and the authoritative unread
// count, replacing both wholesale. Failures are captured in the feed's
// Error field, never returned; a missing user makes this a no-op, matching
// the channel's session gating. When a fetch is already in flight, Refresh
// joins it instead of starting another: it returns only once the feed
// reflects a completed fetch, so callers can read Feed() right after.
func (c *Channel) Refresh(ctx context.Context) {
	c.mu.Lock()
	uid := c.userID
	if uid == 0 {
		c.mu.Unlock()
		return
	}
	if c.fetching {
		for c.fetching {
			c.fetchDone.Wait()
		}
		c.mu.Unlock()
		return
	}
	c.fetching = true
	c.mu.Unlock()

	c.feed.Update(func(s FeedState) FeedState {
		s.Loading = true
		s.Error = ""
		return s
	})

	items, err := c.listNotifications(ctx, uid)
	var count int
	if err == nil {
		count, err = c.unreadCount(ctx, uid)
	}

	if err != nil {
		c.logger.Warn("notification refresh failed", "error", err)
		msg := err.Error()
		c.feed.Update(func(s FeedState) FeedState {
			s.Loading = false
			s.Error = msg
			return s
		})
	} else {
		if len(items) > MaxItems {
			items = items[:MaxItems]
		}
		c.feed.Update(func(s FeedState) FeedState {
			s.Items = items
			s.UnreadCount = count
			s.Loading = false
			s.Error = ""
			return s
		})
	}

	// Cleared only after the feed reflects the outcome, so joiners waiting
	// on the flag never observe a half-finished fetch.
	c.mu.Lock()
	c.fetching = false
	c.fetchDone.Broadcast()
	c.mu.Unlock()
}

// MarkRead marks one notification read on the server, then optimistically
// updates the local feed. Requires a known user.
func (c *Channel) MarkRead(ctx context.Context, id uint) error {
	c.mu.Lock()
	uid := c.userID
	c.mu.Unlock()
	if uid == 0 {
		return api.ErrNotAuthenticated
	}

	if err := c.markRead(ctx, uid, id); err != nil {
		return err
	}
	now := time.Now()
	c.feed.Update(func(s FeedState) FeedState {
		return markItemRead(s, id, now)
	})
	return nil
}

// MarkAllRead marks every notification read on the server, then zeroes the
// local unread state. Requires a known user.
func (c *Channel) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	uid := c.userID
	c.mu.Unlock()
	if uid == 0 {
		return api.ErrNotAuthenticated
	}

	if err := c.markAllRead(ctx, uid); err != nil {
		return err
	}
	now := time.Now()
	c.feed.Update(func(s FeedState) FeedState {
		return markAllItemsRead(s, now)
	})
	return nil
}
