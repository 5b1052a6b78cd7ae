package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MuhibNayem/quantify-go/api"
	"github.com/MuhibNayem/quantify-go/internal/keystore"
	"github.com/MuhibNayem/quantify-go/pkg/bus"
	"github.com/MuhibNayem/quantify-go/session"
)

// fakeConn is a scripted push connection. Messages pushed via deliver are
// returned by ReadMessage; Close unblocks any pending read with an error.
type fakeConn struct {
	msgs chan []byte
	done chan struct{}
	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs: make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.done:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.msgs <- data
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fakeTransport records dial attempts and hands out fakeConns.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	gate    chan struct{}
	urls    []string
	dialed  chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dialed: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Dial(_ context.Context, url string) (Conn, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	err := t.dialErr
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	t.dialed <- c
	return c, nil
}

func (t *fakeTransport) setDialErr(err error) {
	t.mu.Lock()
	t.dialErr = err
	t.mu.Unlock()
}

// holdDials parks every Dial call until ch is closed.
func (t *fakeTransport) holdDials(ch chan struct{}) {
	t.mu.Lock()
	t.gate = ch
	t.mu.Unlock()
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *fakeTransport) lastURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.urls) == 0 {
		return ""
	}
	return t.urls[len(t.urls)-1]
}

func (t *fakeTransport) waitDial(tt *testing.T) *fakeConn {
	tt.Helper()
	select {
	case c := <-t.dialed:
		return c
	case <-time.After(2 * time.Second):
		tt.Fatal("timed out waiting for dial")
		return nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() session.User {
	return session.User{ID: 7, Username: "alice"}
}

type channelFixture struct {
	store     *session.Store
	client    *api.Client
	transport *fakeTransport
	bus       *bus.Bus
	channel   *Channel
	hits      *sync.Map

	// listHold, when set before login, parks the list endpoint until closed.
	listHold chan struct{}

	server     *httptest.Server
	httpClient *http.Client
	closeOnce  sync.Once
}

// newFixture wires a channel against a fake transport and a REST stub
// serving a fixed listing and unread count. Tests asserting goroutine
// hygiene call shutdown themselves before goleak runs; t.Cleanup covers the
// rest.
func newFixture(t *testing.T, listed []Notification, count int) *channelFixture {
	t.Helper()

	f := &channelFixture{hits: &sync.Map{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/7/notifications", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Store("list", true)
		if ch := f.listHold; ch != nil {
			<-ch
		}
		json.NewEncoder(w).Encode(listed)
	})
	mux.HandleFunc("/users/7/notifications/unread/count", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Store("count", true)
		json.NewEncoder(w).Encode(map[string]int{"count": count})
	})
	mux.HandleFunc("/users/7/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Store("read-all", true)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/users/7/notifications/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Store(r.URL.Path, true)
		w.WriteHeader(http.StatusOK)
	})
	f.server = httptest.NewServer(mux)

	f.httpClient = &http.Client{}
	f.store = session.NewStore(keystore.NewMemory(), testLogger())
	f.client = api.NewClient(f.store,
		api.WithBaseURL(f.server.URL),
		api.WithHTTPClient(f.httpClient),
		api.WithLogger(testLogger()),
	)

	f.transport = newFakeTransport()
	f.bus = bus.New()
	f.channel = NewChannel(f.client, f.bus,
		WithTransport(f.transport),
		WithBackoff(10*time.Millisecond),
		WithLogger(testLogger()),
	)
	f.channel.Start()

	t.Cleanup(f.shutdown)
	return f
}

func (f *channelFixture) shutdown() {
	f.closeOnce.Do(func() {
		f.channel.Close()
		f.server.Close()
		f.httpClient.CloseIdleConnections()
	})
}

func (f *channelFixture) login(t *testing.T, access string) {
	t.Helper()
	err := f.store.Login(access, "r1", "c1", testUser(), []string{PermissionRead})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
}

// settle waits until the login-triggered background fetch has fully landed,
// so later pushes cannot race it.
func (f *channelFixture) settle(t *testing.T) {
	t.Helper()
	waitFor(t, func() bool {
		_, fetched := f.hits.Load("count")
		s := f.channel.Feed()
		return fetched && s.Connected && !s.Loading
	}, "initial fetch never settled")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChannelConnectsForAuthenticatedSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil, 0)
	defer f.shutdown()

	if got := f.channel.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected before login, got %v", got)
	}

	f.login(t, "a1")
	f.transport.waitDial(t)

	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never connected")
	waitFor(t, func() bool { return f.channel.Feed().Connected }, "feed never marked connected")
	f.settle(t)

	url := f.transport.lastURL()
	if url != fmt.Sprintf("%s?token=a1", DeriveSocketURL(f.client.BaseURL())) {
		t.Errorf("unexpected dial url %q", url)
	}
}

func TestChannelIgnoresSessionWithoutPermission(t *testing.T) {
	f := newFixture(t, nil, 0)

	err := f.store.Login("a1", "r1", "c1", testUser(), []string{"inventory.read"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := f.transport.dialCount(); got != 0 {
		t.Errorf("expected no dial without notifications.read, got %d", got)
	}
	if got := f.channel.State(); got != StateDisconnected {
		t.Errorf("expected disconnected, got %v", got)
	}
}

func TestLiveEventsEnterFeed(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.deliver(t, item(1, false))
	conn.deliver(t, item(2, false))
	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 2 }, "events never reached feed")

	s := f.channel.Feed()
	if s.Items[0].ID != 2 || s.Items[1].ID != 1 {
		t.Errorf("expected newest-first [2 1], got %v", ids(s))
	}
	if s.UnreadCount != 2 {
		t.Errorf("expected unread count 2, got %d", s.UnreadCount)
	}
}

func TestControlEventsRouteToBusNotFeed(t *testing.T) {
	f := newFixture(t, nil, 0)

	var mu sync.Mutex
	var got []bus.Event
	f.bus.Subscribe(EventBulkJobStatus, func(ev bus.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.deliver(t, map[string]any{"event": EventBulkJobStatus, "jobId": 12, "status": "COMPLETED"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "control event never reached bus")

	mu.Lock()
	ev := got[0]
	mu.Unlock()
	if ev.Tag != EventBulkJobStatus {
		t.Errorf("unexpected tag %q", ev.Tag)
	}
	var payload struct {
		JobID int `json:"jobId"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.JobID != 12 {
		t.Errorf("payload not preserved: %s", ev.Payload)
	}
	if len(f.channel.Feed().Items) != 0 {
		t.Errorf("control event must never enter the feed, got %v", ids(f.channel.Feed()))
	}
}

func TestMalformedMessagesDropped(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.msgs <- []byte("{not json")
	conn.deliver(t, item(2, false))

	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 1 }, "valid event never arrived")
	if f.channel.Feed().Items[0].ID != 2 {
		t.Errorf("expected only item 2, got %v", ids(f.channel.Feed()))
	}
	if got := f.channel.State(); got != StateConnected {
		t.Errorf("malformed message must not drop the connection, state %v", got)
	}
}

func TestLogoutTearsDownSynchronously(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil, 0)
	defer f.shutdown()

	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.deliver(t, item(1, false))
	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 1 }, "event never arrived")

	f.store.Logout()

	// The subscription fires synchronously inside Logout, so the reset is
	// already visible here.
	if got := f.channel.State(); got != StateDisconnected {
		t.Errorf("expected disconnected after logout, got %v", got)
	}
	s := f.channel.Feed()
	if len(s.Items) != 0 || s.UnreadCount != 0 || s.Connected {
		t.Errorf("expected empty feed after logout, got %+v", s)
	}
	if !conn.closed() {
		t.Error("socket must be closed on logout")
	}

	time.Sleep(30 * time.Millisecond)
	if got := f.transport.dialCount(); got != 1 {
		t.Errorf("no reconnect may follow logout, got %d dials", got)
	}
}

func TestDroppedConnectionReconnects(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	first := f.transport.waitDial(t)
	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never connected")

	first.Close()
	waitFor(t, func() bool { return f.channel.State() == StateReconnectPending }, "reconnect never scheduled")
	if f.channel.Feed().Connected {
		t.Error("feed must show disconnected while reconnect is pending")
	}

	f.transport.waitDial(t)
	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never reconnected")
	if got := f.transport.dialCount(); got != 2 {
		t.Errorf("expected exactly 2 dials, got %d", got)
	}
}

func TestDialFailureRetriesWithBackoff(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.transport.setDialErr(errors.New("connection refused"))

	f.login(t, "a1")
	waitFor(t, func() bool { return f.transport.dialCount() >= 2 }, "never retried after dial failure")
	if got := f.channel.State(); got != StateReconnectPending && got != StateConnecting {
		t.Errorf("expected pending or connecting, got %v", got)
	}

	f.transport.setDialErr(nil)
	f.transport.waitDial(t)
	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never recovered")
}

func TestTokenChangeReconnects(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	first := f.transport.waitDial(t)
	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never connected")

	f.login(t, "a2")
	f.transport.waitDial(t)

	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never reconnected")
	if !first.closed() {
		t.Error("previous socket must be closed on token change")
	}
	url := f.transport.lastURL()
	if url != fmt.Sprintf("%s?token=a2", DeriveSocketURL(f.client.BaseURL())) {
		t.Errorf("expected fresh token in dial url, got %q", url)
	}
}

func TestRefreshReplacesFeedWholesale(t *testing.T) {
	listed := []Notification{item(100, false), item(101, true)}
	f := newFixture(t, listed, 5)
	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	s := f.channel.Feed()
	if len(s.Items) != 2 {
		t.Fatalf("initial fetch never landed, got %v", ids(s))
	}
	if s.UnreadCount != 5 {
		t.Errorf("unread count must come from the server, got %d", s.UnreadCount)
	}

	conn.deliver(t, item(50, false))
	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 3 }, "live event never arrived")

	f.channel.Refresh(context.Background())
	s = f.channel.Feed()
	if len(s.Items) != 2 || s.UnreadCount != 5 {
		t.Fatalf("refresh must replace the feed wholesale, got %+v", s)
	}
	if s.Items[0].ID != 100 || s.Items[1].ID != 101 {
		t.Errorf("expected server order [100 101], got %v", ids(s))
	}
}

func TestRefreshWaitsForInFlightFetch(t *testing.T) {
	listed := []Notification{item(100, false), item(101, false)}
	f := newFixture(t, listed, 2)
	f.listHold = make(chan struct{})

	f.login(t, "a1")
	f.transport.waitDial(t)

	// The login-triggered background fetch is now parked at the list
	// endpoint.
	waitFor(t, func() bool {
		_, ok := f.hits.Load("list")
		return ok
	}, "background fetch never started")

	done := make(chan struct{})
	go func() {
		f.channel.Refresh(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Refresh returned while a fetch was still in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(f.listHold)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh never returned after the fetch completed")
	}

	// Refresh returned, so the feed must already reflect the fetch.
	s := f.channel.Feed()
	if len(s.Items) != 2 || s.UnreadCount != 2 {
		t.Fatalf("feed must reflect the completed fetch when Refresh returns, got %+v", s)
	}
	if s.Loading {
		t.Error("feed must not be loading after Refresh returns")
	}
}

func TestLogoutDuringDialNeverMarksConnected(t *testing.T) {
	f := newFixture(t, nil, 0)
	gate := make(chan struct{})
	f.transport.holdDials(gate)

	var mu sync.Mutex
	sawConnected := false
	unsub := f.channel.Subscribe(func(s FeedState) {
		mu.Lock()
		if s.Connected {
			sawConnected = true
		}
		mu.Unlock()
	})
	defer unsub()

	f.login(t, "a1")
	waitFor(t, func() bool { return f.transport.dialCount() == 1 }, "dial never attempted")

	// Log out while the dial is still in flight, then let it complete.
	f.store.Logout()
	close(gate)

	conn := f.transport.waitDial(t)
	waitFor(t, func() bool { return conn.closed() }, "superseded socket never closed")

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	saw := sawConnected
	mu.Unlock()
	if saw {
		t.Error("feed must never report connected after logout")
	}
	s := f.channel.Feed()
	if s.Connected || len(s.Items) != 0 {
		t.Errorf("logged-out feed must stay empty, got %+v", s)
	}
	if got := f.channel.State(); got != StateDisconnected {
		t.Errorf("expected disconnected after logout, got %v", got)
	}
}

func TestMarkReadRequiresUser(t *testing.T) {
	f := newFixture(t, nil, 0)
	if err := f.channel.MarkRead(context.Background(), 1); !errors.Is(err, api.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := f.channel.MarkAllRead(context.Background()); !errors.Is(err, api.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestMarkReadUpdatesServerThenFeed(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.deliver(t, item(5, false))
	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 1 }, "event never arrived")

	if err := f.channel.MarkRead(context.Background(), 5); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if _, ok := f.hits.Load("/users/7/notifications/5/read"); !ok {
		t.Error("server mark-read endpoint never hit")
	}
	s := f.channel.Feed()
	if !s.Items[0].IsRead || s.UnreadCount != 0 {
		t.Errorf("expected optimistic read state, got %+v", s)
	}
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	f.settle(t)

	conn.deliver(t, item(1, false))
	conn.deliver(t, item(2, false))
	waitFor(t, func() bool { return len(f.channel.Feed().Items) == 2 }, "events never arrived")

	if err := f.channel.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if _, ok := f.hits.Load("read-all"); !ok {
		t.Error("server read-all endpoint never hit")
	}
	s := f.channel.Feed()
	if s.UnreadCount != 0 {
		t.Errorf("expected unread count 0, got %d", s.UnreadCount)
	}
	for _, n := range s.Items {
		if !n.IsRead {
			t.Errorf("item %d must be read", n.ID)
		}
	}
}

func TestCloseStopsObservingSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil, 0)
	defer f.shutdown()

	f.login(t, "a1")
	conn := f.transport.waitDial(t)
	waitFor(t, func() bool { return f.channel.State() == StateConnected }, "never connected")
	f.settle(t)

	f.channel.Close()
	if !conn.closed() {
		t.Error("socket must be closed on Close")
	}

	// A later login must not resurrect the channel.
	f.login(t, "a9")
	time.Sleep(30 * time.Millisecond)
	if got := f.transport.dialCount(); got != 1 {
		t.Errorf("closed channel must not dial, got %d", got)
	}
}
