package liveupdate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sseServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  int
	clientIDs []string
	failFirst int
	frames    []string
	done      chan struct{}
}

func newSSEServer(t *testing.T, failFirst int, frames ...string) *sseServer {
	t.Helper()
	s := &sseServer{failFirst: failFirst, frames: frames, done: make(chan struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		close(s.done)
		s.Server.Close()
	})
	return s
}

func (s *sseServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	n := s.requests
	s.clientIDs = append(s.clientIDs, r.Header.Get("X-Client-ID"))
	s.mu.Unlock()

	if n <= s.failFirst {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for _, f := range s.frames {
		_, _ = io.WriteString(w, f)
		flusher.Flush()
	}
	select {
	case <-r.Context().Done():
	case <-s.done:
	}
}

func (s *sseServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *waitRecorder) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *waitRecorder) Delays() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

func newTestChannel(t *testing.T, cfg Config) *Channel {
	t.Helper()
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	cfg.HTTPClient = &http.Client{Transport: tr}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 10 * time.Millisecond
	}
	ch := New(cfg)
	t.Cleanup(ch.Disconnect)
	return ch
}

func messages(ch *Channel) []string {
	var out []string
	for _, l := range ch.Lines() {
		out = append(out, l.Message)
	}
	return out
}

func hasMessage(ch *Channel, prefix string) bool {
	for _, m := range messages(ch) {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func TestChannelDeliversStreamInOrder(t *testing.T) {
	srv := newSSEServer(t, 0,
		"data: {\"event\":\"import.progress\",\"data\":{\"current\":3,\"total\":10,\"filename\":\"a.jpg\"}}\n\n",
		"data: {\"event\":\"keepalive\",\"data\":{}}\n\n",
		"event: import.progress\ndata: {oops\n\n",
		"event: file.deleted\ndata: {\"filename\":\"a.jpg\"}\n\n",
	)

	var mu sync.Mutex
	var got []Event
	var pulses []bool
	ch := newTestChannel(t, Config{
		URL:   srv.URL,
		Pulse: 20 * time.Millisecond,
		OnActive: func(on bool) {
			mu.Lock()
			pulses = append(pulses, on)
			mu.Unlock()
		},
	})
	record := ListenerFunc(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	ch.On(string(KindImportProgress), record)
	ch.On(string(KindFileDeleted), record)

	ch.Connect(context.Background())

	require.Eventually(t, func() bool { return hasMessage(ch, "Event: file.deleted") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, ch.State())

	msgs := messages(ch)
	require.Len(t, msgs, 5)
	assert.Equal(t, "Connected to live updates", msgs[0])
	assert.Equal(t, "Import progress: 3/10 - a.jpg", msgs[1])
	assert.Equal(t, "Keepalive ping", msgs[2])
	assert.True(t, strings.HasPrefix(msgs[3], "Failed to parse event"))
	assert.Equal(t, CategoryInfo, ch.Lines()[1].Category)
	assert.Equal(t, CategoryDebug, ch.Lines()[2].Category)
	assert.Equal(t, CategoryError, ch.Lines()[3].Category)

	mu.Lock()
	require.Len(t, got, 2)
	assert.Equal(t, "import.progress", got[0].Type)
	assert.Equal(t, "file.deleted", got[1].Type)
	mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pulses) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, ch.Active())
	srv.mu.Lock()
	assert.Equal(t, ch.ClientID(), srv.clientIDs[0])
	srv.mu.Unlock()
}

func TestChannelBackoffDoublesUntilMaxAttempts(t *testing.T) {
	srv := newSSEServer(t, 1000)
	waits := &waitRecorder{}
	ch := newTestChannel(t, Config{URL: srv.URL, MaxAttempts: 4, Wait: waits.Wait})

	ch.Connect(context.Background())

	require.Eventually(t, func() bool { return hasMessage(ch, "Giving up after 4") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}, waits.Delays())
	assert.Equal(t, 5, srv.Requests())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestChannelResetsBackoffAfterOpen(t *testing.T) {
	srv := newSSEServer(t, 2)
	waits := &waitRecorder{}
	ch := newTestChannel(t, Config{URL: srv.URL, Wait: waits.Wait})

	ch.Connect(context.Background())

	require.Eventually(t, func() bool { return ch.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, waits.Delays())
	assert.Equal(t, 0, ch.Attempts())
	assert.Equal(t, 10*time.Millisecond, ch.Delay())
}

func TestConnectSupersedesPendingRetry(t *testing.T) {
	srv := newSSEServer(t, 1000)

	started := make(chan struct{}, 4)
	returned := make(chan error, 4)
	blockingWait := func(ctx context.Context, d time.Duration) error {
		started <- struct{}{}
		<-ctx.Done()
		returned <- ctx.Err()
		return ctx.Err()
	}
	ch := newTestChannel(t, Config{URL: srv.URL, Wait: blockingWait})

	ch.Connect(context.Background())
	<-started

	ch.Connect(context.Background())
	assert.ErrorIs(t, <-returned, context.Canceled)
	<-started

	assert.Equal(t, 2, srv.Requests(), "the superseded retry must never fire")
}

func TestDisconnectClearsListenersKeepsLog(t *testing.T) {
	srv := newSSEServer(t, 0, "data: {\"event\":\"connected\",\"data\":{\"client_id\":\"x\"}}\n\n")
	ch := newTestChannel(t, Config{URL: srv.URL})
	called := 0
	ch.On("connected", ListenerFunc(func(Event) { called++ }))

	ch.Connect(context.Background())
	require.Eventually(t, func() bool { return hasMessage(ch, "Event: connected") }, 2*time.Second, 5*time.Millisecond)

	ch.Disconnect()
	assert.Equal(t, StateDisconnected, ch.State())
	assert.Equal(t, 0, ch.Registry().Count("connected"))
	assert.NotEmpty(t, ch.Lines())

	before := called
	ch.Deliver(Event{Type: "connected", Data: map[string]any{}})
	assert.Equal(t, before, called)

	ch.Disconnect()
}

func TestDeliverReportsListenerFailures(t *testing.T) {
	ch := newTestChannel(t, Config{URL: "http://127.0.0.1:0"})
	boom := errors.New("boom")
	var secondRan bool
	ch.On("caption.updated", NewListener(func(Event) error { return boom }))
	ch.On("caption.updated", ListenerFunc(func(Event) { secondRan = true }))

	results := ch.Deliver(Event{Type: "caption.updated", Data: map[string]any{}})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.True(t, secondRan)
	assert.Equal(t, []string{"Event: caption.updated", "Handler error for caption.updated: boom"}, messages(ch))
}

func TestKeepaliveWithoutListenersOnlyLogs(t *testing.T) {
	ch := newTestChannel(t, Config{URL: "http://127.0.0.1:0"})

	results := ch.Deliver(Event{Type: "keepalive", Data: map[string]any{}})
	assert.Empty(t, results)
	lines := ch.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Keepalive ping", lines[0].Message)
	assert.Equal(t, "DBG", lines[0].Category.Tag())
	assert.False(t, ch.Active())
}
