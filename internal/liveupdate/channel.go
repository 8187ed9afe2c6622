// Package liveupdate keeps a server-sent event connection to the dataset
// backend open, classifies incoming events into a rolling log and fans them
// out to listeners.
package liveupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("liveupdate: channel closed")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// pulseKinds raise the activity indicator briefly when they arrive.
var pulseKinds = map[Kind]bool{
	KindImportProgress:  true,
	KindProcessProgress: true,
}

type Config struct {
	URL          string
	ClientID     string
	InitialDelay time.Duration
	MaxAttempts  int
	Pulse        time.Duration
	MaxLogLines  int

	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
	// Wait blocks for a reconnect delay. It must return early with the
	// context's error once ctx is cancelled.
	Wait func(ctx context.Context, d time.Duration) error

	OnLine   func(Line)
	OnState  func(State)
	OnActive func(bool)
}

type Channel struct {
	cfg      Config
	logger   *zap.Logger
	log      *LogBuffer
	registry *Registry

	mu      sync.Mutex
	state   State
	attempt int
	delay   time.Duration
	gen     uint64
	cancel  context.CancelFunc
	pulse   *time.Timer
	active  bool
	closed  bool

	wg sync.WaitGroup
}

func New(cfg Config) *Channel {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Pulse <= 0 {
		cfg.Pulse = 300 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Wait == nil {
		cfg.Wait = waitDelay
	}
	return &Channel{
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("client_id", cfg.ClientID)),
		log:      NewLogBuffer(cfg.MaxLogLines, cfg.Now),
		registry: NewRegistry(),
		delay:    cfg.InitialDelay,
	}
}

func waitDelay(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect opens the stream in the background. Calling it again supersedes
// the previous connection and any retry it had pending.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.closed = false
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(runCtx, gen)
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()
	for {
		err := c.stream(ctx, gen)
		if ctx.Err() != nil || !c.current(gen) {
			return
		}
		c.logger.Debug("stream ended", zap.Error(err))

		delay, ok := c.nextRetry(gen)
		if !ok {
			return
		}
		if err := c.cfg.Wait(ctx, delay); err != nil {
			return
		}
		if !c.current(gen) {
			return
		}
	}
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closed
}

// nextRetry returns the delay before the next attempt: InitialDelay doubled
// once per failed attempt, until MaxAttempts is reached.
func (c *Channel) nextRetry(gen uint64) (time.Duration, bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return 0, false
	}
	if c.attempt >= c.cfg.MaxAttempts {
		attempts := c.attempt
		c.mu.Unlock()
		c.Log(fmt.Sprintf("Giving up after %d reconnect attempts", attempts), CategoryError)
		return 0, false
	}
	delay := c.cfg.InitialDelay * time.Duration(1<<c.attempt)
	c.attempt++
	c.delay = delay
	attempt := c.attempt
	c.mu.Unlock()

	c.Log(fmt.Sprintf("Reconnecting in %s (attempt %d/%d)", delay, attempt, c.cfg.MaxAttempts), CategoryInfo)
	return delay, true
}

func (c *Channel) stream(ctx context.Context, gen uint64) error {
	c.setGenState(gen, StateConnecting)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		c.setGenState(gen, StateDisconnected)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Client-ID", c.cfg.ClientID)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.setGenState(gen, StateDisconnected)
		if ctx.Err() == nil {
			c.Log(fmt.Sprintf("Connection failed: %v", err), CategoryError)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setGenState(gen, StateDisconnected)
		c.Log(fmt.Sprintf("Connection failed: server returned status %d", resp.StatusCode), CategoryError)
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrClosed
	}
	c.attempt = 0
	c.delay = c.cfg.InitialDelay
	c.mu.Unlock()
	c.setGenState(gen, StateConnected)
	c.Log("Connected to live updates", CategoryInfo)

	dec := NewDecoder(resp.Body)
	for {
		frame, err := dec.Next()
		if err != nil {
			c.setGenState(gen, StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.Log("Connection lost", CategoryError)
			return err
		}
		if !c.current(gen) {
			return ErrClosed
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) handleFrame(f Frame) {
	evt, err := ParseEvent(f)
	if err != nil {
		c.Log(fmt.Sprintf("Failed to parse event: %v", err), CategoryError)
		return
	}
	c.Deliver(evt)
}

// Deliver logs an event, raises the activity pulse for progress kinds and
// dispatches it to the listeners registered for its type.
func (c *Channel) Deliver(evt Event) []ListenerResult {
	cat, msg := Classify(evt)
	c.Log(msg, cat)

	if pulseKinds[evt.Kind()] {
		c.raisePulse()
	}

	results := c.registry.Dispatch(evt)
	for _, r := range results {
		if r.Err != nil {
			c.Log(fmt.Sprintf("Handler error for %s: %v", evt.Type, r.Err), CategoryError)
		}
	}
	return results
}

func (c *Channel) raisePulse() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.pulse != nil {
		c.pulse.Stop()
	}
	c.active = true
	c.pulse = time.AfterFunc(c.cfg.Pulse, c.clearPulse)
	c.mu.Unlock()

	if c.cfg.OnActive != nil {
		c.cfg.OnActive(true)
	}
}

func (c *Channel) clearPulse() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.pulse = nil
	c.mu.Unlock()

	if c.cfg.OnActive != nil {
		c.cfg.OnActive(false)
	}
}

// setGenState ignores updates from a superseded connection.
func (c *Channel) setGenState(gen uint64, s State) {
	if !c.current(gen) {
		return
	}
	c.setState(s)
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

// Log appends a rendered line to the rolling log.
func (c *Channel) Log(message string, cat Category) Line {
	line := c.log.Append(message, cat)
	if ce := c.logger.Check(cat.Level(), message); ce != nil {
		ce.Write(zap.Int("seq", line.Seq), zap.String("category", cat.Tag()))
	}
	if c.cfg.OnLine != nil {
		c.cfg.OnLine(line)
	}
	return line
}

func (c *Channel) On(typ string, l *Listener) { c.registry.On(typ, l) }

func (c *Channel) Off(typ string, l *Listener) bool { return c.registry.Off(typ, l) }

func (c *Channel) Lines() []Line       { return c.log.Lines() }
func (c *Channel) ClientID() string    { return c.cfg.ClientID }
func (c *Channel) Registry() *Registry { return c.registry }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Channel) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Wait blocks until the connection loop stops, either because retries ran
// out or because its context was cancelled.
func (c *Channel) Wait() { c.wg.Wait() }

// Disconnect closes the stream, cancels any pending retry and pulse timer,
// and clears all listeners. The log is kept. It must not be called from a
// listener.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.pulse != nil {
		c.pulse.Stop()
		c.pulse = nil
	}
	c.active = false
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.registry.Clear()
	c.setState(StateDisconnected)
}
