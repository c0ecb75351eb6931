package conn

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"rowsync/internal/schema"
	"rowsync/internal/session"
)

// MessageHandler receives every inbound mutation, exactly once, in
// transport delivery order. It runs on the manager's read goroutine, so
// it must not block for long and must not call Disconnect.
type MessageHandler func(*schema.Mutation)

// Config holds the settings for a Manager.
type Config struct {
	// URL is the relay base address, e.g. "ws://127.0.0.1:8787". The
	// manager appends /ws/<clientID> for the session.
	URL string

	// Session supplies the client id for the endpoint address and the
	// version counter stamped onto outbound messages.
	Session *session.Session

	// BaseDelay is the linear backoff unit: attempt n waits n×BaseDelay.
	BaseDelay time.Duration

	// MaxAttempts is the number of consecutive failed reconnection
	// attempts tolerated before the manager gives up and terminates.
	MaxAttempts int

	// DialTimeout bounds a single dial. WriteTimeout bounds one Send.
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// OnStateChange, if set, is invoked after every state transition.
	// It is called from the manager's goroutines; implementations must
	// not call back into Connect or Disconnect.
	OnStateChange func(State)

	// Logger for connection events. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultConfig returns the settings used when Config fields are zero.
func DefaultConfig() Config {
	return Config{
		BaseDelay:    time.Second,
		MaxAttempts:  5,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Manager owns exactly one logical connection for a session: it dials,
// reads inbound mutations, accepts outbound submissions, and reconnects
// with linear backoff when the transport drops.
type Manager struct {
	config Config
	sess   *session.Session
	logger *log.Logger

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	handler MessageHandler
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Manager. The returned manager is Idle until Connect.
func New(config Config) (*Manager, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if config.Session == nil {
		return nil, fmt.Errorf("session is required")
	}

	defaults := DefaultConfig()
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Manager{
		config: config,
		sess:   config.Session,
		logger: config.Logger,
		state:  StateIdle,
	}, nil
}

// Connect registers the inbound handler and starts the connection loop.
// It returns immediately: a failed dial is not an error here, it feeds
// the reconnection path. Connect errors only on misuse (nil handler, or
// a loop already running). Calling Connect on a Terminated manager
// re-arms it.
func (m *Manager) Connect(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.running = true
	m.handler = handler
	m.ctx, m.cancel = context.WithCancel(context.Background())
	ctx := m.ctx
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Send stamps the mutation with the session's last seen version, the
// client id and the current UTC time, then transmits it. If the
// connection is not currently Connected the mutation is dropped and
// ErrNotConnected is returned; nothing is queued here.
func (m *Manager) Send(mut *schema.Mutation) error {
	m.mu.Lock()
	ws := m.ws
	state := m.state
	ctx := m.ctx
	m.mu.Unlock()

	if state != StateConnected || ws == nil {
		return ErrNotConnected
	}

	mut.Version = m.sess.LastSeenVersion()
	mut.ClientID = m.sess.ClientID()
	mut.Time = time.Now().UTC().Format(time.RFC3339)

	data, err := mut.Encode()
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.config.WriteTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s %s: %w", mut.Type, mut.Key, err)
	}
	return nil
}

// Disconnect closes the transport, clears the handler, cancels any
// pending reconnection wait and moves to Terminated. It is idempotent.
// Must not be called from the message handler or OnStateChange.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ws := m.ws
	m.ws = nil
	m.handler = nil
	m.running = false
	m.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	m.wg.Wait()
	m.setState(StateTerminated)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// run is the connection supervisor: dial, read until the transport
// drops, back off, redial. One run goroutine exists per Connect call;
// ctx belongs to that call and outlives any individual socket.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	attempt := 0
	for {
		m.setState(StateConnecting)
		ws, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Printf("dial %s failed: %v", m.endpoint(), err)
			m.setState(StateErrored)
			attempt++
			if !m.backoff(ctx, attempt) {
				return
			}
			continue
		}

		attempt = 0
		m.mu.Lock()
		m.ws = ws
		m.mu.Unlock()
		m.setState(StateConnected)

		err = m.readLoop(ctx, ws)

		m.mu.Lock()
		m.ws = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			// Disconnect owns the terminal transition.
			return
		}

		if websocket.CloseStatus(err) != -1 {
			m.logger.Printf("connection closed by peer: %v", err)
			m.setState(StateDisconnected)
		} else {
			m.logger.Printf("connection error: %v", err)
			m.setState(StateErrored)
		}

		attempt++
		if !m.backoff(ctx, attempt) {
			return
		}
	}
}

// backoff waits BaseDelay×attempt before the next try. It returns false
// when the retry budget is exhausted (moving to Terminated) or the wait
// was cancelled.
func (m *Manager) backoff(ctx context.Context, attempt int) bool {
	if attempt > m.config.MaxAttempts {
		m.logger.Printf("giving up after %d reconnection attempts", m.config.MaxAttempts)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.setState(StateTerminated)
		return false
	}

	m.setState(StateReconnecting)
	delay := m.config.BaseDelay * time.Duration(attempt)
	m.logger.Printf("reconnecting in %v (attempt %d/%d)", delay, attempt, m.config.MaxAttempts)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, m.endpoint(), nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// readLoop delivers inbound messages one at a time until the transport
// fails or ctx is cancelled.
func (m *Manager) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

// dispatch validates one inbound payload and hands it to the handler.
// The session version is observed before the handler runs, so a handler
// reading the session always sees a counter at least as new as the
// message it was given. Malformed payloads are logged and dropped.
func (m *Manager) dispatch(data []byte) {
	mut, err := schema.Decode(data)
	if err != nil {
		m.logger.Printf("dropping inbound message: %v", err)
		return
	}

	m.sess.Observe(mut.Version)
	m.setState(StateConnected)

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(mut)
	}
}

// setState records a transition and fires OnStateChange outside the
// lock. Same-state transitions are suppressed.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = s
	m.mu.Unlock()

	m.logger.Printf("connection state: %s -> %s", old, s)
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(s)
	}
}

func (m *Manager) endpoint() string {
	return strings.TrimSuffix(m.config.URL, "/") + "/ws/" + m.sess.ClientID()
}
