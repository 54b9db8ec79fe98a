// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
)

const (
	// DefaultHeartbeatInterval is how often the liveness probe is
	// written while the channel is Open.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultReconnectBase is the first backoff delay after an
	// abnormal close; each further attempt doubles it.
	DefaultReconnectBase = time.Second

	// DefaultMaxReconnectAttempts caps automatic reconnection. Past
	// the cap the channel parks in Idle until Connect is called
	// again.
	DefaultMaxReconnectAttempts = 5

	// heartbeatProbe is the literal liveness frame. The backend sends
	// no structured reply; a failed write is the only failure signal.
	heartbeatProbe = "ping"

	// heartbeatWriteTimeout bounds a single probe write so a stalled
	// transport cannot wedge the heartbeat goroutine.
	heartbeatWriteTimeout = 10 * time.Second
)

// ManagerConfig configures a Manager. Dial is required; everything
// else has defaults.
type ManagerConfig struct {
	// Dial opens the transport.
	Dial Dialer

	// Clock drives the heartbeat ticker and the backoff timer.
	// Nil uses the real clock.
	Clock clock.Clock

	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger

	// OnFrame receives inbound frames in arrival order, called from
	// the connection's single reader goroutine. Optional.
	OnFrame func(data []byte)

	// OnStateChange observes lifecycle transitions, called outside
	// the manager's lock. Optional; used for the connectivity
	// indicator.
	OnStateChange func(State)

	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
}

// Manager owns the duplex connection lifecycle: at most one live
// transport at a time, heartbeat while Open, exponential-backoff
// reconnection after abnormal closes, and a graceful Disconnect that
// synchronously releases every timer.
type Manager struct {
	dial          Dialer
	clock         clock.Clock
	logger        *slog.Logger
	onFrame       func([]byte)
	onStateChange func(State)

	heartbeatInterval time.Duration
	reconnectBase     time.Duration
	maxAttempts       int

	mu     sync.Mutex
	state  State
	active bool
	// attempts counts reconnects scheduled since the last successful
	// open.
	attempts int
	// generation identifies the current dial/connection cycle. Reader,
	// heartbeat, and dial goroutines carry the generation they were
	// started under; reports from stale generations are ignored, which
	// is what upholds the single-live-transport invariant across
	// overlapping failures.
	generation    int
	conn          Conn
	connCancel    context.CancelFunc
	heartbeat     *clock.Ticker
	heartbeatDone chan struct{}
	reconnect     *clock.Timer
	// opened is closed when the channel reaches Open and replaced
	// when it leaves Open. Dispatchers block on it.
	opened  chan struct{}
	lastErr error
}

// NewManager creates a Manager in StateIdle. It owns no transport
// until Connect is called.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Dial == nil {
		return nil, fmt.Errorf("channel: Dial is required")
	}

	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeatInterval := config.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	reconnectBase := config.ReconnectBase
	if reconnectBase <= 0 {
		reconnectBase = DefaultReconnectBase
	}
	maxAttempts := config.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}

	return &Manager{
		dial:              config.Dial,
		clock:             c,
		logger:            logger,
		onFrame:           config.OnFrame,
		onStateChange:     config.OnStateChange,
		heartbeatInterval: heartbeatInterval,
		reconnectBase:     reconnectBase,
		maxAttempts:       maxAttempts,
		state:             StateIdle,
		opened:            make(chan struct{}),
	}, nil
}

// Connect asks for the channel. Idempotent while Open or Connecting;
// from Idle or Reconnecting it cancels any pending backoff timer and
// dials. Establishment is asynchronous: block on WhenOpen or observe
// OnStateChange.
func (m *Manager) Connect() {
	m.mu.Lock()
	m.active = true
	notes := m.applyLocked(eventConnect)
	m.mu.Unlock()
	m.notify(notes)
}

// Disconnect gracefully tears the channel down: heartbeat stopped,
// pending reconnect cancelled, attempt counter reset, transport closed
// with a normal-closure handshake. All timers are released before
// Disconnect returns; this path never triggers reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.active = false
	notes := m.applyLocked(eventDisconnect)
	notes = append(notes, m.applyLocked(eventClosed)...)
	m.mu.Unlock()
	m.notify(notes)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent transport or lifecycle error:
// the dial/read/write error behind the latest abnormal close, or
// ErrAttemptsExhausted once the reconnect cap is reached.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// WhenOpen returns a channel closed when the manager is Open. If the
// channel later leaves Open, subsequent calls return a fresh channel
// tied to the next establishment.
func (m *Manager) WhenOpen() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Send writes one text frame. It fails fast with ErrNotOpen when the
// channel is not Open; use the Dispatcher for the bounded-wait
// behavior. A write failure is treated as connection loss.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	if m.state != StateOpen {
		m.mu.Unlock()
		return ErrNotOpen
	}
	conn, generation := m.conn, m.generation
	m.mu.Unlock()

	if err := conn.Write(ctx, data); err != nil {
		m.lost(generation, fmt.Errorf("send failed: %w", err))
		return fmt.Errorf("channel: send: %w", err)
	}
	return nil
}

// applyLocked runs one state-machine step and executes its actions.
// Returns the state changes to report to OnStateChange after the lock
// is released.
func (m *Manager) applyLocked(e event) []State {
	cond := conditions{
		active:    m.active,
		exhausted: m.attempts >= m.maxAttempts,
	}
	next, actions := transition(m.state, e, cond)

	var notes []State
	if next != m.state {
		previous := m.state
		m.state = next
		notes = append(notes, next)
		if previous == StateOpen {
			// Arm a fresh establishment signal for the next cycle.
			m.opened = make(chan struct{})
		}
	}
	for _, a := range actions {
		m.runActionLocked(a)
	}
	return notes
}

func (m *Manager) runActionLocked(a action) {
	switch a {
	case actionDial:
		m.generation++
		go m.runDial(m.generation)

	case actionStartHeartbeat:
		ticker := m.clock.NewTicker(m.heartbeatInterval)
		done := make(chan struct{})
		m.heartbeat, m.heartbeatDone = ticker, done
		go m.heartbeatLoop(ticker, done, m.conn, m.generation)

	case actionStopHeartbeat:
		if m.heartbeat != nil {
			m.heartbeat.Stop()
			close(m.heartbeatDone)
			m.heartbeat, m.heartbeatDone = nil, nil
		}

	case actionCloseConn:
		m.closeConnLocked(true, "client disconnect")

	case actionAbortConn:
		m.closeConnLocked(false, "")

	case actionScheduleReconnect:
		m.attempts++
		delay := m.reconnectBase << (m.attempts - 1)
		m.logger.Info("scheduling channel reconnect",
			"attempt", m.attempts,
			"max_attempts", m.maxAttempts,
			"delay", delay,
		)
		m.reconnect = m.clock.AfterFunc(delay, m.retry)

	case actionCancelReconnect:
		if m.reconnect != nil {
			m.reconnect.Stop()
			m.reconnect = nil
		}

	case actionResetAttempts:
		m.attempts = 0

	case actionNotifyOpen:
		close(m.opened)

	case actionNotifyExhausted:
		m.lastErr = ErrAttemptsExhausted
		m.logger.Error("channel reconnect attempts exhausted",
			"attempts", m.attempts,
		)
	}
}

// closeConnLocked releases the current transport and invalidates its
// generation so the reader and heartbeat goroutines report into the
// void.
func (m *Manager) closeConnLocked(graceful bool, reason string) {
	m.generation++
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		conn := m.conn
		m.conn = nil
		if err := conn.Close(graceful, reason); err != nil {
			m.logger.Debug("transport close", "error", err)
		}
	}
}

// runDial opens the transport for the given generation. A result that
// arrives after the generation moved on (disconnect, or a newer dial)
// is discarded.
func (m *Manager) runDial(generation int) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := m.dial(ctx)

	m.mu.Lock()
	if generation != m.generation || m.state != StateConnecting {
		m.mu.Unlock()
		cancel()
		if conn != nil {
			conn.Close(true, "superseded")
		}
		return
	}

	if err != nil {
		m.lastErr = err
		m.logger.Warn("channel dial failed", "error", err)
		notes := m.applyLocked(eventLost)
		m.mu.Unlock()
		cancel()
		m.notify(notes)
		return
	}

	m.conn = conn
	m.connCancel = cancel
	m.logger.Info("channel open")
	notes := m.applyLocked(eventOpened)
	m.mu.Unlock()
	m.notify(notes)

	go m.readLoop(ctx, conn, generation)
}

// readLoop delivers inbound frames in arrival order. A read error is
// reported as connection loss for this generation.
func (m *Manager) readLoop(ctx context.Context, conn Conn, generation int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.lost(generation, fmt.Errorf("read failed: %w", err))
			}
			return
		}
		if m.onFrame != nil {
			m.onFrame(data)
		}
	}
}

// heartbeatLoop writes the liveness probe on each tick. A failed write
// triggers reconnection directly rather than waiting for the reader to
// notice.
func (m *Manager) heartbeatLoop(ticker *clock.Ticker, done chan struct{}, conn Conn, generation int) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatWriteTimeout)
			err := conn.Write(ctx, []byte(heartbeatProbe))
			cancel()
			if err != nil {
				m.logger.Warn("heartbeat probe failed", "error", err)
				m.lost(generation, fmt.Errorf("heartbeat failed: %w", err))
				return
			}
			m.logger.Debug("heartbeat sent")
		}
	}
}

// lost reports an abnormal connection loss for a specific generation.
// Stale reports (a reader and the heartbeat both noticing the same
// dead transport, or a report racing a disconnect) are dropped.
func (m *Manager) lost(generation int, err error) {
	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	m.logger.Warn("channel lost", "state", m.state.String(), "error", err)
	notes := m.applyLocked(eventLost)
	m.mu.Unlock()
	m.notify(notes)
}

// retry is the backoff timer callback.
func (m *Manager) retry() {
	m.mu.Lock()
	m.reconnect = nil
	notes := m.applyLocked(eventRetry)
	m.mu.Unlock()
	m.notify(notes)
}

func (m *Manager) notify(notes []State) {
	if m.onStateChange == nil {
		return
	}
	for _, s := range notes {
		m.onStateChange(s)
	}
}
