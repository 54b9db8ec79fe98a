// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/chatsync/channel"
	"github.com/bureau-foundation/chatsync/lib/clock"
)

const (
	// DefaultRefreshInterval is how often the session re-requests the
	// full listing while connected. The seen-set makes the replies
	// idempotent, so the refresh only fills gaps.
	DefaultRefreshInterval = 10 * time.Second

	// DefaultLoadThrottle is the minimum spacing between listing
	// requests, shared by the periodic refresh and manual Refresh
	// calls.
	DefaultLoadThrottle = 2 * time.Second
)

// SendStatus tracks the most recent outbound send.
type SendStatus string

const (
	SendStatusIdle    SendStatus = ""
	SendStatusSending SendStatus = "sending"
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
)

// SessionConfig configures a Session. SessionID and Dial are required.
type SessionConfig struct {
	// SessionID is the backend session every command is scoped to.
	SessionID string

	// Dial opens the duplex channel, typically channel.Dial(url).
	Dial channel.Dialer

	// AddressSuffix overrides the platform address domain. Empty uses
	// channel.DefaultAddressSuffix.
	AddressSuffix string

	// OnChange is called after every state mutation the UI should
	// re-render for: reconciled frames, connectivity changes, send
	// status changes. Called from session goroutines; must not call
	// back into the Session. Optional.
	OnChange func()

	// Clock drives the refresh ticker and the load throttle. Nil uses
	// the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	RefreshInterval time.Duration
	LoadThrottle    time.Duration
	DispatchTimeout time.Duration

	// Channel tuning, passed through to the channel manager. Zero
	// values select the channel defaults.
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
}

// Session is the live view of one chat session: it owns the channel
// to the backend, reconciles inbound frames into the conversation
// store, refreshes the listing periodically, and accepts outbound
// sends.
//
// All methods are safe for concurrent use.
type Session struct {
	id         string
	manager    *channel.Manager
	dispatcher *channel.Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	onChange   func()

	refreshInterval time.Duration
	loadThrottle    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	teardown sync.Once
	done     chan struct{}

	mu         sync.Mutex
	store      *Store
	reconciler *Reconciler
	connected  bool
	lastLoad   time.Time
	sendStatus SendStatus
}

// NewSession builds a Session. It opens nothing until Start.
func NewSession(config SessionConfig) (*Session, error) {
	if config.SessionID == "" {
		return nil, fmt.Errorf("chat: SessionID is required")
	}
	if config.Dial == nil {
		return nil, fmt.Errorf("chat: Dial is required")
	}

	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", config.SessionID)

	refreshInterval := config.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	loadThrottle := config.LoadThrottle
	if loadThrottle <= 0 {
		loadThrottle = DefaultLoadThrottle
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := NewStore()
	s := &Session{
		id:              config.SessionID,
		clock:           c,
		logger:          logger,
		onChange:        config.OnChange,
		refreshInterval: refreshInterval,
		loadThrottle:    loadThrottle,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		store:           store,
		reconciler:      NewReconciler(store, logger),
	}

	manager, err := channel.NewManager(channel.ManagerConfig{
		Dial:                 config.Dial,
		Clock:                c,
		Logger:               logger,
		OnFrame:              s.handleFrame,
		OnStateChange:        s.handleState,
		HeartbeatInterval:    config.HeartbeatInterval,
		ReconnectBase:        config.ReconnectBase,
		MaxReconnectAttempts: config.MaxReconnectAttempts,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.manager = manager

	dispatcher, err := channel.NewDispatcher(channel.DispatcherConfig{
		Manager:         manager,
		SessionID:       config.SessionID,
		AddressSuffix:   config.AddressSuffix,
		DispatchTimeout: config.DispatchTimeout,
		Clock:           c,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.dispatcher = dispatcher

	return s, nil
}

// Start connects the channel and begins the periodic listing refresh.
func (s *Session) Start() {
	go s.refreshLoop()
	s.manager.Connect()
}

// Teardown stops the refresh loop and gracefully disconnects the
// channel. Idempotent.
func (s *Session) Teardown() {
	s.teardown.Do(func() {
		close(s.done)
		s.cancel()
		s.manager.Disconnect()
		s.logger.Info("session torn down")
	})
}

// Connected reports whether the channel is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ChannelState returns the underlying channel lifecycle state, for
// the connectivity indicator.
func (s *Session) ChannelState() channel.State {
	return s.manager.State()
}

// Conversations returns a snapshot of every conversation in recency
// order.
func (s *Session) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// CombinedMessages returns the deduplicated, time-ordered thread for
// contact.
func (s *Session) CombinedMessages(contact string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.CombinedMessages(contact)
}

// Selected returns the active contact, or "" when nothing is
// selected yet.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Selected()
}

// Select makes contact the active conversation and clears its unread
// count.
func (s *Session) Select(contact string) {
	s.mu.Lock()
	s.store.Select(contact)
	s.mu.Unlock()
	s.notifyChange()
}

// SendStatus returns the state of the most recent send.
func (s *Session) SendStatus() SendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendStatus
}

// Send dispatches an outbound message. The local placeholder is
// inserted before the command goes out, so the thread updates
// immediately; the server's echo arrives later under its own ID and
// coexists with the placeholder. A dispatch failure marks the send
// failed but leaves the placeholder in place.
func (s *Session) Send(ctx context.Context, to, text string) error {
	normalized := s.dispatcher.NormalizeAddress(to)

	s.mu.Lock()
	local := s.reconciler.RecordLocalSend(normalized, text, s.clock.Now())
	s.sendStatus = SendStatusSending
	s.mu.Unlock()
	s.notifyChange()

	if err := s.dispatcher.SendMessage(ctx, to, text); err != nil {
		s.setSendStatus(SendStatusFailed)
		s.logger.Warn("send failed", "to", normalized, "error", err)
		return fmt.Errorf("chat: sending to %s: %w", normalized, err)
	}

	s.logger.Debug("message dispatched", "to", normalized, "local_id", local.ID)
	return nil
}

// Refresh requests a fresh listing, subject to the load throttle.
// Returns false if the request was throttled.
func (s *Session) Refresh() bool {
	s.mu.Lock()
	now := s.clock.Now()
	if !s.lastLoad.IsZero() && now.Sub(s.lastLoad) < s.loadThrottle {
		s.mu.Unlock()
		return false
	}
	s.lastLoad = now
	s.mu.Unlock()

	if err := s.dispatcher.RequestListing(s.ctx); err != nil {
		s.logger.Warn("listing request failed", "error", err)
	}
	return true
}

// refreshLoop re-requests the listing on a fixed cadence while the
// session lives. The throttle is shared with manual Refresh calls.
func (s *Session) refreshLoop() {
	ticker := s.clock.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.Connected() {
				continue
			}
			s.Refresh()
		}
	}
}

// handleState tracks channel connectivity. On every (re)establishment
// the session re-requests the listing and re-subscribes to pushes:
// subscriptions are per-connection on the backend, and the listing
// closes any gap that opened while the channel was down.
func (s *Session) handleState(state channel.State) {
	open := state == channel.StateOpen
	s.mu.Lock()
	s.connected = open
	s.mu.Unlock()

	s.logger.Info("channel state changed", "state", state.String())
	if open {
		go s.resync()
	}
	s.notifyChange()
}

// resync runs after each channel establishment. It counts as a load
// for throttling purposes, so the periodic refresh does not pile a
// second listing request onto a fresh connection.
func (s *Session) resync() {
	s.mu.Lock()
	s.lastLoad = s.clock.Now()
	s.mu.Unlock()

	if err := s.dispatcher.RequestListing(s.ctx); err != nil {
		s.logger.Warn("listing request failed", "error", err)
		return
	}
	if err := s.dispatcher.SubscribeUpdates(s.ctx); err != nil {
		s.logger.Warn("update subscription failed", "error", err)
	}
}

// handleFrame routes one inbound frame. Malformed frames are logged
// and dropped; they never tear the channel down.
func (s *Session) handleFrame(data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch frame.Type {
	case FrameMessagesList:
		if !frame.Success {
			s.logger.Warn("listing failed", "error", frame.Error)
			return
		}
		s.mu.Lock()
		s.reconciler.ApplyListing(frame.Messages)
		s.mu.Unlock()
		s.notifyChange()

	case FrameMessagesUpdate:
		if frame.Message == nil {
			s.logger.Warn("dropping update frame without a message")
			return
		}
		s.mu.Lock()
		s.reconciler.ApplyUpdate(*frame.Message)
		s.mu.Unlock()
		s.notifyChange()

	case FrameMessagesSend:
		status := SendStatusSent
		if !frame.Success {
			status = SendStatusFailed
			s.logger.Warn("send rejected by backend", "error", frame.Error)
		}
		s.setSendStatus(status)

	default:
		s.logger.Debug("ignoring frame", "type", frame.Type)
	}
}

func (s *Session) setSendStatus(status SendStatus) {
	s.mu.Lock()
	s.sendStatus = status
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Session) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}
