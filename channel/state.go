// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

// State is the channel lifecycle state.
type State int

const (
	// StateIdle means no transport exists and none is being opened.
	// The terminal state after graceful disconnect or after the
	// reconnect attempt cap is exhausted.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the transport is established and the heartbeat
	// is running.
	StateOpen
	// StateClosing means a graceful disconnect is in progress.
	StateClosing
	// StateReconnecting means an abnormal close occurred and a backoff
	// timer is pending before the next dial.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// event is a lifecycle input to the state machine.
type event int

const (
	// eventConnect is the owner asking for the channel.
	eventConnect event = iota
	// eventOpened is a dial completing successfully.
	eventOpened
	// eventLost is any abnormal loss of the transport: dial error,
	// read error, heartbeat write failure, or remote close.
	eventLost
	// eventRetry is the backoff timer firing.
	eventRetry
	// eventDisconnect is the owner tearing the channel down.
	eventDisconnect
	// eventClosed is the graceful close completing.
	eventClosed
)

// conditions are the inputs beyond (state, event) that transitions
// depend on. The manager computes them before each transition.
type conditions struct {
	// active is whether the owner still wants the channel. An
	// abnormal close with active false tears down without
	// reconnecting.
	active bool
	// exhausted is whether the reconnect attempt cap has been
	// reached.
	exhausted bool
}

// action is a side effect the manager must execute after a transition.
type action int

const (
	// actionDial starts a new dial under a fresh connection
	// generation.
	actionDial action = iota
	// actionStartHeartbeat starts the periodic liveness probe.
	actionStartHeartbeat
	// actionStopHeartbeat stops the probe ticker.
	actionStopHeartbeat
	// actionCloseConn gracefully closes the transport and cancels
	// its reader.
	actionCloseConn
	// actionAbortConn drops the transport without a close handshake.
	actionAbortConn
	// actionScheduleReconnect increments the attempt counter and arms
	// the backoff timer.
	actionScheduleReconnect
	// actionCancelReconnect stops a pending backoff timer.
	actionCancelReconnect
	// actionResetAttempts zeroes the reconnect attempt counter.
	actionResetAttempts
	// actionNotifyOpen releases waiters blocked on channel
	// establishment.
	actionNotifyOpen
	// actionNotifyExhausted records that the attempt cap was reached.
	actionNotifyExhausted
)

// transition is the pure core of the lifecycle: next state and side
// effects as a function of the current state, the event, and the
// manager's conditions. It performs no I/O and holds no locks, which
// is what lets the full transition table be verified directly.
func transition(s State, e event, cond conditions) (State, []action) {
	switch e {
	case eventConnect:
		switch s {
		case StateIdle, StateReconnecting:
			return StateConnecting, []action{actionCancelReconnect, actionDial}
		default:
			// Connecting and Open make Connect a no-op; Closing
			// ignores it (the owner must wait for Idle).
			return s, nil
		}

	case eventOpened:
		if s != StateConnecting {
			return s, nil
		}
		return StateOpen, []action{actionResetAttempts, actionStartHeartbeat, actionNotifyOpen}

	case eventLost:
		if s != StateOpen && s != StateConnecting {
			return s, nil
		}
		switch {
		case !cond.active:
			return StateIdle, []action{actionStopHeartbeat, actionAbortConn}
		case cond.exhausted:
			return StateIdle, []action{actionStopHeartbeat, actionAbortConn, actionNotifyExhausted}
		default:
			return StateReconnecting, []action{actionStopHeartbeat, actionAbortConn, actionScheduleReconnect}
		}

	case eventRetry:
		if s != StateReconnecting {
			return s, nil
		}
		return StateConnecting, []action{actionDial}

	case eventDisconnect:
		if s == StateIdle {
			// Nothing to close, but a stray backoff timer must
			// still die.
			return StateIdle, []action{actionCancelReconnect, actionResetAttempts}
		}
		return StateClosing, []action{actionStopHeartbeat, actionCancelReconnect, actionResetAttempts, actionCloseConn}

	case eventClosed:
		if s != StateClosing {
			return s, nil
		}
		return StateIdle, nil
	}
	return s, nil
}
