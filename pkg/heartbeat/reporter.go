// Package heartbeat keeps a session's presence fresh by reporting liveness on a
// fixed interval. Sends are fire-and-forget: a failed heartbeat is logged and
// the next tick tries again.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"officehub/utils"
)

const (
	// DefaultInterval is how often a session reports liveness.
	DefaultInterval = 4 * time.Minute
	// DefaultSendTimeout bounds a single heartbeat request.
	DefaultSendTimeout = 10 * time.Second
)

// Sender delivers a single heartbeat for a user.
type Sender interface {
	SendHeartbeat(ctx context.Context, userID string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, userID string) error

func (f SenderFunc) SendHeartbeat(ctx context.Context, userID string) error {
	return f(ctx, userID)
}

// Reporter runs at most one heartbeat timer at a time.
type Reporter struct {
	sender   Sender
	interval time.Duration
	timeout  time.Duration
	logger   *utils.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewReporter creates a reporter. A non-positive interval falls back to DefaultInterval.
func NewReporter(sender Sender, interval time.Duration, logger *utils.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := DefaultSendTimeout
	if interval < timeout {
		timeout = interval
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &Reporter{
		sender:   sender,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start sends a heartbeat for userID right away and then once per interval.
// Starting an already running reporter replaces the previous timer.
func (r *Reporter) Start(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.run(ctx, userID)
}

// Stop cancels the timer without waiting for an in-flight send, so it is safe
// to call from a Sender. No new heartbeat starts once Stop returns, and a send
// already in flight sees its context cancelled. Calling Stop on a stopped
// reporter does nothing.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
}

// Running reports whether a timer is active.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cancel != nil
}

func (r *Reporter) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
}

func (r *Reporter) run(ctx context.Context, userID string) {
	r.beat(ctx, userID)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx, userID)
		}
	}
}

func (r *Reporter) beat(ctx context.Context, userID string) {
	// The ticker and cancellation can be ready together.
	if ctx.Err() != nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sender.SendHeartbeat(sendCtx, userID); err != nil {
		r.logger.Debug("Heartbeat not delivered", "user_id", userID, "error", err)
	}
}
