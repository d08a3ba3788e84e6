package services

import (
	"context"
	"fmt"
	"time"

	"officehub/pkg/broadcast"
	"officehub/services/presence-service/store"
	"officehub/utils"
)

const (
	// DefaultStaleness is how long a heartbeat keeps a user online. It sits one
	// minute above the four minute heartbeat interval so a single lost tick is tolerated.
	DefaultStaleness = 5 * time.Minute

	EventUserOnline  = "presence.online"
	EventUserOffline = "presence.offline"
)

// PresenceEvent is the payload of presence broadcasts.
type PresenceEvent struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}

type PresenceService struct {
	store     store.UserStore
	notifier  broadcast.Notifier
	logger    *utils.Logger
	staleness time.Duration
	now       func() time.Time
}

type Option func(*PresenceService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ps *PresenceService) { ps.now = now }
}

// WithStaleness sets the default window used by ListOnline and GetStatus.
func WithStaleness(d time.Duration) Option {
	return func(ps *PresenceService) {
		if d > 0 {
			ps.staleness = d
		}
	}
}

func NewPresenceService(userStore store.UserStore, notifier broadcast.Notifier, logger *utils.Logger, opts ...Option) *PresenceService {
	if notifier == nil {
		notifier = broadcast.Nop{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	ps := &PresenceService{
		store:     userStore,
		notifier:  notifier,
		logger:    logger,
		staleness: DefaultStaleness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

// Staleness returns the default staleness window.
func (ps *PresenceService) Staleness() time.Duration {
	return ps.staleness
}

// IsFresh reports whether rec counts as online at now. The stored flag is only
// a claim; it is trusted only while LastActive is inside the window.
func IsFresh(rec store.UserRecord, now time.Time, staleness time.Duration) bool {
	return rec.IsOnline && !rec.LastActive.Before(now.Add(-staleness))
}

// RecordHeartbeat marks userID online as of now. It returns store.ErrNotFound
// for unknown users.
func (ps *PresenceService) RecordHeartbeat(ctx context.Context, userID string) error {
	now := ps.now().UTC()

	// Read first only to decide whether this heartbeat is a transition worth announcing.
	prev, err := ps.store.Get(ctx, userID)
	if err != nil {
		return ps.wrap("heartbeat", userID, err)
	}

	if err := ps.store.Update(ctx, userID, store.Patch{IsOnline: true, LastActive: &now}); err != nil {
		return ps.wrap("heartbeat", userID, err)
	}

	ps.logger.Debug("Heartbeat recorded", "user_id", userID)

	if !IsFresh(*prev, now, ps.staleness) {
		ps.logger.Info("User came online", "user_id", userID)
		ps.notifier.Publish(ctx, EventUserOnline, PresenceEvent{UserID: userID, IsOnline: true, LastActive: now})
	}
	return nil
}

// RecordOffline clears the online flag without touching LastActive. Repeated
// calls leave the same state.
func (ps *PresenceService) RecordOffline(ctx context.Context, userID string) error {
	prev, err := ps.store.Get(ctx, userID)
	if err != nil {
		return ps.wrap("offline", userID, err)
	}
	if !prev.IsOnline {
		return nil
	}

	if err := ps.store.Update(ctx, userID, store.Patch{IsOnline: false}); err != nil {
		return ps.wrap("offline", userID, err)
	}

	ps.logger.Info("User went offline", "user_id", userID)
	ps.notifier.Publish(ctx, EventUserOffline, PresenceEvent{UserID: userID, IsOnline: false, LastActive: prev.LastActive})
	return nil
}

// ListOnline returns users whose flag is set and whose last heartbeat falls
// inside staleness. A non-positive staleness uses the service default.
func (ps *PresenceService) ListOnline(ctx context.Context, staleness time.Duration) ([]store.UserRecord, error) {
	if staleness <= 0 {
		staleness = ps.staleness
	}
	now := ps.now().UTC()

	candidates, err := ps.store.Query(ctx, store.Filter{
		Online:      store.Bool(true),
		ActiveSince: now.Add(-staleness),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	// Stores may filter loosely, so every row is checked against the same rule.
	online := candidates[:0]
	for _, rec := range candidates {
		if IsFresh(rec, now, staleness) {
			online = append(online, rec)
		}
	}
	return online, nil
}

// GetStatus returns the user's record with IsOnline replaced by the staleness-checked value.
func (ps *PresenceService) GetStatus(ctx context.Context, userID string) (*store.UserRecord, error) {
	rec, err := ps.store.Get(ctx, userID)
	if err != nil {
		return nil, ps.wrap("status", userID, err)
	}

	rec.IsOnline = IsFresh(*rec, ps.now().UTC(), ps.staleness)
	return rec, nil
}

func (ps *PresenceService) wrap(op, userID string, err error) error {
	return fmt.Errorf("%s for user %s: %w", op, userID, err)
}
