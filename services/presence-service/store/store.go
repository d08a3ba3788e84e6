// Package store adapts the dashboard's user records to what presence needs:
// read a user, update the online flag and last-active time, and query by both.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the user does not exist.
var ErrNotFound = errors.New("user not found")

// UserRecord is the presence view of a user.
type UserRecord struct {
	ID         string
	Name       string
	IsOnline   bool
	LastActive time.Time
}

// Patch describes a presence update. A nil LastActive leaves the stored value alone.
type Patch struct {
	IsOnline   bool
	LastActive *time.Time
}

// Filter narrows Query. A nil Online matches both states; a zero ActiveSince matches any time.
type Filter struct {
	Online      *bool
	ActiveSince time.Time
}

// Matches reports whether rec satisfies f.
func (f Filter) Matches(rec UserRecord) bool {
	if f.Online != nil && rec.IsOnline != *f.Online {
		return false
	}
	if !f.ActiveSince.IsZero() && rec.LastActive.Before(f.ActiveSince) {
		return false
	}
	return true
}

// UserStore is the narrow interface presence uses against the user table.
type UserStore interface {
	Get(ctx context.Context, userID string) (*UserRecord, error)
	Update(ctx context.Context, userID string, patch Patch) error
	Query(ctx context.Context, filter Filter) ([]UserRecord, error)
}

// Bool returns a pointer to b, for building filters.
func Bool(b bool) *bool {
	return &b
}
