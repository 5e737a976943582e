package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/session"
)

// Backend lists notifications and marks them read
type Backend interface {
	ListNotifications(ctx context.Context, token, userID string) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, token, id string) error
}

// Feed holds the current user's notifications
type Feed struct {
	backend Backend
	session *session.Manager

	mu            sync.Mutex
	notifications []*Notification
}

// NewFeed creates a new, empty Feed
func NewFeed(backend Backend, sess *session.Manager) *Feed {
	return &Feed{
		backend: backend,
		session: sess,
	}
}

// Refresh replaces the local list with the server's, newest first
func (f *Feed) Refresh(ctx context.Context) error {
	var list []*Notification
	err := f.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		l, err := f.backend.ListNotifications(ctx, s.Token, s.UserID)
		if err != nil {
			return err
		}
		list = l
		return nil
	})
	if err != nil {
		return fmt.Errorf("refreshing notifications: %w", err)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	f.mu.Lock()
	f.notifications = list
	f.mu.Unlock()
	return nil
}

// Notifications returns a copy of the local list
func (f *Feed) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, 0, len(f.notifications))
	for _, n := range f.notifications {
		out = append(out, *n)
	}
	return out
}

// UnreadCount returns the number of unread notifications in the local list
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, n := range f.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkAsRead marks a notification read. Marking an already read notification
// succeeds without a server call.
func (f *Feed) MarkAsRead(ctx context.Context, id string) error {
	f.mu.Lock()
	n := f.find(id)
	if n != nil && n.Read {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	err := f.session.Authorized(ctx, func(ctx context.Context, s session.Session) error {
		return f.backend.MarkNotificationRead(ctx, s.Token, id)
	})
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}

	f.mu.Lock()
	if n := f.find(id); n != nil {
		n.Read = true
	}
	f.mu.Unlock()
	return nil
}

func (f *Feed) find(id string) *Notification {
	for _, n := range f.notifications {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Clear empties the local list; the server copy is untouched
func (f *Feed) Clear() {
	f.mu.Lock()
	f.notifications = nil
	f.mu.Unlock()
}

// Poll refreshes every interval until ctx is done, calling onUpdate with the
// unread count after each successful refresh. Failed refreshes are logged and
// polling continues, except for auth errors which end it.
func (f *Feed) Poll(ctx context.Context, interval time.Duration, onUpdate func(unread int)) error {
	if interval <= 0 {
		return apperr.Validation("interval", "poll interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := f.Refresh(ctx); err != nil {
			if errors.Is(err, apperr.ErrAuth) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Failed to poll notifications", "error", err)
		} else if onUpdate != nil {
			onUpdate(f.UnreadCount())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
