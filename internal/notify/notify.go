// Package notify turns trigger events into user notifications and delivers
// them through one or more dispatchers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/store"
	"go.uber.org/zap"
)

// TypeReminder is the notification type for fired reminders.
const TypeReminder = "reminder"

// DefaultExpiry is how long a reminder notification stays in the inbox.
const DefaultExpiry = 24 * time.Hour

// Dispatcher delivers a single notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n store.Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n store.Notification) error

func (f DispatcherFunc) Dispatch(ctx context.Context, n store.Notification) error {
	return f(ctx, n)
}

// FromEvent builds the notification for a fired reminder.
func FromEvent(ev engine.TriggerEvent, expiry time.Duration) store.Notification {
	created := ev.TriggeredAt.UTC()
	n := store.Notification{
		ID:         uuid.NewString(),
		UserID:     ev.UserID,
		ReminderID: ev.ReminderID,
		Title:      ev.Title,
		Content:    ev.Description,
		Type:       TypeReminder,
		Priority:   reminder.Priority(reminder.Definition{Label: ev.Label}),
		CreatedAt:  created,
	}
	if expiry > 0 {
		exp := created.Add(expiry)
		n.ExpiresAt = &exp
	}
	return n
}

// Notifier adapts a Dispatcher to the engine.
type Notifier struct {
	dispatcher Dispatcher
	expiry     time.Duration
}

var _ engine.Notifier = (*Notifier)(nil)

// NewNotifier returns a Notifier. expiry <= 0 uses DefaultExpiry.
func NewNotifier(d Dispatcher, expiry time.Duration) *Notifier {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Notifier{dispatcher: d, expiry: expiry}
}

// Notify implements engine.Notifier.
func (n *Notifier) Notify(ctx context.Context, ev engine.TriggerEvent) error {
	if err := n.dispatcher.Dispatch(ctx, FromEvent(ev, n.expiry)); err != nil {
		return fmt.Errorf("notify %s: %w", ev.ReminderID, err)
	}
	return nil
}

// Multi fans a notification out to every dispatcher. All dispatchers run
// even if earlier ones fail; the failures are joined.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n store.Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Saver persists notifications.
type Saver interface {
	SaveNotification(ctx context.Context, n store.Notification) error
}

// StoreDispatcher writes notifications to the user's inbox.
type StoreDispatcher struct {
	Saver Saver
}

func (d StoreDispatcher) Dispatch(ctx context.Context, n store.Notification) error {
	if err := d.Saver.SaveNotification(ctx, n); err != nil {
		return fmt.Errorf("store dispatch: %w", err)
	}
	return nil
}

// LogDispatcher logs each notification. Useful when no client is connected
// and as an audit trail.
type LogDispatcher struct {
	Logger *zap.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, n store.Notification) error {
	d.Logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("reminder_id", n.ReminderID),
		zap.String("title", n.Title),
		zap.String("priority", n.Priority))
	return nil
}
