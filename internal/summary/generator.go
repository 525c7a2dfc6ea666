package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/memoria/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Entries per day read into one summary.
const maxDayEntries = 1000

// Store is the persistence the generator reads from and writes to.
type Store interface {
	ListEntries(ctx context.Context, userID string, f store.EntryFilter) ([]store.Entry, error)
	ReminderNotificationsBetween(ctx context.Context, userID string, start, end time.Time) ([]store.Notification, error)
	ActiveUsersBetween(ctx context.Context, start, end time.Time) ([]string, error)
	SaveDailySummary(ctx context.Context, s store.DailySummary) (store.DailySummary, error)
}

// Generator produces and stores daily summaries.
type Generator struct {
	store       Store
	language    string
	loc         *time.Location
	concurrency int
	logger      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLanguage sets the summary language, "ar" (default) or "en".
func WithLanguage(lang string) Option {
	return func(g *Generator) {
		if lang != "" {
			g.language = lang
		}
	}
}

// WithLocation sets the time zone that defines a day.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithConcurrency bounds how many users RunDay summarizes at once.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator over st.
func New(st Store, opts ...Option) *Generator {
	g := &Generator{
		store:       st,
		language:    "ar",
		loc:         time.Local,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Bounds returns the start of day's calendar day in the generator's time
// zone and the start of the next.
func (g *Generator) Bounds(day time.Time) (start, end time.Time) {
	y, m, d := day.In(g.loc).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate parses a YYYY-MM-DD date in the generator's time zone.
func (g *Generator) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return t, nil
}

// ForUser generates and stores userID's summary for day, replacing any
// earlier one.
func (g *Generator) ForUser(ctx context.Context, userID string, day time.Time) (store.DailySummary, error) {
	start, end := g.Bounds(day)

	entries, err := g.store.ListEntries(ctx, userID, store.EntryFilter{Start: start, End: end, Limit: maxDayEntries})
	if err != nil {
		return store.DailySummary{}, fmt.Errorf("load entries: %w", err)
	}
	reminders, err := g.store.ReminderNotificationsBetween(ctx, userID, start, end)
	if err != nil {
		return store.DailySummary{}, fmt.Errorf("load reminder history: %w", err)
	}

	s := Generate(Input{
		UserID:    userID,
		Day:       start,
		Language:  g.language,
		Entries:   entries,
		Reminders: reminders,
	})
	if issues := Issues(s); len(issues) > 0 {
		g.logger.Debug("sparse daily summary",
			zap.String("user_id", userID),
			zap.String("date", s.Date),
			zap.Strings("issues", issues))
	}

	saved, err := g.store.SaveDailySummary(ctx, s)
	if err != nil {
		return store.DailySummary{}, err
	}
	return saved, nil
}

// RunDay summarizes day for every user with activity on it. A failure for
// one user is logged and does not stop the others; all failures are
// returned joined. Returns how many summaries were stored.
func (g *Generator) RunDay(ctx context.Context, day time.Time) (int, error) {
	start, end := g.Bounds(day)
	users, err := g.store.ActiveUsersBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		mu   sync.Mutex
		done int
		errs []error
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, u := range users {
		eg.Go(func() error {
			_, err := g.ForUser(egctx, u, start)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.logger.Error("daily summary failed",
					zap.String("user_id", u),
					zap.String("date", start.Format(DateLayout)),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("user %s: %w", u, err))
				return nil
			}
			done++
			return nil
		})
	}
	_ = eg.Wait()

	g.logger.Info("daily summaries generated",
		zap.String("date", start.Format(DateLayout)),
		zap.Int("users", len(users)),
		zap.Int("stored", done))
	return done, errors.Join(errs...)
}

// RunPreviousDay summarizes the day before now. It is the scheduled job.
func (g *Generator) RunPreviousDay(ctx context.Context, now time.Time) error {
	_, err := g.RunDay(ctx, now.In(g.loc).AddDate(0, 0, -1))
	return err
}
