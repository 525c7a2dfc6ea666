package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/memoria/internal/metrics"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Source supplies the reminders to load at startup.
type Source interface {
	ListActiveReminders(ctx context.Context) ([]reminder.Definition, error)
}

// Notifier delivers a trigger event to the user.
type Notifier interface {
	Notify(ctx context.Context, ev TriggerEvent) error
}

// PruneFunc removes persisted data older than cutoff and returns how many
// records it removed.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// JobFunc is a task the engine runs on its own cron schedule.
type JobFunc func(ctx context.Context, now time.Time) error

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Config controls the polling loop and housekeeping.
type Config struct {
	PollInterval     time.Duration
	OverdueWindow    time.Duration
	HistoryRetention time.Duration
	HousekeepingSpec string // standard 5-field cron expression
	DispatchTimeout  time.Duration
}

// DefaultConfig polls once a minute and prunes history nightly.
func DefaultConfig() Config {
	return Config{
		PollInterval:     time.Minute,
		OverdueWindow:    time.Hour,
		HistoryRetention: 30 * 24 * time.Hour,
		HousekeepingSpec: "0 3 * * *",
		DispatchTimeout:  10 * time.Second,
	}
}

// Engine drives the registry: it loads reminders, polls on a fixed
// interval, hands fired events to the notifier, and prunes old history.
type Engine struct {
	Registry *Registry

	source   Source
	notifier Notifier
	pruners  []PruneFunc
	jobs     []job
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	cron     *cron.Cron
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

func WithEngineLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPruner adds a housekeeping step run alongside history pruning.
func WithPruner(p PruneFunc) Option {
	return func(e *Engine) { e.pruners = append(e.pruners, p) }
}

// WithJob schedules fn on spec, a standard 5-field cron expression, next to
// housekeeping.
func WithJob(name, spec string, fn JobFunc) Option {
	return func(e *Engine) { e.jobs = append(e.jobs, job{name: name, spec: spec, fn: fn}) }
}

// WithClock overrides the time source used by Run.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. The poll interval must not exceed the registry's
// tolerance, otherwise a tick can step over a reminder's whole window.
func New(reg *Registry, src Source, n Notifier, cfg Config, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.PollInterval > reg.Tolerance() {
		return nil, fmt.Errorf("poll interval %s exceeds match tolerance %s; reminders would be missed",
			cfg.PollInterval, reg.Tolerance())
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	if cfg.OverdueWindow <= 0 {
		cfg.OverdueWindow = DefaultConfig().OverdueWindow
	}

	e := &Engine{
		Registry: reg,
		source:   src,
		notifier: n,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// OverdueWindow is how far back Overdue looks.
func (e *Engine) OverdueWindow() time.Duration {
	return e.cfg.OverdueWindow
}

// Load registers every active reminder from the source. Invalid reminders
// are logged and skipped. Returns the number registered.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.source == nil {
		return 0, nil
	}
	defs, err := e.source.ListActiveReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active reminders: %w", err)
	}

	loaded := 0
	for _, def := range defs {
		if err := e.Registry.Register(def); err != nil {
			e.logger.Warn("skipping invalid reminder",
				zap.String("reminder_id", def.ID),
				zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Run ticks immediately and then every PollInterval until ctx is cancelled
// or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("reminder polling started", zap.Duration("interval", e.cfg.PollInterval))

	e.RunOnce(ctx, e.now())

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RunOnce(ctx, e.now())
		case <-ctx.Done():
			e.logger.Info("reminder polling stopped")
			return nil
		case <-e.stopCh:
			e.logger.Info("reminder polling stopped")
			return nil
		}
	}
}

// RunOnce evaluates all reminders at now and dispatches what fired.
// Dispatch failures are logged per event and do not affect the others.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) []TriggerEvent {
	events := e.Registry.Tick(ctx, now)
	if len(events) > 0 {
		e.logger.Info("reminders triggered", zap.Int("count", len(events)))
	}
	if e.notifier == nil {
		return events
	}

	for _, ev := range events {
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		err := e.notifier.Notify(dctx, ev)
		cancel()
		if err != nil {
			e.metrics.IncDispatchFailure()
			e.logger.Error("dispatch failed",
				zap.String("reminder_id", ev.ReminderID),
				zap.String("user_id", ev.UserID),
				zap.Error(err))
		}
	}
	return events
}

// StartHousekeeping schedules history pruning on the configured cron spec,
// along with any jobs added by WithJob.
func (e *Engine) StartHousekeeping() error {
	housekeep := e.cfg.HistoryRetention > 0 && e.cfg.HousekeepingSpec != ""
	if !housekeep && len(e.jobs) == 0 {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if housekeep {
		if _, err := c.AddFunc(e.cfg.HousekeepingSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			e.Housekeep(ctx, e.now())
		}); err != nil {
			return fmt.Errorf("schedule housekeeping %q: %w", e.cfg.HousekeepingSpec, err)
		}
	}
	for _, j := range e.jobs {
		if _, err := c.AddFunc(j.spec, func() { e.runJob(j) }); err != nil {
			return fmt.Errorf("schedule job %s %q: %w", j.name, j.spec, err)
		}
	}

	e.cron = c
	c.Start()
	e.logger.Info("housekeeping scheduled",
		zap.String("spec", e.cfg.HousekeepingSpec),
		zap.Int("jobs", len(e.jobs)))
	return nil
}

func (e *Engine) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	if err := j.fn(ctx, e.now()); err != nil {
		e.logger.Error("scheduled job failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	e.logger.Info("scheduled job done",
		zap.String("job", j.name),
		zap.Duration("took", time.Since(start)))
}

// Housekeep drops trigger history and pruned records older than the
// retention period.
func (e *Engine) Housekeep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-e.cfg.HistoryRetention)
	removed := e.Registry.ClearHistoryBefore(cutoff)

	for _, prune := range e.pruners {
		n, err := prune(ctx, cutoff)
		if err != nil {
			e.logger.Error("housekeeping prune failed", zap.Error(err))
			continue
		}
		removed += int(n)
	}
	e.logger.Info("housekeeping done", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
}

// Stop shuts down the polling loop and housekeeping. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		if e.cron != nil {
			<-e.cron.Stop().Done()
		}
	})
}
