package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/memoria/internal/metrics"
	"github.com/lazypower/memoria/internal/reminder"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 1000
	defaultHistoryView  = 100
	defaultUserHistory  = 50

	// Fired markers older than this can no longer suppress anything.
	firedMarkerTTL = 24 * time.Hour
)

// FiredMarker persists that a reminder has fired. Implementations must be
// idempotent.
type FiredMarker interface {
	MarkFired(ctx context.Context, id string, at time.Time) error
}

// TriggerEvent is produced when a reminder fires.
type TriggerEvent struct {
	ReminderID   string             `json:"reminder_id"`
	UserID       string             `json:"user_id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Label        string             `json:"label,omitempty"`
	Frequency    reminder.Frequency `json:"frequency"`
	ScheduledFor time.Time          `json:"scheduled_for"`
	TriggeredAt  time.Time          `json:"triggered_at"`
	NextTrigger  *time.Time         `json:"next_trigger,omitempty"`
}

// Stats is a read-only summary of the registry.
type Stats struct {
	ActiveReminders int `json:"active_reminders"`
	TotalTriggered  int `json:"total_triggered"`
	TriggeredToday  int `json:"triggered_today"`
}

// State is where a reminder sits in its firing lifecycle.
type State string

const (
	StateUnknown    State = "unknown"
	StateRegistered State = "registered"
	StateFired      State = "fired"
	StateDone       State = "done"
)

// Registry holds the active reminders and evaluates them on each tick.
// It is safe for concurrent use: Register and Unregister may run while a
// tick is in progress, and take effect from the next tick.
type Registry struct {
	resolver     reminder.Resolver
	marker       FiredMarker
	logger       *zap.Logger
	metrics      *metrics.Metrics
	historyLimit int

	mu      sync.RWMutex
	active  map[string]reminder.Definition
	fired   map[string]time.Time // reminder id -> scheduled instant last fired
	history []TriggerEvent
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTolerance sets the eligibility window half-width.
func WithTolerance(d time.Duration) RegistryOption {
	return func(r *Registry) { r.resolver.Tolerance = d }
}

// WithHistoryLimit bounds the trailing trigger history.
func WithHistoryLimit(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithMarker sets the persistence callback for fired reminders.
func WithMarker(m FiredMarker) RegistryOption {
	return func(r *Registry) { r.marker = m }
}

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		resolver:     reminder.Resolver{Tolerance: reminder.DefaultTolerance},
		logger:       zap.NewNop(),
		historyLimit: defaultHistoryLimit,
		active:       make(map[string]reminder.Definition),
		fired:        make(map[string]time.Time),
	}
	for _, o := range opts {
		o(r)
	}
	if r.resolver.Tolerance <= 0 {
		r.resolver.Tolerance = reminder.DefaultTolerance
	}
	return r
}

// Tolerance is the eligibility window half-width in use.
func (r *Registry) Tolerance() time.Duration {
	return r.resolver.Tolerance
}

// Register validates def and adds it to the active set, replacing any entry
// with the same id. An inactive definition removes the existing entry.
func (r *Registry) Register(def reminder.Definition) error {
	if err := validateRegistration(def); err != nil {
		return err
	}

	r.mu.Lock()
	if def.IsActive {
		r.active[def.ID] = def.Clone()
	} else {
		delete(r.active, def.ID)
	}
	n := len(r.active)
	r.mu.Unlock()

	r.metrics.SetActive(n)
	r.logger.Debug("reminder registered",
		zap.String("reminder_id", def.ID),
		zap.Bool("active", def.IsActive),
		zap.String("frequency", string(def.Frequency)),
		zap.String("schedule_time", def.ScheduleTime))
	return nil
}

func validateRegistration(def reminder.Definition) error {
	var issues []string
	if def.ID == "" {
		issues = append(issues, "id is required")
	}
	var verr *reminder.ValidationError
	if err := reminder.Validate(def); errors.As(err, &verr) {
		issues = append(issues, verr.Issues...)
	} else if err != nil {
		return err
	}
	if len(issues) > 0 {
		return &reminder.ValidationError{Issues: issues}
	}
	return nil
}

// Unregister removes id from the active set. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.active, id)
	n := len(r.active)
	r.mu.Unlock()

	r.metrics.SetActive(n)
	r.logger.Debug("reminder unregistered", zap.String("reminder_id", id))
}

// Get returns a copy of the registered definition.
func (r *Registry) Get(id string) (reminder.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.active[id]
	if !ok {
		return reminder.Definition{}, false
	}
	return def.Clone(), true
}

// Active returns copies of all registered definitions ordered by id.
func (r *Registry) Active() []reminder.Definition {
	return r.snapshot(func(reminder.Definition) bool { return true })
}

// ActiveForUser returns the registered definitions owned by userID.
func (r *Registry) ActiveForUser(userID string) []reminder.Definition {
	return r.snapshot(func(d reminder.Definition) bool { return d.UserID == userID })
}

func (r *Registry) snapshot(keep func(reminder.Definition) bool) []reminder.Definition {
	r.mu.RLock()
	out := make([]reminder.Definition, 0, len(r.active))
	for _, d := range r.active {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b reminder.Definition) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Tick evaluates every registered reminder at now and returns the events
// fired. A reminder fires at most once per scheduled instant no matter how
// often Tick runs inside its window. A reminder that fails to evaluate is
// logged and skipped; the rest of the batch still runs.
func (r *Registry) Tick(ctx context.Context, now time.Time) []TriggerEvent {
	start := time.Now()
	defs := r.Active()

	var events []TriggerEvent
	for _, def := range defs {
		ev, ok := r.evaluate(def, now)
		if !ok {
			continue
		}
		r.markFired(ctx, def.ID, now)
		r.metrics.IncTrigger(string(def.Frequency))
		r.logger.Info("reminder triggered",
			zap.String("reminder_id", ev.ReminderID),
			zap.String("user_id", ev.UserID),
			zap.Time("scheduled_for", ev.ScheduledFor))
		events = append(events, ev)
	}

	r.pruneFired(now)
	r.metrics.ObserveTick(time.Since(start))
	return events
}

func (r *Registry) evaluate(def reminder.Definition, now time.Time) (ev TriggerEvent, fired bool) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncEvalFailure()
			r.logger.Error("reminder evaluation panicked",
				zap.String("reminder_id", def.ID),
				zap.Any("panic", p))
			fired = false
		}
	}()

	d, err := r.resolver.Resolve(def, now)
	if err != nil {
		r.metrics.IncEvalFailure()
		r.logger.Error("reminder evaluation failed",
			zap.String("reminder_id", def.ID),
			zap.Error(err))
		return TriggerEvent{}, false
	}
	if !d.Eligible {
		return TriggerEvent{}, false
	}

	after := def.Clone()
	if def.Frequency == reminder.Once {
		after.LastTriggered = &now
	}
	from := d.Scheduled
	if now.After(from) {
		from = now
	}
	next, err := r.resolver.Next(after, from)
	if err != nil {
		r.logger.Warn("next trigger unavailable",
			zap.String("reminder_id", def.ID),
			zap.Error(err))
		next = nil
	}

	ev = TriggerEvent{
		ReminderID:   def.ID,
		UserID:       def.UserID,
		Title:        def.Title,
		Description:  def.Description,
		Label:        def.Label,
		Frequency:    def.Frequency,
		ScheduledFor: d.Scheduled,
		TriggeredAt:  now,
		NextTrigger:  next,
	}
	return ev, r.claim(ev)
}

// claim records ev as fired unless the same scheduled instant already
// fired, either in this process or per the persisted LastTriggered. The
// check and the write happen under one lock so concurrent ticks cannot both
// fire.
func (r *Registry) claim(ev TriggerEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.active[ev.ReminderID]
	if !ok {
		return false
	}
	if last, ok := r.fired[ev.ReminderID]; ok && last.Equal(ev.ScheduledFor) {
		return false
	}
	if def.LastTriggered != nil {
		if def.Frequency == reminder.Once || r.within(*def.LastTriggered, ev.ScheduledFor) {
			return false
		}
	}
	t := ev.TriggeredAt
	def.LastTriggered = &t
	r.active[ev.ReminderID] = def

	r.fired[ev.ReminderID] = ev.ScheduledFor
	r.history = append(r.history, ev)
	if over := len(r.history) - r.historyLimit; over > 0 {
		r.history = slices.Delete(r.history, 0, over)
	}
	return true
}

func (r *Registry) markFired(ctx context.Context, id string, at time.Time) {
	if r.marker == nil {
		return
	}
	if err := r.marker.MarkFired(ctx, id, at); err != nil {
		r.metrics.IncMarkerFailure()
		r.logger.Error("mark fired failed; event already emitted",
			zap.String("reminder_id", id),
			zap.Error(err))
	}
}

func (r *Registry) pruneFired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, scheduled := range r.fired {
		if now.Sub(scheduled) > firedMarkerTTL {
			delete(r.fired, id)
		}
	}
}

// State reports where id sits in its firing lifecycle at now.
func (r *Registry) State(id string, now time.Time) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.active[id]
	if !ok {
		return StateUnknown
	}
	if def.Frequency == reminder.Once && def.LastTriggered != nil {
		return StateDone
	}
	if last, ok := r.fired[id]; ok && r.within(now, last) {
		return StateFired
	}
	return StateRegistered
}

// Overdue returns active reminders whose expected instant in the last
// window has passed, with its eligibility window closed, without firing.
// Instants before the reminder was created or last edited never count.
func (r *Registry) Overdue(now time.Time, window time.Duration) []reminder.Definition {
	cutoff := now.Add(-r.resolver.Tolerance)
	var out []reminder.Definition
	for _, def := range r.Active() {
		expected, err := r.resolver.Next(def, now.Add(-window))
		if err != nil || expected == nil || !expected.Before(cutoff) {
			continue
		}
		if expected.Before(scheduledSince(def)) || r.firedFor(def, *expected) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// scheduledSince is when def's current schedule took effect.
func scheduledSince(def reminder.Definition) time.Time {
	if def.UpdatedAt.After(def.CreatedAt) {
		return def.UpdatedAt
	}
	return def.CreatedAt
}

func (r *Registry) firedFor(def reminder.Definition, expected time.Time) bool {
	r.mu.RLock()
	last, ok := r.fired[def.ID]
	r.mu.RUnlock()
	if ok && last.Equal(expected) {
		return true
	}
	return def.LastTriggered != nil && r.within(*def.LastTriggered, expected)
}

// within reports whether firedAt falls in scheduled's eligibility window.
func (r *Registry) within(firedAt, scheduled time.Time) bool {
	diff := firedAt.Sub(scheduled)
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.resolver.Tolerance
}

// History returns up to limit of the most recent events, oldest first.
func (r *Registry) History(limit int) []TriggerEvent {
	if limit <= 0 {
		limit = defaultHistoryView
	}
	return r.filterHistory(limit, func(TriggerEvent) bool { return true })
}

// HistoryForUser returns up to limit of userID's most recent events.
func (r *Registry) HistoryForUser(userID string, limit int) []TriggerEvent {
	if limit <= 0 {
		limit = defaultUserHistory
	}
	return r.filterHistory(limit, func(ev TriggerEvent) bool { return ev.UserID == userID })
}

func (r *Registry) filterHistory(limit int, keep func(TriggerEvent) bool) []TriggerEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TriggerEvent
	for _, ev := range r.history {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return slices.Clone(out)
}

// ClearHistoryBefore drops events triggered before cutoff and returns how
// many were removed.
func (r *Registry) ClearHistoryBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.history)
	r.history = slices.DeleteFunc(r.history, func(ev TriggerEvent) bool {
		return ev.TriggeredAt.Before(cutoff)
	})
	removed := before - len(r.history)
	if removed > 0 {
		r.logger.Info("cleared old trigger events", zap.Int("removed", removed))
	}
	return removed
}

// Statistics counts active reminders, all retained events, and events
// triggered since midnight of now's day.
func (r *Registry) Statistics(now time.Time) Stats {
	return r.statistics(now, "")
}

// StatisticsForUser is Statistics restricted to userID's reminders.
func (r *Registry) StatisticsForUser(userID string, now time.Time) Stats {
	return r.statistics(now, userID)
}

func (r *Registry) statistics(now time.Time, userID string) Stats {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	r.mu.RLock()
	defer r.mu.RUnlock()

	var st Stats
	for _, def := range r.active {
		if userID == "" || def.UserID == userID {
			st.ActiveReminders++
		}
	}
	for _, ev := range r.history {
		if userID != "" && ev.UserID != userID {
			continue
		}
		st.TotalTriggered++
		if !ev.TriggeredAt.Before(midnight) {
			st.TriggeredToday++
		}
	}
	return st
}

func (e TriggerEvent) String() string {
	return fmt.Sprintf("%s@%s", e.ReminderID, e.ScheduledFor.Format(time.RFC3339))
}
