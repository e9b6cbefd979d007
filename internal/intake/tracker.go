package intake

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// EventKind identifies the mutation an Event reports.
type EventKind string

const (
	EventEntryAdded  EventKind = "entry_added"
	EventTodayReset  EventKind = "today_reset"
	EventGoalChanged EventKind = "goal_changed"
)

// Event is published to subscribers after a mutation has been persisted.
type Event struct {
	Kind      EventKind
	Entry     Entry // set for EventEntryAdded
	Removed   int   // set for EventTodayReset
	DailyGoal int   // goal after the mutation
	At        time.Time
}

// Progress is a consistent snapshot of today's derived values.
type Progress struct {
	DailyGoal            int
	TodayTotal           int
	CompletionPercentage float64
	TodayEntries         []Entry
}

// Tracker owns a Log and is the only way to mutate it. Every mutation is
// written to the Store before the in-memory log changes. Tracker is safe for
// concurrent use.
type Tracker struct {
	mu     sync.Mutex
	log    *Log
	store  Store
	clock  Clock
	logger Logger

	subMu   sync.Mutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn func(Event)
}

// NewTracker loads the log from store and returns a Tracker over it.
// loc decides which calendar day is "today"; nil means time.Local.
func NewTracker(store Store, clock Clock, logger Logger, loc *time.Location) (*Tracker, error) {
	state, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("loading intake log: %w", err)
	}
	log, err := RestoreLog(state, loc)
	if err != nil {
		return nil, fmt.Errorf("restoring intake log: %w", err)
	}

	logger.Debug("intake log loaded", "entries", len(state.Entries), "daily_goal", log.DailyGoal())
	return &Tracker{
		log:    log,
		store:  store,
		clock:  clock,
		logger: logger,
	}, nil
}

// Subscribe registers fn to be called after every successful mutation.
// Callbacks run on the mutating goroutine once the Tracker lock is released.
// The returned function cancels the subscription.
func (t *Tracker) Subscribe(fn func(Event)) (cancel func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subs = append(t.subs, subscription{id: id, fn: fn})
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		t.subs = slices.DeleteFunc(t.subs, func(s subscription) bool { return s.id == id })
	}
}

func (t *Tracker) publish(ev Event) {
	t.subMu.Lock()
	subs := slices.Clone(t.subs)
	t.subMu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (t *Tracker) now() (time.Time, error) {
	now := t.clock.Now()
	if now.IsZero() {
		return time.Time{}, ErrClockUnavailable
	}
	return now, nil
}

// AddWater records amount millilitres consumed now.
func (t *Tracker) AddWater(amount int) (Entry, error) {
	t.mu.Lock()

	entry, err := t.log.newEntry(amount, time.Time{})
	if err != nil {
		t.mu.Unlock()
		return Entry{}, err
	}
	entry.Timestamp, err = t.now()
	if err != nil {
		t.mu.Unlock()
		return Entry{}, fmt.Errorf("adding water: %w", err)
	}

	if err := t.store.AppendEntry(entry, entry.ID+1); err != nil {
		t.mu.Unlock()
		return Entry{}, fmt.Errorf("saving entry: %w", err)
	}
	t.log.append(entry)
	goal := t.log.DailyGoal()
	t.mu.Unlock()

	t.logger.Info("water added", "id", entry.ID, "amount_ml", entry.Amount)
	t.publish(Event{Kind: EventEntryAdded, Entry: entry, DailyGoal: goal, At: entry.Timestamp})
	return entry, nil
}

// ResetToday removes every entry recorded today and returns how many were
// removed. Entries from earlier days are kept.
func (t *Tracker) ResetToday() (int, error) {
	t.mu.Lock()

	now, err := t.now()
	if err != nil {
		t.mu.Unlock()
		return 0, fmt.Errorf("resetting today: %w", err)
	}
	start, end := DayBounds(now, t.log.Location())

	if _, err := t.store.DeleteEntriesBetween(start, end); err != nil {
		t.mu.Unlock()
		return 0, fmt.Errorf("deleting today's entries: %w", err)
	}
	removed := t.log.removeBetween(start, end)
	goal := t.log.DailyGoal()
	t.mu.Unlock()

	t.logger.Info("today reset", "removed", removed, "day", start.Format("2006-01-02"))
	t.publish(Event{Kind: EventTodayReset, Removed: removed, DailyGoal: goal, At: now})
	return removed, nil
}

// SetDailyGoal changes the daily goal. Non-positive goals are rejected and
// leave the current goal in place.
func (t *Tracker) SetDailyGoal(goal int) error {
	if goal <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGoal, goal)
	}

	t.mu.Lock()
	if err := t.store.SaveDailyGoal(goal); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("saving daily goal: %w", err)
	}
	if err := t.log.setDailyGoal(goal); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	t.logger.Info("daily goal changed", "daily_goal_ml", goal)
	t.publish(Event{Kind: EventGoalChanged, DailyGoal: goal, At: t.clock.Now()})
	return nil
}

// DailyGoal returns the current goal in millilitres.
func (t *Tracker) DailyGoal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.DailyGoal()
}

// TodayEntries returns today's entries, newest first.
func (t *Tracker) TodayEntries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.TodayEntries(t.clock.Now())
}

// TodayTotal returns the millilitres recorded today.
func (t *Tracker) TodayTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.TodayTotal(t.clock.Now())
}

// CompletionPercentage returns today's total divided by the daily goal.
func (t *Tracker) CompletionPercentage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.CompletionPercentage(t.clock.Now())
}

// Progress returns goal, total, percentage and entries computed against a
// single reading of the clock.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	entries := t.log.TodayEntries(now)
	total := sumAmounts(entries)
	return Progress{
		DailyGoal:            t.log.DailyGoal(),
		TodayTotal:           total,
		CompletionPercentage: float64(total) / float64(t.log.DailyGoal()),
		TodayEntries:         entries,
	}
}

// Entries returns every entry in the log in insertion order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.Entries()
}

// History returns per-day totals for the last days days, oldest first.
func (t *Tracker) History(days int) []DayTotal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.DailyTotals(t.clock.Now(), days)
}

// Location returns the calendar location used to decide "today".
func (t *Tracker) Location() *time.Location {
	return t.log.Location()
}
