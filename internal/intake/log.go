package intake

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// DefaultDailyGoal is the goal, in millilitres, of a log that never had one set.
const DefaultDailyGoal = 2000

// Entry is one recorded water intake event.
type Entry struct {
	ID        int64     // assigned by the Log, never reused
	Amount    int       // millilitres, always positive
	Timestamp time.Time // when the water was consumed
}

// DayTotal is the intake summary of one calendar day.
type DayTotal struct {
	Date                 time.Time // midnight at the start of the day
	Total                int
	DailyGoal            int
	CompletionPercentage float64
}

// Log holds the daily goal and the intake entries. It is not safe for
// concurrent use; Tracker serialises access to it.
type Log struct {
	dailyGoal int
	entries   []Entry
	nextID    int64
	location  *time.Location
}

// NewLog creates an empty log. loc decides which calendar day "today" is;
// nil means time.Local.
func NewLog(goal int, loc *time.Location) (*Log, error) {
	if goal <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGoal, goal)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Log{dailyGoal: goal, nextID: 1, location: loc}, nil
}

// RestoreLog rebuilds a log from persisted state. A zero goal falls back to
// DefaultDailyGoal; the ID counter is never allowed to fall behind the
// highest stored entry ID.
func RestoreLog(state *State, loc *time.Location) (*Log, error) {
	goal := state.DailyGoal
	if goal == 0 {
		goal = DefaultDailyGoal
	}
	l, err := NewLog(goal, loc)
	if err != nil {
		return nil, err
	}

	l.entries = append(l.entries, state.Entries...)
	l.nextID = max(state.NextEntryID, 1)
	for _, e := range l.entries {
		if e.Amount <= 0 {
			return nil, fmt.Errorf("entry %d: %w", e.ID, ErrInvalidAmount)
		}
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
	}
	return l, nil
}

// DailyGoal returns the goal in millilitres.
func (l *Log) DailyGoal() int { return l.dailyGoal }

// NextID returns the identifier the next entry will receive.
func (l *Log) NextID() int64 { return l.nextID }

// Location returns the calendar location of the log.
func (l *Log) Location() *time.Location { return l.location }

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	return slices.Clone(l.entries)
}

// DayBounds returns the start of the calendar day containing t in loc and
// the start of the following day.
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// EntriesOn returns the entries of the calendar day containing day,
// newest first.
func (l *Log) EntriesOn(day time.Time) []Entry {
	start, end := DayBounds(day, l.location)

	var out []Entry
	for _, e := range l.entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// TodayEntries returns the entries of the day containing now, newest first.
func (l *Log) TodayEntries(now time.Time) []Entry {
	return l.EntriesOn(now)
}

// TodayTotal returns the millilitres recorded on the day containing now.
func (l *Log) TodayTotal(now time.Time) int {
	return sumAmounts(l.EntriesOn(now))
}

// CompletionPercentage returns today's total divided by the daily goal.
// The ratio is not clamped and exceeds 1.0 once the goal is passed.
func (l *Log) CompletionPercentage(now time.Time) float64 {
	return float64(l.TodayTotal(now)) / float64(l.dailyGoal)
}

// DailyTotals returns one DayTotal per calendar day for the last days days
// ending with the day containing now, oldest first. Past days are measured
// against the current goal.
func (l *Log) DailyTotals(now time.Time, days int) []DayTotal {
	if days <= 0 {
		return nil
	}
	today, _ := DayBounds(now, l.location)

	out := make([]DayTotal, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		total := sumAmounts(l.EntriesOn(day))
		out = append(out, DayTotal{
			Date:                 day,
			Total:                total,
			DailyGoal:            l.dailyGoal,
			CompletionPercentage: float64(total) / float64(l.dailyGoal),
		})
	}
	return out
}

func (l *Log) setDailyGoal(goal int) error {
	if goal <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGoal, goal)
	}
	l.dailyGoal = goal
	return nil
}

// newEntry builds the next entry without adding it to the log.
func (l *Log) newEntry(amount int, ts time.Time) (Entry, error) {
	if amount <= 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return Entry{ID: l.nextID, Amount: amount, Timestamp: ts}, nil
}

func (l *Log) append(e Entry) {
	l.entries = append(l.entries, e)
	if e.ID >= l.nextID {
		l.nextID = e.ID + 1
	}
}

// removeBetween drops entries with start <= timestamp < end and returns
// how many were dropped.
func (l *Log) removeBetween(start, end time.Time) int {
	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e Entry) bool {
		return !e.Timestamp.Before(start) && e.Timestamp.Before(end)
	})
	return before - len(l.entries)
}

func sumAmounts(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Amount
	}
	return total
}
