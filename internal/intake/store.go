package intake

import "time"

// State is the persisted form of a Log.
type State struct {
	DailyGoal   int   // 0 when no goal has ever been saved
	NextEntryID int64 // 0 when no entry has ever been saved
	Entries     []Entry
}

// Store persists the intake log. Every method either applies its change
// completely or not at all.
type Store interface {
	// LoadState returns the persisted goal, ID counter and all entries,
	// ordered by ID.
	LoadState() (*State, error)

	// AppendEntry stores entry and advances the persisted ID counter to nextID.
	AppendEntry(entry Entry, nextID int64) error

	// DeleteEntriesBetween removes entries with start <= timestamp < end
	// and returns how many were removed.
	DeleteEntriesBetween(start, end time.Time) (int, error)

	// SaveDailyGoal persists the daily goal.
	SaveDailyGoal(goal int) error
}
