package core

// BoardState is the view state of the counter list: what the page shows
// after the last acknowledged store write.
type BoardState struct {
	Counters []Counter
	Loaded   bool
}

// ActionKind enumerates the transitions Reduce understands.
type ActionKind int

const (
	ActionLoaded ActionKind = iota
	ActionAdded
	ActionCountChanged
	ActionDeleted
)

// Action describes one acknowledged change to apply to a BoardState.
type Action struct {
	Kind     ActionKind
	Counters []Counter // ActionLoaded
	Counter  Counter   // ActionAdded, ActionCountChanged (ID, Count, UpdatedAt)
	ID       string    // ActionDeleted
}

// Loaded replaces the board with a fresh listing.
func Loaded(counters []Counter) Action {
	return Action{Kind: ActionLoaded, Counters: counters}
}

// Added appends a newly created counter.
func Added(c Counter) Action {
	return Action{Kind: ActionAdded, Counter: c}
}

// CountChanged records a new count for an existing counter.
func CountChanged(c Counter) Action {
	return Action{Kind: ActionCountChanged, Counter: c}
}

// Deleted removes a counter from the board.
func Deleted(id string) Action {
	return Action{Kind: ActionDeleted, ID: id}
}

// Reduce returns the state that results from applying a to s.
// s is never modified; the returned state owns a fresh slice.
func Reduce(s BoardState, a Action) BoardState {
	switch a.Kind {
	case ActionLoaded:
		return BoardState{Counters: append([]Counter(nil), a.Counters...), Loaded: true}

	case ActionAdded:
		out := make([]Counter, 0, len(s.Counters)+1)
		out = append(out, s.Counters...)
		out = append(out, a.Counter)
		return BoardState{Counters: out, Loaded: s.Loaded}

	case ActionCountChanged:
		out := make([]Counter, len(s.Counters))
		for i, c := range s.Counters {
			if c.ID == a.Counter.ID {
				c.Count = a.Counter.Count
				if !a.Counter.UpdatedAt.IsZero() {
					c.UpdatedAt = a.Counter.UpdatedAt
				}
			}
			out[i] = c
		}
		return BoardState{Counters: out, Loaded: s.Loaded}

	case ActionDeleted:
		out := make([]Counter, 0, len(s.Counters))
		for _, c := range s.Counters {
			if c.ID != a.ID {
				out = append(out, c)
			}
		}
		return BoardState{Counters: out, Loaded: s.Loaded}
	}
	return s
}

// Find returns the counter with id, if present.
func (s BoardState) Find(id string) (Counter, bool) {
	for _, c := range s.Counters {
		if c.ID == id {
			return c, true
		}
	}
	return Counter{}, false
}

// Total sums all counts on the board.
func (s BoardState) Total() int64 {
	var total int64
	for _, c := range s.Counters {
		total += c.Count
	}
	return total
}

// Snapshot is a consistent read of the counters and the weekly series.
type Snapshot struct {
	Counters []Counter
	Weekly   WeeklySeries
}
