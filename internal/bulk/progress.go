package bulk

import (
	"sync"
	"sync/atomic"

	"github.com/sigagent/docrouter-go/internal/domain"
)

// CancelFlag is a cooperative cancellation flag shared by pointer between the
// caller and an in-flight run. It is checked before each chunk and before each
// item; setting it never interrupts operations that have already started.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel marks the flag. Safe to call from any goroutine, any number of times.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (f *CancelFlag) Cancelled() bool {
	return f.cancelled.Load()
}

// ProgressSink receives progress updates during a run. completed counts items
// whose operation finished or errored (errors count toward progress); total is
// fixed for the lifetime of the run. Implementations must be safe for
// concurrent use or trivially cheap, as the tracker serializes calls.
type ProgressSink interface {
	Progress(completed, total int)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(completed, total int)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(completed, total int) {
	f(completed, total)
}

// Tracker owns the mutable per-run state: execution groups, item statuses,
// and the global progress counter. All mutation goes through its methods,
// which enforce the item status machine (terminal states absorb).
type Tracker struct {
	mu        sync.Mutex
	groups    []domain.ExecutionGroup
	total     int
	completed int // finished or errored items, reported as progress
	failed    int
	cancelled int
	sink      ProgressSink
}

// NewTracker creates a tracker over the given groups. The groups are copied
// so the caller's slice is not aliased.
func NewTracker(groups []domain.ExecutionGroup, sink ProgressSink) *Tracker {
	copied := make([]domain.ExecutionGroup, len(groups))
	total := 0
	for i, g := range groups {
		copied[i] = g
		copied[i].Items = append([]domain.WorkItem(nil), g.Items...)
		copied[i].TotalExecutions = len(g.Items)
		copied[i].CompletedExecutions = 0
		total += len(g.Items)
	}
	return &Tracker{
		groups: copied,
		total:  total,
		sink:   sink,
	}
}

// Total returns the fixed number of items across all groups.
func (t *Tracker) Total() int {
	return t.total
}

// Counts returns the number of items that finished (success or error), failed,
// and were cancelled.
func (t *Tracker) Counts() (completed, failed, cancelled int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.failed, t.cancelled
}

// MarkRunning transitions an item from pending to running.
func (t *Tracker) MarkRunning(group, item int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(group, item, domain.StatusRunning)
}

// MarkCompleted transitions an item from running to completed, increments the
// group's completed counter and the global progress counter.
func (t *Tracker) MarkCompleted(group, item int) {
	t.mu.Lock()
	if t.transition(group, item, domain.StatusCompleted) {
		t.groups[group].CompletedExecutions++
		t.completed++
	}
	completed, total := t.completed, t.total
	t.mu.Unlock()

	t.report(completed, total)
}

// MarkError transitions an item from running to error and records the message.
// Errors still count toward the global progress counter, not toward the
// group's completed counter.
func (t *Tracker) MarkError(group, item int, message string) {
	t.mu.Lock()
	if t.transition(group, item, domain.StatusError) {
		t.groups[group].Items[item].Error = message
		t.failed++
		t.completed++
	}
	completed, total := t.completed, t.total
	t.mu.Unlock()

	t.report(completed, total)
}

// MarkCancelled transitions a not-yet-terminal item to cancelled. Cancelled
// items do not count toward progress.
func (t *Tracker) MarkCancelled(group, item int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.transition(group, item, domain.StatusCancelled) {
		t.cancelled++
	}
}

// Snapshot returns a deep copy of the groups for safe external consumption.
func (t *Tracker) Snapshot() []domain.ExecutionGroup {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.ExecutionGroup, len(t.groups))
	for i, g := range t.groups {
		out[i] = g
		out[i].Items = append([]domain.WorkItem(nil), g.Items...)
	}
	return out
}

// transition applies the status machine; returns false when the transition is
// not allowed (e.g. the item is already terminal). Callers hold the mutex.
func (t *Tracker) transition(group, item int, next domain.ExecutionStatus) bool {
	cur := t.groups[group].Items[item].Status
	if !cur.CanTransition(next) {
		return false
	}
	t.groups[group].Items[item].Status = next
	return true
}

func (t *Tracker) report(completed, total int) {
	if t.sink != nil {
		t.sink.Progress(completed, total)
	}
}
