package lineMap

import (
	"errors"
	"strings"
	"sync"
)

const (
	InstanceStateInitial int8 = iota
	InstanceState
)

// Instance - represents a singular instance of a line map.
type Instance struct {
	// Instance related data.
	//
	state      int8
	value      string
	valueMutex sync.Mutex

	// Child structs.
	//
	source  Source
	history History
}

// New - creates a new instance of a line map.
func New(value string, source Source) (*Instance, error) {

	err := source.Load()
	if err != nil {
		return nil, err
	}

	instance := Instance{
		state:   InstanceStateInitial,
		value:   value,
		source:  source,
		history: History{},
	}

	return &instance, nil
}

// InitialIndex - perform initial indexing of the lines in the `Instance.value` and
// stores the line map in the `Instance.history`. This method only executes once when
// the `Instance.history` is empty.
func (i *Instance) InitialIndex() error {
	// Does the history already have an initial snapshot, or any
	// snapshot at all? If so, we return an error.
	//
	if i.history.hasInitialSnapshot || i.history.notEmpty() {
		return errors.New("line map: initial snapshot already exists in history")
	}

	// Trigger snapshot of the initial `Instance` state.
	//
	err := i.history.snapshot(i, LineSnapshotTypeInitial, nil)
	if err != nil {
		return err
	}

	return nil
}

// Value returns the instance's current source text.
func (i *Instance) Value() string {
	i.valueMutex.Lock()
	defer i.valueMutex.Unlock()
	return i.value
}

// Lines returns the instance's current source text split on newlines.
func (i *Instance) Lines() []string {
	return strings.Split(i.Value(), "\n")
}

// LineOrigin traces lineNumber in the current snapshot back to the
// original source, walking the recorded history.
func (i *Instance) LineOrigin(lineNumber int) int {
	return i.history.LineOrigin(lineNumber)
}

// LineHistory returns every recorded change touching lineNumber across the
// instance's snapshot history, oldest first.
func (i *Instance) LineHistory(lineNumber int) []LineChange {
	return i.history.LineHistory(lineNumber)
}

// SnapshotCount returns how many snapshots (initial plus every Update
// call) the instance has recorded.
func (i *Instance) SnapshotCount() int {
	return len(i.history.items)
}

// Update - updates the value of `Instance.value` and creates a snapshot of the new state in `Instance.history`.
func (i *Instance) Update(newValue string) error {

	// Before we can make an update, we need to ensure that the `Instance.history` has an
	// initial snapshot. If not, we return an error.
	//
	if !i.history.hasInitialSnapshot {
		return errors.New("line map: initial snapshot does not exist in history")
	}

	// Get latest snapshot from the instance history.
	//
	latestSnapshot := i.history.items[len(i.history.items)-1]

	// Are there changes between the new value and the latest snapshot in the history? If not, we place
	// a snapshot in the history that indicates that there are no changes at this point in time.
	//
	if latestSnapshot.SourceCompare(newValue) {
		err := i.history.snapshot(i, LineSnapshotTypeNoChange, nil)
		if err != nil {
			return err
		}

		return nil
	}

	// Collect changes between the new value and the last snapshot in the history.
	//
	changes, err := i.changes(newValue)
	if err != nil {
		return err
	}

	i.valueMutex.Lock()
	i.value = strings.Clone(newValue)
	i.valueMutex.Unlock()

	return i.history.snapshot(i, LineSnapshotTypeChange, &changes)
}

// changes - returns changes between a new value and the last snapshot in the
// history. Lines are matched by a common-prefix/common-suffix scan rather
// than a full LCS diff: pre-processing steps only ever insert or delete
// contiguous runs of lines (an %include block, a macro expansion), never
// reorder existing ones, so the two matched ends always identify exactly
// the span that changed.
func (i *Instance) changes(newValue string) (map[int]LineChange, error) {

	if i.history.empty() {
		return nil, errors.New("line map: history is empty, cannot compute changes")
	}

	lastSnapshot := i.history.items[len(i.history.items)-1]

	oldLines := lastSnapshot.lines
	newLines := strings.Split(newValue, "\n")

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}

	maxSuffix := min(len(oldLines)-prefix, len(newLines)-prefix)
	suffix := 0
	for suffix < maxSuffix && oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	changes := make(map[int]LineChange)

	// Matched suffix lines map onto their old position one-for-one, so a
	// later LineOrigin walk can trace through them.
	for k := 0; k < suffix; k++ {
		newIdx := len(newLines) - 1 - k
		oldIdx := len(oldLines) - 1 - k
		if newIdx < prefix {
			break
		}
		lc, err := newLineChange(LineSnapshotTypeUnchanged, oldIdx, oldIdx, oldIdx)
		if err != nil {
			return nil, err
		}
		changes[newIdx] = *lc
	}

	// Lines inserted between the matched prefix and suffix have no origin
	// in the old source.
	if newMidStart, newMidEnd := prefix, len(newLines)-suffix-1; newMidEnd >= newMidStart {
		lc, err := newLineChange(LineSnapshotTypeExpanding, prefix-1, newMidStart, newMidEnd)
		if err != nil {
			return nil, err
		}
		for idx := newMidStart; idx <= newMidEnd; idx++ {
			changes[idx] = *lc
		}
	}

	return changes, nil
}
