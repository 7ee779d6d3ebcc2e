package models

// Lifecycle is the migration state of one asset. The zero value means the
// asset was never touched.
type Lifecycle string

const (
	LifecycleUnset           Lifecycle = ""
	LifecycleSelected        Lifecycle = "selected"
	LifecycleConverted       Lifecycle = "converted"
	LifecycleRelinked        Lifecycle = "relinked"
	LifecycleCommitted       Lifecycle = "committed"
	LifecycleSkippedAnimated Lifecycle = "skipped_animated"
	LifecycleConvertFailed   Lifecycle = "convert_failed"
	LifecycleMetadataFailed  Lifecycle = "metadata_failed"
)

// IsFailure reports whether l is a failure sink.
func (l Lifecycle) IsFailure() bool {
	return l == LifecycleConvertFailed || l == LifecycleMetadataFailed
}

// IsTerminal reports whether no transition leaves l.
func (l Lifecycle) IsTerminal() bool {
	return l == LifecycleCommitted
}

func (l Lifecycle) String() string {
	if l == LifecycleUnset {
		return "unset"
	}
	return string(l)
}

// Valid reports whether l is one of the known states.
func (l Lifecycle) Valid() bool {
	switch l {
	case LifecycleUnset, LifecycleSelected, LifecycleConverted, LifecycleRelinked,
		LifecycleCommitted, LifecycleSkippedAnimated, LifecycleConvertFailed, LifecycleMetadataFailed:
		return true
	}
	return false
}

var transitions = map[Lifecycle][]Lifecycle{
	LifecycleUnset:          {LifecycleSelected},
	LifecycleSelected:       {LifecycleConverted, LifecycleConvertFailed, LifecycleSkippedAnimated},
	// convert_failed from converted: a resumed asset re-runs its encode
	LifecycleConverted:      {LifecycleRelinked, LifecycleMetadataFailed, LifecycleConvertFailed},
	LifecycleRelinked:       {LifecycleCommitted, LifecycleSelected},
	LifecycleConvertFailed:  {LifecycleSelected},
	LifecycleMetadataFailed: {LifecycleSelected},
}

// CanTransition reports whether from -> to is an allowed edge. Staying in
// the same non-terminal state is allowed so a crashed asset can resume.
func CanTransition(from, to Lifecycle) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
