package epoch

// TypecheckingStatus is a point-in-time view of the coordinator, derived
// from the three counters. It is a plain value; holding one confers no
// locking, and it can be stale the moment it is returned.
type TypecheckingStatus struct {
	// SlowPathRunning reports whether a slow path is in flight
	// (processing != committed).
	SlowPathRunning bool

	// SlowPathCanceled reports whether the in-flight slow path has been
	// requested-canceled (processing != invalidator). Always false when no
	// slow path is running.
	SlowPathCanceled bool

	// CommittedEpoch is the epoch of the last published typecheck result.
	CommittedEpoch Epoch

	// ProcessingEpoch is the epoch the in-flight slow path is attempting.
	// Equal to CommittedEpoch when idle.
	ProcessingEpoch Epoch
}

// Derive computes the status record from a counter snapshot.
//
// Pure function of its arguments; the caller is responsible for the
// snapshot's consistency (Manager takes its mutex before reading).
func Derive(committed, processing, invalidator Epoch) TypecheckingStatus {
	return TypecheckingStatus{
		SlowPathRunning:  processing != committed,
		SlowPathCanceled: processing != invalidator,
		CommittedEpoch:   committed,
		ProcessingEpoch:  processing,
	}
}
