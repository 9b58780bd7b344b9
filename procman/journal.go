package procman

// Journaler describes an event logger. Implementations must be safe for
// concurrent use; the per-child wait goroutines write exit events while the
// supervisor writes from its own goroutine.
type Journaler interface {
	Write(Event) error
}
