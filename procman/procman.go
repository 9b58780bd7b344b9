// Package procman is the core of the procman supervisor. It launches a
// fixed, ordered set of child processes, records every lifecycle event
// into a journal, and guarantees that all tracked children are signaled
// to stop when the supervisor itself is asked to stop.
//
// Mechanism of Operation
//
// The supervisor runs a strictly sequential launch phase: each command
// is spawned in order, its PID recorded, and a spawn event journaled.
// If any spawn fails, the launch aborts and the already-started
// children are signaled, since a partially-started service set is not
// useful.
//
// After launch, the supervisor blocks in Wait until either its context
// is canceled (an interrupt) or every child has exited on its own. An
// interrupt triggers a best-effort shutdown: every still-running child
// receives an interrupt signal, stragglers are killed after a grace
// window. Shutdown never fails visibly; a child that is already gone is
// simply skipped.
//
// The child list is written only during the sequential launch phase and
// is read-only afterwards, so no locking discipline is needed around
// it. Concurrency exists only in the per-child wait goroutines, which
// communicate exits through each child's done channel and the journal.
package procman
