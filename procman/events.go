package procman

// eventType describes an event type.
type eventType = string

const (
	eventWarning         eventType = "warning"
	eventAcquired        eventType = "acquired lock"
	eventChildSpawned    eventType = "child spawned"
	eventChildSpawnError eventType = "child spawn error"
	eventChildExited     eventType = "child exited"
	eventChildSignaled   eventType = "child signaled"
	eventManifestModify  eventType = "manifest modified"
	eventShutdown        eventType = "shutdown"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used
// primarily for decoding events from its type. Nil is returned if the event
// type is unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventAcquired:
		return &EventAcquired{}
	case eventChildSpawned:
		return &EventChildSpawned{}
	case eventChildSpawnError:
		return &EventChildSpawnError{}
	case eventChildExited:
		return &EventChildExited{}
	case eventChildSignaled:
		return &EventChildSignaled{}
	case eventManifestModify:
		return &EventManifestModified{}
	case eventShutdown:
		return &EventShutdown{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventAcquired is emitted when the flock (i.e. write lock on the journal)
// is acquired, which is on startup. It marks the beginning of a run.
type EventAcquired struct {
	PID int `json:"pid"`
}

func (ev *EventAcquired) Type() string { return eventAcquired }
func (ev *EventAcquired) event()       {}

// EventChildSpawned is emitted once per child, in launch order, after the
// operating system has assigned it a PID.
type EventChildSpawned struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

func (ev *EventChildSpawned) Type() string { return eventChildSpawned }
func (ev *EventChildSpawned) event()       {}

// EventChildSpawnError is emitted when a child fails to start for any
// reason. It aborts the launch phase.
type EventChildSpawnError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (ev *EventChildSpawnError) Type() string { return eventChildSpawnError }
func (ev *EventChildSpawnError) event()       {}

// EventChildExited is emitted when a child has stopped for any reason.
type EventChildExited struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if terminated by a signal
}

// IsGraceful returns true if the child stopped gracefully, that is, it was
// not terminated by an uncaught signal.
func (ev *EventChildExited) IsGraceful() bool {
	return ev.ExitCode != -1
}

func (ev *EventChildExited) Type() string { return eventChildExited }
func (ev *EventChildExited) event()       {}

// EventChildSignaled is emitted when the shutdown pass delivers an
// interrupt to a still-running child.
type EventChildSignaled struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

func (ev *EventChildSignaled) Type() string { return eventChildSignaled }
func (ev *EventChildSignaled) event()       {}

// ManifestModifyOp contains the possible kinds of manifest change observed
// by the watcher.
type ManifestModifyOp string

const (
	ManifestUpdate ManifestModifyOp = "update"
	ManifestRemove ManifestModifyOp = "remove"
)

// EventManifestModified is emitted when the manifest file changes on disk
// while the supervisor is running. The running children are unaffected; the
// event tells the operator that a restart is needed to apply the change.
type EventManifestModified struct {
	Op   ManifestModifyOp `json:"op"`
	File string           `json:"file"`
}

func (ev *EventManifestModified) Type() string { return eventManifestModify }
func (ev *EventManifestModified) event()       {}

// EventShutdown is emitted once when Wait returns, carrying the reason the
// supervisor stopped.
type EventShutdown struct {
	Reason string `json:"reason"`
}

func (ev *EventShutdown) Type() string { return eventShutdown }
func (ev *EventShutdown) event()       {}
