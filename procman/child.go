package procman

import (
	"fmt"
	"os"

	"github.com/prth/procman/procman/exec"
)

// Command describes a single executable for the supervisor to launch.
type Command struct {
	// Name identifies the child in the journal and in status output.
	Name string
	// Argv is the executable path followed by its arguments.
	Argv []string
	// Dir is the child's working directory. Empty means the supervisor's.
	Dir string
	// Env is the child's full environment. Nil inherits the supervisor's.
	Env []string
}

// Child is a single tracked process. A child moves from launched to running
// to exited or killed; the transitions are observed through the done
// channel and the exit status recorded behind it.
type Child struct {
	cmd  Command
	proc exec.Process

	done   chan struct{}
	status exec.ExitStatus // valid only after done is closed
}

// Name returns the child's configured name.
func (c *Child) Name() string { return c.cmd.Name }

// PID returns the process ID the OS assigned at launch. It stays valid
// after the child exits.
func (c *Child) PID() int { return c.proc.PID() }

// Done returns a channel that is closed once the child has exited and its
// exit event has been journaled.
func (c *Child) Done() <-chan struct{} { return c.done }

// Status returns the child's exit status. It must only be called after
// Done is closed.
func (c *Child) Status() exec.ExitStatus { return c.status }

// Exited reports whether the child is known to have exited.
func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// reportExit records the exit status and journals the exit event before
// closing done, so the journal entry is visible to anyone unblocked by it.
func (c *Child) reportExit(status exec.ExitStatus, j Journaler) {
	c.status = status

	ev := &EventChildExited{
		Name:     c.cmd.Name,
		PID:      status.PID,
		ExitCode: status.Code,
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	j.Write(ev)
	close(c.done)
}

// signalStop delivers a best-effort interrupt to the child. A child that
// has already exited is silently skipped; a delivery failure is journaled
// as a warning and never propagated, since the desired end state (child not
// running) already holds or will hold shortly.
func (c *Child) signalStop(j Journaler) {
	if c.Exited() {
		return
	}

	// Journal before delivering: once the signal lands, the child's exit
	// event may follow immediately and must come after this one.
	j.Write(&EventChildSignaled{Name: c.cmd.Name, PID: c.PID()})

	if err := c.proc.Signal(os.Interrupt); err != nil {
		j.Write(&EventWarning{
			Component: "supervisor",
			Error:     fmt.Sprintf("cannot signal %s (pid %d): %v", c.cmd.Name, c.PID(), err),
		})
	}
}

// awaitExit waits for the child to exit until the shared grace deadline is
// closed, at which point the child is killed. SIGKILL cannot be ignored, so
// the follow-up wait is short.
func (c *Child) awaitExit(expired <-chan struct{}) {
	select {
	case <-c.done:
		return
	case <-expired:
	}

	c.proc.Kill()
	<-c.done
}
