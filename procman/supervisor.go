package procman

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prth/procman/procman/exec"
)

// ShutdownGrace is the time to wait for children to exit after an interrupt
// before they are forcefully SIGKILLed.
var ShutdownGrace = 5 * time.Second

// ExitReason reports why Wait returned.
type ExitReason string

const (
	// ReasonInterrupted means the supervisor's context was canceled and
	// every tracked child was signaled to stop.
	ReasonInterrupted ExitReason = "interrupted"
	// ReasonAllExited means every child exited on its own.
	ReasonAllExited ExitReason = "all exited"
)

// Supervisor launches a fixed, ordered set of child processes and
// guarantees they are all signaled to stop when the supervisor itself is
// asked to stop.
//
// The zero value is not usable; construct with NewSupervisor. Launch must
// complete before Wait or Shutdown is called; the child list is only
// written during the sequential launch phase.
type Supervisor struct {
	// Grace is the shutdown grace window before stragglers are killed.
	Grace time.Duration

	j         Journaler
	startProc func(Command) (exec.Process, error)

	children     []*Child
	shutdownOnce sync.Once
}

// NewSupervisor creates a supervisor that journals every lifecycle event
// into j.
func NewSupervisor(j Journaler) *Supervisor {
	return &Supervisor{
		Grace: ShutdownGrace,
		j:     j,
		startProc: func(cmd Command) (exec.Process, error) {
			return exec.StartProcess(cmd.Argv, cmd.Dir, cmd.Env)
		},
	}
}

// Launch spawns every command in order. Each spawn is non-blocking: the
// loop moves on as soon as the OS has assigned a PID, and a spawned event
// is journaled per child in input order.
//
// If any spawn fails, the remaining launches are aborted, the
// already-started children are signaled to stop, and the returned error
// names the command that failed. A partially-started service set is not
// useful.
func (s *Supervisor) Launch(cmds []Command) error {
	for _, cmd := range cmds {
		child, err := s.launch(cmd)
		if err != nil {
			s.j.Write(&EventChildSpawnError{
				Name:   cmd.Name,
				Reason: err.Error(),
			})
			s.Shutdown()
			return errors.Wrapf(err, "failed to launch %q", cmd.Name)
		}

		s.children = append(s.children, child)
	}

	return nil
}

type startResult struct {
	proc exec.Process
	err  error
}

func (s *Supervisor) launch(cmd Command) (*Child, error) {
	child := &Child{cmd: cmd, done: make(chan struct{})}
	started := make(chan startResult)
	recorded := make(chan struct{})

	// Start and wait on the same goroutine: StartProcess relies on the
	// starting thread staying alive for Pdeathsig.
	go func() {
		proc, err := s.startProc(cmd)
		started <- startResult{proc, err}
		if err != nil {
			return
		}

		// The spawned event must hit the journal before the exit event of a
		// child that dies instantly.
		<-recorded
		child.reportExit(proc.Wait(), s.j)
	}()

	res := <-started
	if res.err != nil {
		return nil, res.err
	}

	child.proc = res.proc
	s.j.Write(&EventChildSpawned{Name: cmd.Name, PID: child.PID()})
	close(recorded)

	return child, nil
}

// Children returns the launched children in launch order.
func (s *Supervisor) Children() []*Child {
	return s.children
}

// Wait blocks until either the context is canceled or every child has
// exited on its own. On cancellation, all tracked children are signaled to
// stop before Wait returns ReasonInterrupted; Wait returns no later than
// the grace window plus however long the stragglers take to die from
// SIGKILL.
func (s *Supervisor) Wait(ctx context.Context) ExitReason {
	allExited := make(chan struct{})
	go func() {
		for _, c := range s.children {
			<-c.Done()
		}
		close(allExited)
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		s.j.Write(&EventShutdown{Reason: string(ReasonInterrupted)})
		return ReasonInterrupted

	case <-allExited:
		s.j.Write(&EventShutdown{Reason: string(ReasonAllExited)})
		return ReasonAllExited
	}
}

// Shutdown signals every still-running child to stop and waits for them
// within the grace window, killing whatever remains after it. Shutdown is
// idempotent: repeated calls, including from a repeated interrupt, are
// no-ops and never fail.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Supervisor) shutdown() {
	// Signal everyone first, then wait, so slow children shut down in
	// parallel rather than one grace window at a time.
	for _, c := range s.children {
		c.signalStop(s.j)
	}

	expired := make(chan struct{})
	timer := time.AfterFunc(s.Grace, func() { close(expired) })
	defer timer.Stop()

	for _, c := range s.children {
		c.awaitExit(expired)
	}
}
