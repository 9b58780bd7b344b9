// Package exec provides an abstraction around package os' Process
// implementation for easier testing.
package exec

import (
	"os"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a command process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if terminated by a signal
	Error error
}

type process struct {
	*os.Process
}

var _ Process = process{}

// FindProcess creates a new Process from an existing process ID.
func FindProcess(pid int) (Process, error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	return process{p}, nil
}

// IsAlive reports whether a process with the given PID currently exists.
// It is a point-in-time check only; the process may exit right after.
func IsAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return p.Signal(syscall.Signal(0)) == nil
}

// StartProcess creates a new command process on the system running argv in
// dir with the given environment. A nil env inherits the supervisor's
// environment; stdio is always inherited so the child's output lands on the
// supervisor's terminal.
func StartProcess(argv []string, dir string, env []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	// Lock this goroutine to the OS thread for Pdeathsig.
	// See https://github.com/golang/go/issues/27505.
	runtime.LockOSThread()

	// Linux-only: we need to set the current PID as the subreaper to prevent
	// the processes we're spawning from disowning themselves, so that their
	// exit statuses always come back to us.
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return nil, errors.Wrap(err, "failed to set subreaper")
	}

	p, err := os.StartProcess(argv[0], argv, &os.ProcAttr{
		Dir:   dir,
		Env:   env,
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		// Linux-only: we need the child to die when we do, because it's the
		// next best thing we can do that doesn't involve reparenting orphaned
		// children magic.
		Sys: &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM},
	})
	if err != nil {
		return nil, err
	}

	return process{p}, nil
}

func (proc process) PID() int {
	return proc.Pid
}

// Wait waits for the process to exit. It must be called on the same
// goroutine as StartProcess.
func (proc process) Wait() ExitStatus {
	s, err := proc.Process.Wait()
	runtime.UnlockOSThread()

	st := ExitStatus{
		PID:   proc.Pid,
		Code:  -1,
		Error: err,
	}
	if s != nil {
		st.Code = s.ExitCode()
	}

	return st
}
