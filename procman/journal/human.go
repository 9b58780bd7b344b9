package journal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prth/procman/procman"
)

// HumanWriter renders events as human-readable lines, one per event. It is
// meant for terminal output next to a file journal.
type HumanWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

var _ procman.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new human-readable journaler.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{w: w}
}

// Write renders the event as a single line. Unknown events are ignored.
func (h *HumanWriter) Write(ev procman.Event) error {
	line := describe(ev)
	if line == "" {
		return nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	_, err := fmt.Fprintf(h.w, "%s %s\n", time.Now().Format("15:04:05"), line)
	return err
}

func describe(ev procman.Event) string {
	switch ev := ev.(type) {
	case *procman.EventAcquired:
		return fmt.Sprintf("procman started (pid %d)", ev.PID)

	case *procman.EventChildSpawned:
		return fmt.Sprintf("started %s (pid %d)", ev.Name, ev.PID)

	case *procman.EventChildSpawnError:
		return fmt.Sprintf("failed to start %s: %s", ev.Name, ev.Reason)

	case *procman.EventChildExited:
		if ev.Error != "" {
			return fmt.Sprintf("%s (pid %d) exited: %s", ev.Name, ev.PID, ev.Error)
		}
		if !ev.IsGraceful() {
			return fmt.Sprintf("%s (pid %d) was terminated", ev.Name, ev.PID)
		}
		return fmt.Sprintf("%s (pid %d) exited with code %d", ev.Name, ev.PID, ev.ExitCode)

	case *procman.EventChildSignaled:
		return fmt.Sprintf("asked %s (pid %d) to stop", ev.Name, ev.PID)

	case *procman.EventManifestModified:
		if ev.Op == procman.ManifestRemove {
			return fmt.Sprintf("manifest %s was removed; restart procman to apply", ev.File)
		}
		return fmt.Sprintf("manifest %s changed; restart procman to apply", ev.File)

	case *procman.EventShutdown:
		return "stopping: " + ev.Reason

	case *procman.EventWarning:
		return fmt.Sprintf("warning from %s: %s", ev.Component, ev.Error)

	default:
		return ""
	}
}
