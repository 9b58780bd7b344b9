package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
	"github.com/prth/procman/procman"
)

// Reader implements a primitive reader that parses journals written by
// Writer from the bottom of the file up, newest event first.
type Reader struct {
	b *backwardio.Scanner
}

// NewReader creates a new journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read reads a single entry, starting from the end of the file. An EOF
// error is returned once the file has been fully consumed.
func (r *Reader) Read() (procman.Event, time.Time, error) {
	var line []byte
	var err error

	for {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode JSON")
	}

	event := procman.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, fmt.Errorf("unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}

// ChildState is the last recorded state of one child within a run.
type ChildState struct {
	PID      int
	Running  bool // true if no exit was recorded
	ExitCode int
	Error    string
}

// LastRun summarizes the most recent supervisor run recorded in a journal.
type LastRun struct {
	Started       time.Time
	SupervisorPID int
	Children      map[string]ChildState
}

// ErrNoRun is returned when a journal contains no recorded run.
var ErrNoRun = errors.New("journal contains no run")

// ReadLastRunFromFile reads the most recent run from the journal at path.
func ReadLastRunFromFile(path string) (*LastRun, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLastRun(f)
}

// ReadLastRun scans the journal backwards, newest event first, collecting
// the final known state of every child until the run's acquired-lock event
// is found. Events older than that belong to previous runs and are never
// read.
func ReadLastRun(r io.ReadSeeker) (*LastRun, error) {
	reader := NewReader(r)
	run := LastRun{Children: map[string]ChildState{}}
	seen := false

	for {
		ev, t, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !seen {
					return nil, ErrNoRun
				}
				// Journal predates the acquired-lock event; report what we
				// have.
				return &run, nil
			}
			return nil, err
		}

		seen = true

		switch ev := ev.(type) {
		case *procman.EventAcquired:
			run.Started = t
			run.SupervisorPID = ev.PID
			return &run, nil

		case *procman.EventChildSpawned:
			// Scanning backwards, an exit recorded after this spawn has
			// already been seen. Only the newest state per child counts.
			if _, ok := run.Children[ev.Name]; !ok {
				run.Children[ev.Name] = ChildState{PID: ev.PID, Running: true}
			}

		case *procman.EventChildExited:
			if _, ok := run.Children[ev.Name]; !ok {
				run.Children[ev.Name] = ChildState{
					PID:      ev.PID,
					ExitCode: ev.ExitCode,
					Error:    ev.Error,
				}
			}
		}
	}
}
