package journal

import (
	"bytes"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prth/procman/procman"
)

func TestWriterReader(t *testing.T) {
	written := []procman.Event{
		&procman.EventAcquired{PID: 100},
		&procman.EventChildSpawned{Name: "https-server", PID: 1},
		&procman.EventChildSpawned{Name: "receiver", PID: 2},
		&procman.EventChildExited{Name: "receiver", PID: 2, ExitCode: 0},
	}

	buf := bytes.Buffer{}
	w := NewWriter(&buf)

	for _, ev := range written {
		if err := w.Write(ev); err != nil {
			t.Fatal("failed to write event:", err)
		}
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))

	// The reader yields events newest first.
	for i := len(written) - 1; i >= 0; i-- {
		ev, ts, err := r.Read()
		if err != nil {
			t.Fatal("failed to read event:", err)
		}
		if ts.IsZero() {
			t.Error("event has a zero timestamp")
		}
		if !reflect.DeepEqual(ev, written[i]) {
			t.Errorf("event mismatch, got %#v, expected %#v", ev, written[i])
		}
	}

	if _, _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after the last event, got %v", err)
	}
}

func TestReadLastRun(t *testing.T) {
	buf := bytes.Buffer{}
	w := NewWriter(&buf)

	// A finished previous run followed by the current one; only the
	// current run may be reported.
	previous := []procman.Event{
		&procman.EventAcquired{PID: 90},
		&procman.EventChildSpawned{Name: "https-server", PID: 7},
		&procman.EventChildExited{Name: "https-server", PID: 7, ExitCode: 0},
		&procman.EventShutdown{Reason: "interrupted"},
	}
	current := []procman.Event{
		&procman.EventAcquired{PID: 100},
		&procman.EventChildSpawned{Name: "https-server", PID: 11},
		&procman.EventChildSpawned{Name: "receiver", PID: 12},
		&procman.EventChildExited{Name: "receiver", PID: 12, ExitCode: 1, Error: "exit status 1"},
	}

	for _, ev := range append(previous, current...) {
		if err := w.Write(ev); err != nil {
			t.Fatal("failed to write event:", err)
		}
	}

	run, err := ReadLastRun(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal("failed to read last run:", err)
	}

	if run.SupervisorPID != 100 {
		t.Errorf("got supervisor pid %d, expected 100", run.SupervisorPID)
	}
	if run.Started.IsZero() {
		t.Error("run has a zero start time")
	}

	expect := map[string]ChildState{
		"https-server": {PID: 11, Running: true},
		"receiver":     {PID: 12, ExitCode: 1, Error: "exit status 1"},
	}
	if !reflect.DeepEqual(run.Children, expect) {
		t.Errorf("children mismatch, got %#v, expected %#v", run.Children, expect)
	}
}

func TestReadLastRunEmpty(t *testing.T) {
	_, err := ReadLastRun(bytes.NewReader(nil))
	if !errors.Is(err, ErrNoRun) {
		t.Errorf("expected ErrNoRun for an empty journal, got %v", err)
	}
}

func TestFileLockJournaler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j, err := NewFileLockJournaler(path)
	if err != nil {
		t.Fatal("failed to create journaler:", err)
	}

	if err := j.Write(&procman.EventAcquired{PID: 100}); err != nil {
		t.Fatal("failed to write event:", err)
	}

	// A second instance on the same journal must be refused.
	if _, err := NewFileLockJournaler(path); !errors.Is(err, ErrLockedElsewhere) {
		t.Errorf("expected ErrLockedElsewhere, got %v", err)
	}

	if err := j.Close(); err != nil {
		t.Fatal("failed to close journaler:", err)
	}

	// The lock is free again after Close.
	j2, err := NewFileLockJournaler(path)
	if err != nil {
		t.Fatal("failed to reacquire journaler:", err)
	}
	j2.Close()

	run, err := ReadLastRunFromFile(path)
	if err != nil {
		t.Fatal("failed to read journal back:", err)
	}
	if run.SupervisorPID != 100 {
		t.Errorf("got supervisor pid %d, expected 100", run.SupervisorPID)
	}
}

func TestHumanWriter(t *testing.T) {
	buf := bytes.Buffer{}
	h := NewHumanWriter(&buf)

	events := []procman.Event{
		&procman.EventChildSpawned{Name: "https-server", PID: 41},
		&procman.EventChildExited{Name: "https-server", PID: 41, ExitCode: -1},
	}
	for _, ev := range events {
		if err := h.Write(ev); err != nil {
			t.Fatal("failed to write event:", err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	if !strings.Contains(lines[0], "started https-server (pid 41)") {
		t.Errorf("unexpected spawn line %q", lines[0])
	}
	if !strings.Contains(lines[1], "was terminated") {
		t.Errorf("unexpected exit line %q", lines[1])
	}
}

func TestMultiWriter(t *testing.T) {
	a := bytes.Buffer{}
	b := bytes.Buffer{}

	w := MultiWriter(NewWriter(&a), NewWriter(&b))
	if err := w.Write(&procman.EventShutdown{Reason: "interrupted"}); err != nil {
		t.Fatal("failed to write event:", err)
	}

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		ev, _, err := NewReader(bytes.NewReader(buf.Bytes())).Read()
		if err != nil {
			t.Fatalf("failed to read %s journaler back: %v", name, err)
		}
		if !reflect.DeepEqual(ev, &procman.EventShutdown{Reason: "interrupted"}) {
			t.Errorf("%s journaler got %#v", name, ev)
		}
	}
}
