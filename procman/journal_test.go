package procman

import (
	"reflect"
	"sync"
	"testing"
)

// mockJournal is an in-memory store of journal events, primarily used for
// testing. A zero-value instance is a valid instance.
type mockJournal struct {
	mutex    sync.Mutex
	journals []Event
}

var _ Journaler = (*mockJournal)(nil)

// Write appends a journal event into the internal store.
func (m *mockJournal) Write(ev Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.journals = append(m.journals, ev)
	return nil
}

// Journals returns a copy of the journal slice.
func (m *mockJournal) Journals() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]Event(nil), m.journals...)
}

// Verify verifies that the given journals slice is a prefix of the one
// stored internally. If strict is true, then a length check is performed,
// otherwise the unmatched events are returned.
//
// Consecutive calls to Verify will match the remaining unmatched events.
func (m *mockJournal) Verify(t *testing.T, strict bool, journals []Event) []Event {
	t.Helper()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if strict && len(journals) != len(m.journals) {
		t.Errorf("mismatch journal length, got %d, expected %d", len(m.journals), len(journals))
		return nil
	}

	if len(journals) > len(m.journals) {
		t.Errorf("journal too short, got %d events, expected at least %d", len(m.journals), len(journals))
		return nil
	}

	for i, ev := range journals {
		if !reflect.DeepEqual(m.journals[i], ev) {
			t.Errorf("journal %d mismatch, got %#v, expected %#v", i, m.journals[i], ev)
		}
	}

	m.journals = m.journals[len(journals):]
	return m.journals
}

// Count returns the number of stored events deeply equal to ev.
func (m *mockJournal) Count(ev Event) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var n int
	for _, got := range m.journals {
		if reflect.DeepEqual(got, ev) {
			n++
		}
	}

	return n
}

// CountType returns the number of stored events with the given type.
func (m *mockJournal) CountType(eventType string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var n int
	for _, got := range m.journals {
		if got.Type() == eventType {
			n++
		}
	}

	return n
}
