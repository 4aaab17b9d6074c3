package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process calendar used in tests and mock mode.
type MemoryProvider struct {
	mu     sync.Mutex
	events map[string][]Event // calendar id → events
	err    error
}

// NewMemoryProvider creates an empty in-memory calendar.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{events: make(map[string][]Event)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MemoryProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Seed adds an event without conflict checking.
func (m *MemoryProvider) Seed(calendarID string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events[calendarID] = append(m.events[calendarID], ev)
}

func (m *MemoryProvider) BusyIntervals(_ context.Context, calendarID string, from, to time.Time) ([]Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var busy []Interval
	for _, ev := range m.events[calendarID] {
		iv := Interval{Start: ev.Start, End: ev.End}
		if iv.Overlaps(from, to) {
			busy = append(busy, iv)
		}
	}
	return busy, nil
}

func (m *MemoryProvider) ListEvents(_ context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Event
	for _, ev := range m.events[calendarID] {
		if (Interval{Start: ev.Start, End: ev.End}).Overlaps(from, to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryProvider) InsertEvent(_ context.Context, calendarID string, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Event{}, m.err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events[calendarID] = append(m.events[calendarID], ev)
	return ev, nil
}
