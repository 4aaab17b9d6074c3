// Package task holds the in-memory store of request/response units of work.
// Tasks live for the process lifetime only; there is no persistence.
package task

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// ErrNotFound is returned when a task id is unknown.
var ErrNotFound = errors.New("task not found")

// Store is a concurrency-safe map from task id to task state and history.
// The lock guards only map mutation, never network or engine calls.
type Store struct {
	mu     sync.Mutex
	tasks  map[string]*protocol.Task
	logger *slog.Logger
}

// NewStore creates an empty task store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tasks:  make(map[string]*protocol.Task),
		logger: logger,
	}
}

// Upsert creates a task with the given initial message if the id is new,
// or appends the message to the existing task's history. The returned task
// is a copy; callers cannot mutate stored state through it.
func (s *Store) Upsert(id string, msg protocol.Message) *protocol.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		t = &protocol.Task{
			ID:      id,
			Status:  protocol.TaskStatus{State: protocol.TaskSubmitted},
			History: []protocol.Message{msg},
		}
		s.tasks[id] = t
		s.logger.Debug("task created", "task", id)
	} else {
		t.History = append(t.History, msg)
	}
	return copyTask(t, 0)
}

// Complete appends the reply to the task's history and marks it completed.
func (s *Store) Complete(id string, reply protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.History = append(t.History, reply)
	t.Status = protocol.TaskStatus{State: protocol.TaskCompleted}
	return nil
}

// Get returns a copy of the task. If historyLimit is positive, only the
// last historyLimit entries are included; the stored task is untouched.
func (s *Store) Get(id string, historyLimit int) (*protocol.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTask(t, historyLimit), nil
}

// Len returns the number of tracked tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func copyTask(t *protocol.Task, historyLimit int) *protocol.Task {
	history := t.History
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	out := &protocol.Task{
		ID:      t.ID,
		Status:  t.Status,
		History: make([]protocol.Message, len(history)),
	}
	for i, m := range history {
		parts := make([]protocol.TextPart, len(m.Parts))
		copy(parts, m.Parts)
		out.History[i] = protocol.Message{Role: m.Role, Parts: parts}
	}
	return out
}
