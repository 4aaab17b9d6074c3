package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartFreshAndHistory(t *testing.T) {
	s := newTestStore(t)

	if err := s.StartFresh("s1", "a@x.com", "Alice Example", "Meeting Request", "Can we meet Tuesday?"); err != nil {
		t.Fatalf("start fresh: %v", err)
	}

	sess, err := s.History("s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if sess.ContactEmail != "a@x.com" || sess.Subject != "Meeting Request" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.LastReplyAt != nil {
		t.Error("fresh session must have nil last_reply_at")
	}
	if len(sess.History) != 1 || sess.History[0].Type != MessageSent {
		t.Errorf("expected one sent message, got %+v", sess.History)
	}
}

func TestStartFreshSupersedes(t *testing.T) {
	s := newTestStore(t)

	if err := s.StartFresh("s1", "a@x.com", "Alice", "First", "first message"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := s.StartFresh("s2", "a@x.com", "Alice", "Second", "second message"); err != nil {
		t.Fatalf("second: %v", err)
	}

	// Exactly one active session per contact email.
	id, err := s.GetByEmail("a@x.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if id != "s2" {
		t.Errorf("expected s2 active, got %q", id)
	}

	if _, err := s.GetByID("s1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("superseded session must be gone, got %v", err)
	}

	sess, err := s.History("s2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Content != "second message" {
		t.Errorf("expected only the second session's initial message, got %+v", sess.History)
	}
}

func TestAddMessageReceived(t *testing.T) {
	s := newTestStore(t)
	if err := s.StartFresh("s1", "a@x.com", "Alice", "Meeting", "hello"); err != nil {
		t.Fatalf("start fresh: %v", err)
	}

	if err := s.AddMessage("s1", MessageReceived, "Tuesday works", "a@x.com"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	sess, err := s.History("s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if sess.LastReplyAt == nil {
		t.Error("received message must set last_reply_at")
	}
	if len(sess.History) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(sess.History))
	}
	if sess.History[0].Type != MessageSent || sess.History[1].Type != MessageReceived {
		t.Errorf("transcript out of order: %+v", sess.History)
	}
	if sess.History[1].FromEmail != "a@x.com" {
		t.Errorf("missing from address: %+v", sess.History[1])
	}
}

func TestAddMessageMissingSession(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddMessage("gone", MessageSent, "x", ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSentDoesNotTouchLastReply(t *testing.T) {
	s := newTestStore(t)
	s.StartFresh("s1", "a@x.com", "Alice", "Meeting", "hello")
	s.AddMessage("s1", MessageSent, "following up", "")

	sess, _ := s.History("s1")
	if sess.LastReplyAt != nil {
		t.Error("sent messages must not set last_reply_at")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.StartFresh("s1", "a@x.com", "Alice", "Meeting", "hello")

	if err := s.Delete("s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Closing an already-closed session is a no-op.
	if err := s.Delete("s1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.GetByEmail("a@x.com"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestTranscriptOrdering(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s.StartFresh("s1", "a@x.com", "Alice", "Meeting", "one")
	s.AddMessage("s1", MessageReceived, "two", "a@x.com")
	s.AddMessage("s1", MessageSent, "three", "")

	sess, err := s.History("s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(sess.History) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(sess.History))
	}
	for i, w := range want {
		if sess.History[i].Content != w {
			t.Errorf("entry %d: expected %q, got %q", i, w, sess.History[i].Content)
		}
	}
}
