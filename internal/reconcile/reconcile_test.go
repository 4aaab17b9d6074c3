package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/internal/session"
)

type fakeReplier struct {
	mu       sync.Mutex
	response string
	err      error
	sessions []string
	messages []string
}

func (f *fakeReplier) HandleTurn(_ context.Context, sessionID, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	f.messages = append(f.messages, message)
	return f.response, f.err
}

type countingTransport struct {
	mail.Transport
	polls int
}

func (c *countingTransport) PollUnread(ctx context.Context) ([]mail.Inbound, error) {
	c.polls++
	return c.Transport.PollUnread(ctx)
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	s, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPollReconcilesReplyToSession(t *testing.T) {
	store := newStore(t)
	transport := mail.NewMemoryTransport()
	replier := &fakeReplier{response: "How about Wednesday at 11:00?"}
	r := New(transport, store, replier, "Sam", nil)

	if err := store.StartFresh("s1", "a@x.com", "Alice Smith", "Meeting Request from Sam", "initial"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	transport.Deliver("Alice Smith <A@x.com>", "Tuesday is full for me.")

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	sess, err := store.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if sess.LastReplyAt == nil {
		t.Error("last_reply_at not set")
	}

	if len(replier.sessions) != 1 || replier.sessions[0] != "s1" {
		t.Fatalf("replier sessions = %v", replier.sessions)
	}
	if !strings.Contains(replier.messages[0], "Tuesday is full") {
		t.Errorf("turn message %q", replier.messages[0])
	}
	if !strings.Contains(replier.messages[0], "a@x.com") {
		t.Errorf("turn message missing clean sender: %q", replier.messages[0])
	}

	out := transport.Outbox()
	if len(out) != 1 {
		t.Fatalf("expected follow-up email, got %d", len(out))
	}
	if out[0].To != "a@x.com" {
		t.Errorf("follow-up to %q", out[0].To)
	}
	if out[0].Subject != "Re: Meeting Request from Sam" {
		t.Errorf("follow-up subject %q", out[0].Subject)
	}
	if !strings.Contains(out[0].Body, "Wednesday at 11:00") {
		t.Errorf("follow-up body %q", out[0].Body)
	}

	history, err := store.History("s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	types := make([]string, len(history.History))
	for i, m := range history.History {
		types[i] = m.Type
	}
	want := []string{session.MessageSent, session.MessageReceived, session.MessageSent}
	if len(types) != len(want) {
		t.Fatalf("transcript types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("transcript types = %v, want %v", types, want)
		}
	}
}

func TestPollSkipsUnknownSenders(t *testing.T) {
	store := newStore(t)
	transport := mail.NewMemoryTransport()
	replier := &fakeReplier{response: "hello"}
	r := New(transport, store, replier, "Sam", nil)

	transport.Deliver("stranger@x.com", "who is this?")

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(replier.sessions) != 0 {
		t.Errorf("unknown sender dispatched: %v", replier.sessions)
	}
	if len(transport.Outbox()) != 0 {
		t.Error("no follow-up expected")
	}
}

func TestTickBacksOffAfterFailure(t *testing.T) {
	store := newStore(t)
	inner := mail.NewMemoryTransport()
	inner.FailWith(errors.New("imap down"))
	transport := &countingTransport{Transport: inner}
	r := New(transport, store, &fakeReplier{}, "Sam", nil)

	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	r.tick(context.Background())
	if transport.polls != 1 {
		t.Fatalf("polls = %d, want 1", transport.polls)
	}

	// Within the backoff window ticks are skipped.
	now = base.Add(30 * time.Second)
	r.tick(context.Background())
	if transport.polls != 1 {
		t.Fatalf("tick during backoff polled, polls = %d", transport.polls)
	}

	// After backoff the loop resumes rather than terminating.
	now = base.Add(61 * time.Second)
	r.tick(context.Background())
	if transport.polls != 2 {
		t.Fatalf("polls = %d, want 2", transport.polls)
	}
}

func TestDispatchErrorDoesNotFailPoll(t *testing.T) {
	store := newStore(t)
	transport := mail.NewMemoryTransport()
	replier := &fakeReplier{err: errors.New("engine down")}
	r := New(transport, store, replier, "Sam", nil)

	if err := store.StartFresh("s1", "a@x.com", "Alice Smith", "Meeting Request from Sam", "initial"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	transport.Deliver("a@x.com", "reply")

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll should absorb dispatch errors: %v", err)
	}
	if len(transport.Outbox()) != 0 {
		t.Error("no follow-up should be sent when the turn fails")
	}
}
