package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/internal/calendar"
	"github.com/Ghazalehdelfi/secretary-agent/internal/directory"
	"github.com/Ghazalehdelfi/secretary-agent/internal/discovery"
	"github.com/Ghazalehdelfi/secretary-agent/internal/engine"
	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/internal/session"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

type fakePeer struct {
	reply    string
	err      error
	lastURL  string
	lastRole string
}

func (f *fakePeer) SendTask(_ context.Context, baseURL, sessionID, role, message string) (*protocol.Task, error) {
	f.lastURL = baseURL
	f.lastRole = role
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.Task{
		ID:     sessionID,
		Status: protocol.TaskStatus{State: protocol.TaskCompleted},
		History: []protocol.Message{
			{Role: "user", Parts: []protocol.TextPart{protocol.NewTextPart(message)}},
			{Role: "agent", Parts: []protocol.TextPart{protocol.NewTextPart(f.reply)}},
		},
	}, nil
}

type fixture struct {
	coord     *Coordinator
	contacts  *directory.Store
	sessions  *session.Store
	transport *mail.MemoryTransport
	peer      *fakePeer
	provider  *calendar.MemoryProvider
}

func newFixture(t *testing.T, eng engine.Engine) *fixture {
	t.Helper()
	dir := t.TempDir()

	contacts, err := directory.NewStore(filepath.Join(dir, "contacts.db"))
	if err != nil {
		t.Fatalf("contacts store: %v", err)
	}
	t.Cleanup(func() { contacts.Close() })

	sessions, err := session.NewStore(filepath.Join(dir, "sessions.db"), nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	disc := discovery.NewRegistry(nil, nil)
	d := directory.New(contacts, disc, nil)
	provider := calendar.NewMemoryProvider()
	cal := calendar.NewService(provider, "primary", time.UTC, nil)
	transport := mail.NewMemoryTransport()
	peer := &fakePeer{reply: "Tuesday 10:00 works."}

	coord := NewInitiator("Sam", "sam@example.com", eng, cal, d, disc, sessions, transport, peer, nil)
	return &fixture{coord: coord, contacts: contacts, sessions: sessions, transport: transport, peer: peer, provider: provider}
}

func opCall(id, name string, args map[string]any) protocol.ChatResponse {
	return protocol.ChatResponse{
		ToolCalls: []protocol.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

func TestInitiatorEmailPath(t *testing.T) {
	eng := engine.NewScripted(
		opCall("call_1", "call_contact", map[string]any{
			"contact_name": "jane",
			"message":      "Are you free Tuesday at 10:00?",
		}),
	)
	f := newFixture(t, eng)

	if _, err := f.contacts.Add(directory.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}); err != nil {
		t.Fatalf("add contact: %v", err)
	}

	reply, err := f.coord.HandleTurn(context.Background(), "sess-1", "set up a meeting with jane")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "background") {
		t.Errorf("expected background acknowledgment, got %q", reply)
	}

	out := f.transport.Outbox()
	if len(out) != 1 {
		t.Fatalf("expected 1 email, got %d", len(out))
	}
	if out[0].To != "jane@example.com" {
		t.Errorf("email to %q", out[0].To)
	}
	if out[0].Subject != "Meeting Request from Sam" {
		t.Errorf("subject %q", out[0].Subject)
	}

	sid, err := f.sessions.GetByEmail("jane@example.com")
	if err != nil {
		t.Fatalf("expected open session: %v", err)
	}
	if sid != "sess-1" {
		t.Errorf("session id %q", sid)
	}
	if got := f.coord.Negotiation("sess-1").State; got != StateAwaitingReply {
		t.Errorf("state %q, want %q", got, StateAwaitingReply)
	}
}

func TestInitiatorPeerDelegation(t *testing.T) {
	eng := engine.NewScripted(
		opCall("call_1", "call_contact", map[string]any{
			"contact_name": "alex",
			"message":      "Does Tuesday at 10:00 work?",
		}),
		protocol.ChatResponse{Content: "Alex's agent confirmed Tuesday at 10:00."},
	)
	f := newFixture(t, eng)

	if _, err := f.contacts.Add(directory.Contact{
		FirstName: "Alex", LastName: "Chen",
		AgentName: "alex-agent", AgentURL: "http://alex.example.com",
		Email: "alex@example.com",
	}); err != nil {
		t.Fatalf("add contact: %v", err)
	}

	reply, err := f.coord.HandleTurn(context.Background(), "sess-2", "meet with alex tuesday")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "confirmed") {
		t.Errorf("unexpected reply %q", reply)
	}
	if f.peer.lastURL != "http://alex.example.com" {
		t.Errorf("delegated to %q", f.peer.lastURL)
	}
	if f.peer.lastRole != protocol.RoleInitiator {
		t.Errorf("role metadata %q", f.peer.lastRole)
	}
	if got := f.coord.Negotiation("sess-2").State; got != StateNegotiating {
		t.Errorf("state %q, want %q", got, StateNegotiating)
	}
	if len(f.transport.Outbox()) != 0 {
		t.Error("peer path must not send email")
	}
}

func TestDayRetryNeverExceedsFive(t *testing.T) {
	responses := make([]protocol.ChatResponse, 0, 6)
	for i := 0; i < 6; i++ {
		date := fmt.Sprintf("2025-06-%02d", 10+i)
		responses = append(responses, opCall(fmt.Sprintf("call_%d", i), "find_availability", map[string]any{"date": date}))
	}
	eng := engine.NewScripted(responses...)
	f := newFixture(t, eng)

	reply, err := f.coord.HandleTurn(context.Background(), "sess-3", "find a slot with nobody free")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != exhaustedMessage {
		t.Errorf("expected exhausted message, got %q", reply)
	}

	n := f.coord.Negotiation("sess-3")
	if n.State != StateExhausted {
		t.Errorf("state %q, want %q", n.State, StateExhausted)
	}
	if n.Attempts() != MaxDayAttempts {
		t.Errorf("attempts = %d, want %d", n.Attempts(), MaxDayAttempts)
	}
	// The sixth call was refused, not executed: only 6 engine turns ran.
	if got := len(eng.Requests()); got != 6 {
		t.Errorf("engine turns = %d, want 6", got)
	}
}

func TestRetryingSameDayConsumesNoBudget(t *testing.T) {
	n := &Negotiation{SessionID: "s", State: StateProposed, days: make(map[string]struct{})}
	for i := 0; i < 10; i++ {
		if !n.TryDay("2025-06-10") {
			t.Fatal("same-day retry should never be refused")
		}
	}
	if n.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", n.Attempts())
	}
}

func TestResponderHasNoBookingOps(t *testing.T) {
	cal := calendar.NewService(calendar.NewMemoryProvider(), "primary", time.UTC, nil)
	eng := engine.NewScripted(protocol.ChatResponse{Content: "09:30 and 10:00 are free."})

	c := NewResponder("Alex", eng, cal, nil)
	for _, op := range []string{"book_event", "call_contact", "call_agent", "list_agents"} {
		if c.ops.Has(op) {
			t.Errorf("responder must not expose %s", op)
		}
	}
	if !c.ops.Has("find_availability") {
		t.Error("responder must expose find_availability")
	}

	reply, err := c.HandleTurn(context.Background(), "sess-4", "are you free tuesday?")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != "09:30 and 10:00 are free." {
		t.Errorf("reply %q", reply)
	}
}

func TestBookingClosesContactSession(t *testing.T) {
	eng := engine.NewScripted(
		opCall("call_1", "book_event", map[string]any{
			"date":         "2025-06-10",
			"time":         "10:00",
			"title":        "Sync with Jane",
			"contact_name": "jane",
		}),
		protocol.ChatResponse{Content: "Booked Tuesday at 10:00 with Jane."},
	)
	f := newFixture(t, eng)

	if _, err := f.contacts.Add(directory.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}); err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if err := f.sessions.StartFresh("sess-5", "jane@example.com", "Jane Doe", "Meeting Request from Sam", "initial"); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	reply, err := f.coord.HandleTurn(context.Background(), "sess-5", "book it")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "Booked") {
		t.Errorf("reply %q", reply)
	}

	if _, err := f.sessions.GetByEmail("jane@example.com"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected session closed, got %v", err)
	}
	if got := f.coord.Negotiation("sess-5").State; got != StateBooked {
		t.Errorf("state %q, want %q", got, StateBooked)
	}
}

func TestUnresolvableContactSurfacesToEngine(t *testing.T) {
	eng := engine.NewScripted(
		opCall("call_1", "call_contact", map[string]any{
			"contact_name": "nobody",
			"message":      "hello",
		}),
		protocol.ChatResponse{Content: "I don't know how to reach nobody."},
	)
	f := newFixture(t, eng)

	reply, err := f.coord.HandleTurn(context.Background(), "sess-6", "meet with nobody")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(reply, "nobody") {
		t.Errorf("reply %q", reply)
	}

	reqs := eng.Requests()
	last := reqs[len(reqs)-1].Messages
	opResult := last[len(last)-1]
	if opResult.Role != "tool" || !strings.Contains(opResult.Content, "Error:") {
		t.Errorf("expected error op result, got %+v", opResult)
	}
}
