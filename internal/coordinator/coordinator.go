// Package coordinator implements the negotiation logic for both sides
// of a scheduling exchange. An initiator represents the requesting
// user and may reach out and book; a responder answers a peer's
// proposals against its own calendar and never books.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/internal/calendar"
	"github.com/Ghazalehdelfi/secretary-agent/internal/directory"
	"github.com/Ghazalehdelfi/secretary-agent/internal/discovery"
	"github.com/Ghazalehdelfi/secretary-agent/internal/engine"
	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/internal/session"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

const defaultMaxTurns = 10

const exhaustedMessage = "No mutually free slot was found within the candidate-day limit. The negotiation has been closed without booking."

// PeerCaller delegates a negotiation message to a peer agent.
// Implemented by the peer client; an interface here so tests can fake
// the remote side.
type PeerCaller interface {
	SendTask(ctx context.Context, baseURL, sessionID, role, message string) (*protocol.Task, error)
}

// Coordinator drives one role's side of scheduling negotiations.
type Coordinator struct {
	role      string
	user      string
	userEmail string

	engine    engine.Engine
	ops       *Registry
	calendar  *calendar.Service
	directory *directory.Directory
	discovery *discovery.Registry
	sessions  *session.Store
	transport mail.Transport
	peers     PeerCaller

	logger   *slog.Logger
	maxTurns int

	negotiations *negotiationBook

	// per-instance routing cache, process lifetime, no eviction
	routeMu    sync.Mutex
	routeCache map[string]*directory.Route

	now func() time.Time
}

// NewInitiator builds the coordinator that represents the local user.
func NewInitiator(user, userEmail string, eng engine.Engine, cal *calendar.Service, dir *directory.Directory, disc *discovery.Registry, sess *session.Store, transport mail.Transport, peers PeerCaller, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		role:         protocol.RoleInitiator,
		user:         user,
		userEmail:    userEmail,
		engine:       eng,
		calendar:     cal,
		directory:    dir,
		discovery:    disc,
		sessions:     sess,
		transport:    transport,
		peers:        peers,
		logger:       logger.With("component", "coordinator", "role", protocol.RoleInitiator),
		maxTurns:     defaultMaxTurns,
		negotiations: newNegotiationBook(),
		routeCache:   make(map[string]*directory.Route),
		now:          time.Now,
	}
	c.ops = NewRegistry()
	c.ops.Register(&listAgentsOp{c: c})
	c.ops.Register(&findAvailabilityOp{c: c})
	c.ops.Register(&callContactOp{c: c})
	c.ops.Register(&callAgentOp{c: c})
	c.ops.Register(&bookEventOp{c: c})
	return c
}

// NewResponder builds the read-only coordinator that answers peer
// proposals. It carries no booking, outreach, or session machinery.
func NewResponder(user string, eng engine.Engine, cal *calendar.Service, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		role:         protocol.RoleResponder,
		user:         user,
		engine:       eng,
		calendar:     cal,
		logger:       logger.With("component", "coordinator", "role", protocol.RoleResponder),
		maxTurns:     defaultMaxTurns,
		negotiations: newNegotiationBook(),
		now:          time.Now,
	}
	c.ops = NewRegistry()
	c.ops.Register(&findAvailabilityOp{c: c})
	return c
}

// Role returns the role this coordinator was constructed with.
func (c *Coordinator) Role() string { return c.role }

// Negotiation returns the tracked negotiation for a session id.
func (c *Coordinator) Negotiation(sessionID string) *Negotiation {
	return c.negotiations.get(sessionID)
}

// HandleTurn runs one dispatch loop: send the conversation to the
// engine, execute any requested operations, and loop until the engine
// returns final text, an op short-circuits with an acknowledgment, or
// the turn limit is reached.
func (c *Coordinator) HandleTurn(ctx context.Context, sessionID, userMessage string) (string, error) {
	st := &turnState{sessionID: sessionID}
	ctx = withTurn(ctx, st)

	messages := []protocol.ChatMessage{
		{Role: "system", Content: c.systemPrompt()},
		{Role: "user", Content: userMessage},
	}

	opDefs := c.ops.Definitions()

	for i := 0; i < c.maxTurns; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("coordinator %s: context cancelled: %w", c.role, err)
		}

		resp, err := c.engine.Chat(ctx, protocol.ChatRequest{
			Messages: messages,
			Tools:    opDefs,
		})
		if err != nil {
			return "", fmt.Errorf("coordinator %s: engine error: %w", c.role, err)
		}

		if !resp.HasToolCalls() {
			c.logger.Debug("final response", "session", sessionID, "turns", i+1)
			return resp.Content, nil
		}

		messages = append(messages, protocol.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			c.logger.Info(fmt.Sprintf("op call: %s", tc.Name), "session", sessionID, "call_id", tc.ID)

			result, err := c.ops.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				// Return the error as an op result so the engine can recover.
				result = fmt.Sprintf("Error: %v", err)
				c.logger.Warn(fmt.Sprintf("op error: %s", tc.Name), "session", sessionID, "error", err)
			}

			messages = append(messages, protocol.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}

		// The email path hands the conversation to the reconciler; no
		// further engine round-trips for this turn.
		if st.ack != "" {
			return st.ack, nil
		}
		if st.exhausted {
			c.negotiations.transition(sessionID, StateExhausted)
			return exhaustedMessage, nil
		}
	}

	return "", fmt.Errorf("coordinator %s: exceeded max turns (%d)", c.role, c.maxTurns)
}

// routeFor resolves a contact name through the per-instance cache.
func (c *Coordinator) routeFor(name string) (*directory.Route, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	c.routeMu.Lock()
	if r, ok := c.routeCache[key]; ok {
		c.routeMu.Unlock()
		return r, nil
	}
	c.routeMu.Unlock()

	r, err := c.directory.Resolve(name)
	if err != nil {
		return nil, err
	}
	c.routeMu.Lock()
	c.routeCache[key] = r
	c.routeMu.Unlock()
	return r, nil
}

func (c *Coordinator) systemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the scheduling assistant for %s.\n\n", c.user)

	fmt.Fprintf(&b, "# Current Time\n%s\n\n", c.now().Format("2006-01-02 15:04:05 MST"))

	b.WriteString("# Rules\n")
	b.WriteString("- All meetings are 30 minutes inside business hours (09:00-17:00) unless told otherwise.\n")
	b.WriteString("- Always check availability with find_availability before proposing or accepting a time.\n")
	b.WriteString("- Dates are YYYY-MM-DD, times are HH:MM in the calendar's timezone.\n")

	switch c.role {
	case protocol.RoleInitiator:
		b.WriteString("- To reach someone, use call_contact with their name; routing to their agent or email happens for you.\n")
		b.WriteString("- If a day has no mutual slot, try the next calendar day. A limited number of days will be attempted; when the limit is hit, report failure honestly.\n")
		b.WriteString("- Once a time is agreed, book it with book_event, then confirm the booked time to the user.\n")
	case protocol.RoleResponder:
		fmt.Fprintf(&b, "- You answer scheduling proposals on behalf of %s.\n", c.user)
		b.WriteString("- Reply with your free times for the requested date, or counter-propose the nearest day that has availability.\n")
		b.WriteString("- You never create calendar events; the requesting side books once both parties agree.\n")
	}

	return b.String()
}
