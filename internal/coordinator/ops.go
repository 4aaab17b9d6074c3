package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ghazalehdelfi/secretary-agent/internal/calendar"
	"github.com/Ghazalehdelfi/secretary-agent/internal/directory"
	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// listAgentsOp surfaces every discovered peer agent to the engine.
type listAgentsOp struct {
	c *Coordinator
}

func (o *listAgentsOp) Name() string { return "list_agents" }
func (o *listAgentsOp) Description() string {
	return "List all known peer scheduling agents with their names, descriptions, and addresses."
}
func (o *listAgentsOp) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (o *listAgentsOp) Execute(ctx context.Context, _ map[string]any) (string, error) {
	cards := o.c.discovery.ListCards(ctx)
	if len(cards) == 0 {
		return "No peer agents are reachable right now.", nil
	}
	out, _ := json.MarshalIndent(cards, "", "  ")
	return string(out), nil
}

// findAvailabilityOp answers "when is my calendar free on this date".
// Each distinct date queried consumes one unit of the negotiation's
// day-retry budget.
type findAvailabilityOp struct {
	c *Coordinator
}

func (o *findAvailabilityOp) Name() string { return "find_availability" }
func (o *findAvailabilityOp) Description() string {
	return "List the free 30-minute slots on the local calendar for a date. Omit the date to check tomorrow."
}
func (o *findAvailabilityOp) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Date to check, YYYY-MM-DD. Defaults to tomorrow.",
			},
		},
	}
}

func (o *findAvailabilityOp) Execute(ctx context.Context, params map[string]any) (string, error) {
	date := stringParam(params, "date")

	if st := turnFromContext(ctx); st != nil {
		day := date
		if day == "" {
			day = o.c.now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
		}
		n := o.c.negotiations.get(st.sessionID)
		if !n.TryDay(day) {
			st.exhausted = true
			return "", fmt.Errorf("candidate-day limit reached after %d days", MaxDayAttempts)
		}
	}

	av := o.c.calendar.Availability(ctx, date)
	out, _ := json.MarshalIndent(av, "", "  ")
	return string(out), nil
}

// callContactOp routes a negotiation message to a contact: peer
// delegation when they have an agent, email with a tracked session
// otherwise.
type callContactOp struct {
	c *Coordinator
}

func (o *callContactOp) Name() string { return "call_contact" }
func (o *callContactOp) Description() string {
	return "Send a scheduling message to a contact by name. Delivered to their agent when they have one, otherwise emailed."
}
func (o *callContactOp) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"contact_name": map[string]any{
				"type":        "string",
				"description": "Name of the contact to reach, e.g. 'jane' or 'Jane Doe'.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The scheduling message, including proposed date and times.",
			},
		},
		"required": []string{"contact_name", "message"},
	}
}

func (o *callContactOp) Execute(ctx context.Context, params map[string]any) (string, error) {
	name := stringParam(params, "contact_name")
	message := stringParam(params, "message")
	if name == "" || message == "" {
		return "", fmt.Errorf("contact_name and message are required")
	}

	st := turnFromContext(ctx)
	sessionID := SessionFromContext(ctx)

	route, err := o.c.routeFor(name)
	if err != nil {
		return "", err
	}

	switch route.Kind {
	case directory.RoutePeerAgent:
		task, err := o.c.peers.SendTask(ctx, route.Address, sessionID, protocol.RoleInitiator, message)
		if err != nil {
			return "", fmt.Errorf("delegate to %s: %w", route.Contact.FullName(), err)
		}
		o.c.negotiations.transition(sessionID, StateNegotiating)
		return fmt.Sprintf("%s's agent replied: %s", route.Contact.FullName(), task.LastReply()), nil

	case directory.RouteEmail:
		subject := mail.MeetingRequestSubject(o.c.user)
		body := mail.FormatMeetingRequest(o.c.user, route.Contact.FullName(), message)
		if err := o.c.transport.Send(ctx, route.Address, subject, body); err != nil {
			return "", fmt.Errorf("email %s: %w", route.Address, err)
		}
		if err := o.c.sessions.StartFresh(sessionID, route.Address, route.Contact.FullName(), subject, body); err != nil {
			return "", fmt.Errorf("open session: %w", err)
		}
		o.c.negotiations.transition(sessionID, StateAwaitingReply)
		if st != nil {
			st.ack = fmt.Sprintf("%s has no agent, so the meeting request was emailed to %s. I will continue the negotiation in the background as replies arrive.", route.Contact.FullName(), route.Address)
		}
		return "meeting request emailed", nil
	}

	return "", fmt.Errorf("contact %s: unknown route", name)
}

// callAgentOp messages a discovered peer agent directly, for
// negotiation rounds after list_agents.
type callAgentOp struct {
	c *Coordinator
}

func (o *callAgentOp) Name() string { return "call_agent" }
func (o *callAgentOp) Description() string {
	return "Send a scheduling message to a peer agent by its discovered name and return its reply."
}
func (o *callAgentOp) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{
				"type":        "string",
				"description": "Name of the agent as returned by list_agents.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The scheduling message to deliver.",
			},
		},
		"required": []string{"agent_name", "message"},
	}
}

func (o *callAgentOp) Execute(ctx context.Context, params map[string]any) (string, error) {
	name := stringParam(params, "agent_name")
	message := stringParam(params, "message")
	if name == "" || message == "" {
		return "", fmt.Errorf("agent_name and message are required")
	}

	var card *protocol.AgentCard
	for _, c := range o.c.discovery.ListCards(ctx) {
		if strings.EqualFold(c.Name, name) {
			card = &c
			break
		}
	}
	if card == nil {
		return "", fmt.Errorf("agent %q not found; use list_agents to see who is reachable", name)
	}

	sessionID := SessionFromContext(ctx)
	task, err := o.c.peers.SendTask(ctx, card.URL, sessionID, protocol.RoleInitiator, message)
	if err != nil {
		return "", fmt.Errorf("delegate to %s: %w", card.Name, err)
	}
	o.c.negotiations.transition(sessionID, StateNegotiating)
	return fmt.Sprintf("%s replied: %s", card.Name, task.LastReply()), nil
}

// bookEventOp finalizes an agreed time on the local calendar and closes
// any follow-up session still open for the contact.
type bookEventOp struct {
	c *Coordinator
}

func (o *bookEventOp) Name() string { return "book_event" }
func (o *bookEventOp) Description() string {
	return "Create a calendar event for an agreed meeting time. Only call once both parties have agreed."
}
func (o *bookEventOp) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Meeting date, YYYY-MM-DD.",
			},
			"time": map[string]any{
				"type":        "string",
				"description": "Start time, HH:MM.",
			},
			"duration_minutes": map[string]any{
				"type":        "integer",
				"description": "Meeting length in minutes, default 30.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Event title.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional event description.",
			},
			"agenda": map[string]any{
				"type":        "string",
				"description": "Optional agenda appended to the description.",
			},
			"contact_name": map[string]any{
				"type":        "string",
				"description": "The counterpart's name, used to close their follow-up session.",
			},
		},
		"required": []string{"date", "time", "title"},
	}
}

func (o *bookEventOp) Execute(ctx context.Context, params map[string]any) (string, error) {
	sessionID := SessionFromContext(ctx)
	o.c.negotiations.transition(sessionID, StateAgreed)

	ev, err := o.c.calendar.CreateEvent(ctx, calendar.EventRequest{
		Date:            stringParam(params, "date"),
		Time:            stringParam(params, "time"),
		DurationMinutes: intParam(params, "duration_minutes", 0),
		Title:           stringParam(params, "title"),
		Description:     stringParam(params, "description"),
		Agenda:          stringParam(params, "agenda"),
	})
	if err != nil {
		return "", err
	}
	o.c.negotiations.transition(sessionID, StateBooked)

	o.closeContactSession(stringParam(params, "contact_name"))

	return fmt.Sprintf("Booked %q on %s at %s (event %s).", ev.Title, ev.Start.Format("2006-01-02"), ev.Start.Format("15:04"), ev.ID), nil
}

// closeContactSession deletes the contact's active email session, if
// any. A stale or missing session is not an error.
func (o *bookEventOp) closeContactSession(contactName string) {
	if contactName == "" {
		return
	}
	route, err := o.c.routeFor(contactName)
	if err != nil || !route.Contact.HasEmail() {
		return
	}
	sid, err := o.c.sessions.GetByEmail(route.Contact.Email)
	if err != nil {
		return
	}
	if err := o.c.sessions.Delete(sid); err != nil {
		o.c.logger.Warn("closing session after booking failed", "session", sid, "error", err)
	}
}
