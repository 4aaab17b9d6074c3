package coordinator

import "sync"

// State is the lifecycle position of one negotiation. Not persisted:
// the durable record is the Task and, on the email path, the session
// transcript.
type State string

const (
	StateProposed      State = "PROPOSED"
	StateNegotiating   State = "NEGOTIATING"
	StateAwaitingReply State = "AWAITING_REPLY"
	StateAgreed        State = "AGREED"
	StateBooked        State = "BOOKED"
	StateExhausted     State = "EXHAUSTED"
)

// MaxDayAttempts bounds how many distinct candidate days one
// negotiation may try before it is declared exhausted.
const MaxDayAttempts = 5

// Negotiation tracks one in-flight negotiation keyed by session id.
type Negotiation struct {
	SessionID string
	State     State
	days      map[string]struct{}
}

// TryDay records date as a candidate day. It returns false, without
// recording, when the day would be a sixth distinct attempt. Re-trying
// an already-attempted day never consumes budget.
func (n *Negotiation) TryDay(date string) bool {
	if _, ok := n.days[date]; ok {
		return true
	}
	if len(n.days) >= MaxDayAttempts {
		return false
	}
	n.days[date] = struct{}{}
	return true
}

// Attempts returns the number of distinct days tried so far.
func (n *Negotiation) Attempts() int { return len(n.days) }

// negotiationBook holds the negotiations owned by one coordinator
// instance. Entries live for the life of the process.
type negotiationBook struct {
	mu   sync.Mutex
	byID map[string]*Negotiation
}

func newNegotiationBook() *negotiationBook {
	return &negotiationBook{byID: make(map[string]*Negotiation)}
}

// get returns the negotiation for sessionID, creating it in PROPOSED on
// first reference.
func (b *negotiationBook) get(sessionID string) *Negotiation {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.byID[sessionID]
	if !ok {
		n = &Negotiation{
			SessionID: sessionID,
			State:     StateProposed,
			days:      make(map[string]struct{}),
		}
		b.byID[sessionID] = n
	}
	return n
}

// transition moves the sessionID's negotiation to state. EXHAUSTED and
// BOOKED are terminal and never overwritten.
func (b *negotiationBook) transition(sessionID string, state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.byID[sessionID]
	if !ok {
		return
	}
	if n.State == StateExhausted || n.State == StateBooked {
		return
	}
	n.State = state
}
