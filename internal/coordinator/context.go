package coordinator

import "context"

type ctxKey int

const turnKey ctxKey = iota

// turnState is per-turn scratch shared between the dispatch loop and the
// ops it executes. Ops set ack to short-circuit the loop with a fixed
// acknowledgment, and exhausted when the day-retry budget runs out.
type turnState struct {
	sessionID string
	ack       string
	exhausted bool
}

func withTurn(ctx context.Context, st *turnState) context.Context {
	return context.WithValue(ctx, turnKey, st)
}

func turnFromContext(ctx context.Context) *turnState {
	st, _ := ctx.Value(turnKey).(*turnState)
	return st
}

// SessionFromContext returns the session id of the turn in flight, or ""
// outside a dispatch loop.
func SessionFromContext(ctx context.Context) string {
	if st := turnFromContext(ctx); st != nil {
		return st.sessionID
	}
	return ""
}
