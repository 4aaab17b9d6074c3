package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// Scripted is a deterministic Engine that replays canned responses in
// order. Used in tests and when the daemon runs without an API key.
type Scripted struct {
	mu        sync.Mutex
	responses []protocol.ChatResponse
	requests  []protocol.ChatRequest
}

func NewScripted(responses ...protocol.ChatResponse) *Scripted {
	return &Scripted{responses: responses}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted engine: no responses left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return &resp, nil
}

// Requests returns every ChatRequest seen so far.
func (s *Scripted) Requests() []protocol.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}
