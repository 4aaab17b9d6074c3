// Package engine abstracts the reasoning model behind the coordinators.
package engine

import (
	"context"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// Engine is the abstraction over LLM APIs.
type Engine interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}
