// Package peer is the outbound client side of the agent-to-agent task
// protocol.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// Short per-call timeout so one unreachable peer cannot stall a
// negotiation turn.
const callTimeout = 5 * time.Second

// Client talks to peer agents' task endpoints.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   &http.Client{Timeout: callTimeout},
		logger: logger.With("component", "peer"),
	}
}

// SendTask delegates one negotiation message to the peer at baseURL and
// returns the peer's task. The task's last history entry is the reply.
func (c *Client) SendTask(ctx context.Context, baseURL, sessionID, role, message string) (*protocol.Task, error) {
	params := protocol.TaskSendParams{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message: protocol.Message{
			Role:  "user",
			Parts: []protocol.TextPart{protocol.NewTextPart(message)},
		},
		Metadata: map[string]string{protocol.MetadataRoleKey: role},
	}
	resp, err := c.call(ctx, baseURL, protocol.MethodSendTask, params)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("task delegated", "peer", baseURL, "session", sessionID, "task", params.ID)
	return resp, nil
}

// GetTask fetches a task by id from the peer at baseURL.
func (c *Client) GetTask(ctx context.Context, baseURL, taskID string, historyLength int) (*protocol.Task, error) {
	return c.call(ctx, baseURL, protocol.MethodGetTask, protocol.TaskQueryParams{
		ID:            taskID,
		HistoryLength: historyLength,
	})
}

func (c *Client) call(ctx context.Context, baseURL, method string, params any) (*protocol.Task, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("peer: marshal params: %w", err)
	}
	payload, err := json.Marshal(protocol.Request{
		ID:     uuid.NewString(),
		Method: method,
		Params: rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("peer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/a2a", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("peer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer: %s %s: %w", method, baseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: %s %s: status %d", method, baseURL, httpResp.StatusCode)
	}

	var resp protocol.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("peer: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("peer: %s %s: %s", method, baseURL, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("peer: %s %s: empty result", method, baseURL)
	}
	return resp.Result, nil
}
