// Package discovery maintains the set of known peer agent addresses and
// fetches each peer's card from its well-known endpoint.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

const fetchTimeout = 5 * time.Second

// Registry holds peer base addresses. Duplicates are tolerated; the set is
// append-only for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	baseURLs []string
	client   *http.Client
	logger   *slog.Logger
}

// NewRegistry creates a registry seeded with the given base addresses.
func NewRegistry(seed []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	urls := make([]string, len(seed))
	copy(urls, seed)
	return &Registry{
		baseURLs: urls,
		client:   &http.Client{Timeout: fetchTimeout},
		logger:   logger,
	}
}

// AddAgent appends a peer base address to the registry.
func (r *Registry) AddAgent(baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseURLs = append(r.baseURLs, baseURL)
	r.logger.Debug("agent address registered", "url", baseURL)
}

// Addresses returns a snapshot of the registered base addresses.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.baseURLs))
	copy(out, r.baseURLs)
	return out
}

// ListCards fetches the card of every registered peer. An unreachable or
// malformed peer is logged and skipped; the call never fails wholesale.
// Result order follows registry order.
func (r *Registry) ListCards(ctx context.Context) []protocol.AgentCard {
	var cards []protocol.AgentCard
	for _, base := range r.Addresses() {
		card, err := r.fetchCard(ctx, base)
		if err != nil {
			r.logger.Warn("agent discovery failed", "url", base, "error", err)
			continue
		}
		cards = append(cards, *card)
	}
	return cards
}

func (r *Registry) fetchCard(ctx context.Context, baseURL string) (*protocol.AgentCard, error) {
	url := strings.TrimRight(baseURL, "/") + protocol.WellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discovery: read %s: %w", url, err)
	}

	var card protocol.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("discovery: parse card from %s: %w", url, err)
	}
	return &card, nil
}
