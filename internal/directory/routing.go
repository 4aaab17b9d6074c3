package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnresolvable is returned when a contact is missing or has neither an
// agent address nor an email.
var ErrUnresolvable = errors.New("contact unresolvable")

// RouteKind tags a routing decision.
type RouteKind int

const (
	// RoutePeerAgent means the contact is reachable at a peer agent address.
	RoutePeerAgent RouteKind = iota
	// RouteEmail means the contact is reachable by email only.
	RouteEmail
)

// Route is the resolved way to reach a contact. Derived, never stored.
type Route struct {
	Kind    RouteKind
	Address string // peer base URL or email address, per Kind
	Contact Contact
}

// AgentRegistrar receives peer addresses discovered during resolution.
type AgentRegistrar interface {
	AddAgent(baseURL string)
}

// Directory wraps the contact store with name lookup and routing.
type Directory struct {
	store     *Store
	registrar AgentRegistrar
	logger    *slog.Logger
}

// New creates a Directory. registrar may be nil.
func New(store *Store, registrar AgentRegistrar, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, registrar: registrar, logger: logger}
}

// Lookup finds a contact by fuzzy, case-insensitive substring match against
// first name, last name, or "first last". The first row hit wins; store
// iteration order is the deliberate, deterministic tie-break.
func (d *Directory) Lookup(name string) (*Contact, error) {
	contacts, err := d.store.All()
	if err != nil {
		return nil, fmt.Errorf("directory: lookup %q: %w", name, err)
	}

	term := strings.ToLower(strings.TrimSpace(name))
	for _, c := range contacts {
		first := strings.ToLower(c.FirstName)
		last := strings.ToLower(c.LastName)
		full := strings.TrimSpace(first + " " + last)
		if strings.Contains(first, term) || strings.Contains(last, term) || strings.Contains(full, term) {
			return &c, nil
		}
	}
	return nil, nil
}

// Resolve maps a contact name to a routing decision. Resolving a
// peer-agent contact registers its address with the discovery registry so
// later discovery passes include it.
func (d *Directory) Resolve(name string) (*Route, error) {
	contact, err := d.Lookup(name)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("contact %q: %w", name, ErrUnresolvable)
	}

	switch {
	case contact.HasAgent():
		if d.registrar != nil {
			d.registrar.AddAgent(contact.AgentURL)
		}
		d.logger.Debug("routed to peer agent", "contact", contact.FullName(), "url", contact.AgentURL)
		return &Route{Kind: RoutePeerAgent, Address: contact.AgentURL, Contact: *contact}, nil
	case contact.HasEmail():
		d.logger.Debug("routed to email", "contact", contact.FullName(), "email", contact.Email)
		return &Route{Kind: RouteEmail, Address: contact.Email, Contact: *contact}, nil
	default:
		return nil, fmt.Errorf("contact %q has no agent or email: %w", contact.FullName(), ErrUnresolvable)
	}
}
