// Package directory resolves human names to routing targets: a peer agent
// address, an email address, or neither.
package directory

import (
	"crypto/rand"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Contact is one row of the contacts relation. A contact is routable via
// its agent when both AgentName and AgentURL are set, via email otherwise.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	AgentName string
	AgentURL  string
	Email     string
}

// FullName returns "First Last".
func (c Contact) FullName() string {
	return c.FirstName + " " + c.LastName
}

// HasAgent reports whether the contact is reachable over the peer protocol.
func (c Contact) HasAgent() bool {
	return c.AgentName != "" && c.AgentURL != ""
}

// HasEmail reports whether the contact has a usable email address.
func (c Contact) HasEmail() bool {
	return c.Email != ""
}

// Store is the sqlite-backed contacts relation.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the contacts database and runs migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("directory: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id         TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name  TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			agent_url  TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("directory: migrate: %w", err)
	}
	return nil
}

// Add inserts a contact and returns its generated id.
func (s *Store) Add(c Contact) (string, error) {
	if c.ID == "" {
		c.ID = generateID()
	}
	_, err := s.db.Exec(`INSERT INTO contacts (id, first_name, last_name, agent_name, agent_url, email) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.AgentName, c.AgentURL, c.Email)
	if err != nil {
		return "", fmt.Errorf("directory: add contact: %w", err)
	}
	return c.ID, nil
}

// Update overwrites the mutable fields of an existing contact.
func (s *Store) Update(c Contact) error {
	result, err := s.db.Exec(`UPDATE contacts SET first_name = ?, last_name = ?, agent_name = ?, agent_url = ?, email = ? WHERE id = ?`,
		c.FirstName, c.LastName, c.AgentName, c.AgentURL, c.Email, c.ID)
	if err != nil {
		return fmt.Errorf("directory: update contact: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("contact %q not found", c.ID)
	}
	return nil
}

// Remove deletes a contact by id.
func (s *Store) Remove(id string) error {
	result, err := s.db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("directory: remove contact: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("contact %q not found", id)
	}
	return nil
}

// All returns every contact in store iteration order (rowid order), which
// is the order Lookup scans in.
func (s *Store) All() ([]Contact, error) {
	rows, err := s.db.Query(`SELECT id, first_name, last_name, agent_name, agent_url, email FROM contacts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("directory: list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.AgentName, &c.AgentURL, &c.Email); err != nil {
			return nil, fmt.Errorf("directory: scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing).
func (s *Store) DB() *sql.DB {
	return s.db
}

// generateID creates a short random hex ID.
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
