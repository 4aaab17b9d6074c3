// Package session persists outstanding email-based negotiations so that
// replies arriving later can be correlated back to the right conversation.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoSession is returned when a session id or contact email has no
// active session (for example, it was superseded by a fresh one).
var ErrNoSession = errors.New("session not found")

// Transcript message directions.
const (
	MessageSent     = "sent"
	MessageReceived = "received"
)

// TranscriptMessage is one entry of a session's conversation history.
type TranscriptMessage struct {
	Type      string    `json:"type"` // MessageSent or MessageReceived
	Content   string    `json:"content"`
	FromEmail string    `json:"from_email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailSession is a tracked asynchronous negotiation over email.
type EmailSession struct {
	SessionID    string              `json:"session_id"`
	ContactEmail string              `json:"contact_email"`
	ContactName  string              `json:"contact_name"`
	Subject      string              `json:"subject"`
	SentAt       time.Time           `json:"sent_at"`
	LastReplyAt  *time.Time          `json:"last_reply_at,omitempty"`
	History      []TranscriptMessage `json:"conversation_history,omitempty"`
}

// Store is the sqlite-backed session tracker.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore opens (or creates) the session database and runs migrations.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: wal: %w", err)
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS email_sessions (
			session_id    TEXT PRIMARY KEY,
			contact_email TEXT NOT NULL,
			contact_name  TEXT NOT NULL,
			subject       TEXT NOT NULL,
			sent_at       TEXT NOT NULL,
			last_reply_at TEXT
		);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL REFERENCES email_sessions(session_id),
			message_type TEXT NOT NULL,
			content      TEXT NOT NULL,
			from_email   TEXT NOT NULL DEFAULT '',
			timestamp    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON conversation_messages(session_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_email ON email_sessions(contact_email);
	`)
	if err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

// StartFresh creates a new session for a contact, deleting any existing
// active session (and its transcript) for the same email first. At most
// one active session per contact email exists afterwards.
func (s *Store) StartFresh(sessionID, contactEmail, contactName, subject, initialMessage string) error {
	if prior, err := s.GetByEmail(contactEmail); err == nil {
		if err := s.Delete(prior); err != nil {
			return fmt.Errorf("session store: supersede %q: %w", prior, err)
		}
		s.logger.Info("superseded prior session", "prior", prior, "contact", contactEmail)
	} else if !errors.Is(err, ErrNoSession) {
		return err
	}

	_, err := s.db.Exec(`INSERT INTO email_sessions (session_id, contact_email, contact_name, subject, sent_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, contactEmail, contactName, subject, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("session store: create %q: %w", sessionID, err)
	}

	if err := s.AddMessage(sessionID, MessageSent, initialMessage, ""); err != nil {
		// Roll back the half-created session rather than leave it empty.
		s.Delete(sessionID)
		return fmt.Errorf("session store: initial message for %q: %w", sessionID, err)
	}
	return nil
}

// AddMessage appends a transcript entry. A received message also updates
// last_reply_at. Returns ErrNoSession if the session no longer exists.
func (s *Store) AddMessage(sessionID, messageType, content, fromEmail string) error {
	if _, err := s.GetByID(sessionID); err != nil {
		return err
	}

	now := s.now().UTC()
	_, err := s.db.Exec(`INSERT INTO conversation_messages (id, session_id, message_type, content, from_email, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, messageType, content, fromEmail, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("session store: add message to %q: %w", sessionID, err)
	}

	if messageType == MessageReceived {
		if _, err := s.db.Exec(`UPDATE email_sessions SET last_reply_at = ? WHERE session_id = ?`,
			now.Format(time.RFC3339), sessionID); err != nil {
			return fmt.Errorf("session store: update last_reply_at for %q: %w", sessionID, err)
		}
	}
	return nil
}

// GetByID returns the session row without its transcript.
func (s *Store) GetByID(sessionID string) (*EmailSession, error) {
	row := s.db.QueryRow(`SELECT session_id, contact_email, contact_name, subject, sent_at, last_reply_at FROM email_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", sessionID, ErrNoSession)
		}
		return nil, fmt.Errorf("session store: get %q: %w", sessionID, err)
	}
	return sess, nil
}

// GetByEmail returns the id of the contact's active session. The schema
// keeps at most one, so the lookup is unambiguous.
func (s *Store) GetByEmail(contactEmail string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT session_id FROM email_sessions WHERE contact_email = ?`, contactEmail).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("contact %q: %w", contactEmail, ErrNoSession)
	}
	if err != nil {
		return "", fmt.Errorf("session store: get by email: %w", err)
	}
	return id, nil
}

// History returns the session with its full transcript, oldest first.
func (s *Store) History(sessionID string) (*EmailSession, error) {
	sess, err := s.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT message_type, content, from_email, timestamp FROM conversation_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: history %q: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m TranscriptMessage
		var ts string
		if err := rows.Scan(&m.Type, &m.Content, &m.FromEmail, &ts); err != nil {
			return nil, fmt.Errorf("session store: scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		sess.History = append(sess.History, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(sess.History, func(i, j int) bool {
		return sess.History[i].Timestamp.Before(sess.History[j].Timestamp)
	})
	return sess, nil
}

// Delete removes a session and its transcript. Deleting an absent session
// is a no-op, which makes closure after booking idempotent.
func (s *Store) Delete(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversation_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("session store: delete messages for %q: %w", sessionID, err)
	}
	if _, err := s.db.Exec(`DELETE FROM email_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("session store: delete %q: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanSession(row *sql.Row) (*EmailSession, error) {
	var sess EmailSession
	var sentAt string
	var lastReply *string
	if err := row.Scan(&sess.SessionID, &sess.ContactEmail, &sess.ContactName, &sess.Subject, &sentAt, &lastReply); err != nil {
		return nil, err
	}
	sess.SentAt, _ = time.Parse(time.RFC3339, sentAt)
	if lastReply != nil {
		t, _ := time.Parse(time.RFC3339, *lastReply)
		sess.LastReplyAt = &t
	}
	return &sess, nil
}
