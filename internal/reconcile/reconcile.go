// Package reconcile runs the background loop that matches inbound email
// replies to tracked sessions and feeds them back into the negotiation.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/internal/session"
)

const (
	// DefaultInterval is the nominal poll cadence.
	DefaultInterval = 30 * time.Second
	// DefaultBackoff is how long polling pauses after a failure.
	DefaultBackoff = 60 * time.Second
)

// Reply is one inbound email reconciled to its session.
type Reply struct {
	SessionID   string
	ContactName string
	Content     string
	From        string
	Timestamp   time.Time
}

// Replier continues a negotiation from a reconciled reply. Satisfied by
// the initiator coordinator.
type Replier interface {
	HandleTurn(ctx context.Context, sessionID, message string) (string, error)
}

// Reconciler polls the email transport on a cron cadence, appends
// matched replies to their session transcripts, and hands them to the
// initiator. Poll failures back off instead of terminating the loop.
type Reconciler struct {
	transport mail.Transport
	sessions  *session.Store
	replier   Replier
	user      string

	Interval time.Duration
	Backoff  time.Duration

	cron   *cron.Cron
	logger *slog.Logger

	mu           sync.Mutex
	backoffUntil time.Time

	now func() time.Time
}

func New(transport mail.Transport, sessions *session.Store, replier Replier, user string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		transport: transport,
		sessions:  sessions,
		replier:   replier,
		user:      user,
		Interval:  DefaultInterval,
		Backoff:   DefaultBackoff,
		cron:      cron.New(),
		logger:    logger.With("component", "reconcile"),
		now:       time.Now,
	}
}

// Start begins the polling loop. Blocks until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.Interval), func() {
		r.tick(ctx)
	}); err != nil {
		return fmt.Errorf("reconcile: schedule: %w", err)
	}

	r.cron.Start()
	r.logger.Info("reconciler started", "interval", r.Interval)

	<-ctx.Done()
	r.cron.Stop()
	r.logger.Info("reconciler stopped")
	return ctx.Err()
}

// tick runs one poll unless a recent failure put the loop in backoff.
func (r *Reconciler) tick(ctx context.Context) {
	r.mu.Lock()
	inBackoff := r.now().Before(r.backoffUntil)
	r.mu.Unlock()
	if inBackoff {
		return
	}
	if err := r.Poll(ctx); err != nil {
		r.mu.Lock()
		r.backoffUntil = r.now().Add(r.Backoff)
		r.mu.Unlock()
		r.logger.Error("poll failed, backing off", "backoff", r.Backoff, "error", err)
	}
}

// Poll fetches unread mail once and dispatches every reply that matches
// an active session. Messages from unknown senders are skipped.
func (r *Reconciler) Poll(ctx context.Context) error {
	msgs, err := r.transport.PollUnread(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: poll unread: %w", err)
	}

	for _, msg := range msgs {
		from := mail.ExtractAddress(msg.From)

		sid, err := r.sessions.GetByEmail(from)
		if err != nil {
			r.logger.Debug("no session for sender, skipping", "from", from)
			continue
		}
		if err := r.sessions.AddMessage(sid, session.MessageReceived, msg.Content, from); err != nil {
			r.logger.Warn("recording reply failed", "session", sid, "error", err)
			continue
		}

		sess, err := r.sessions.GetByID(sid)
		if err != nil {
			r.logger.Warn("session vanished mid-reconcile", "session", sid, "error", err)
			continue
		}

		r.dispatch(ctx, Reply{
			SessionID:   sid,
			ContactName: sess.ContactName,
			Content:     msg.Content,
			From:        from,
			Timestamp:   r.now(),
		}, sess.Subject)
	}
	return nil
}

// dispatch hands one reconciled reply to the initiator and sends its
// response back out as a follow-up email.
func (r *Reconciler) dispatch(ctx context.Context, reply Reply, subject string) {
	r.logger.Info("reconciled reply", "session", reply.SessionID, "from", reply.From)

	turn := fmt.Sprintf("Reply from %s <%s>:\n\n%s", reply.ContactName, reply.From, reply.Content)
	response, err := r.replier.HandleTurn(ctx, reply.SessionID, turn)
	if err != nil {
		r.logger.Error("initiator turn failed", "session", reply.SessionID, "error", err)
		return
	}
	if response == "" {
		return
	}

	body := mail.FormatMeetingRequest(r.user, reply.ContactName, response)
	if err := r.transport.Send(ctx, reply.From, "Re: "+subject, body); err != nil {
		r.logger.Error("follow-up send failed", "session", reply.SessionID, "error", err)
		return
	}

	// The turn may have booked the meeting and closed the session; a
	// missing session here is expected, not an error.
	if err := r.sessions.AddMessage(reply.SessionID, session.MessageSent, body, ""); err != nil {
		r.logger.Debug("follow-up not recorded", "session", reply.SessionID, "error", err)
	}
}
