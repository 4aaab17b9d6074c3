// Package mail is the email channel used to reach contacts that have no
// peer agent: SMTP for outbound requests, IMAP for polling replies.
package mail

import (
	"context"
	"fmt"
)

// Inbound is one unread message pulled from the mailbox.
type Inbound struct {
	From    string // raw From header, possibly display-name wrapped
	Content string // plain-text body
}

// Transport is the raw email transport contract. Implementations mark
// polled messages as read so they are not delivered twice.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
	PollUnread(ctx context.Context) ([]Inbound, error)
}

// MeetingRequestSubject builds the subject line for a fresh request.
func MeetingRequestSubject(user string) string {
	return fmt.Sprintf("Meeting Request from %s", user)
}

// FormatMeetingRequest wraps a negotiation message in the greeting and
// signature used for every outbound email.
func FormatMeetingRequest(user, contactName, request string) string {
	return fmt.Sprintf("Hello %s,\n\n%s\n\nBest regards,\n%s's Assistant\n", contactName, request, user)
}
