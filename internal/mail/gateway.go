package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "gopkg.in/gomail.v2"
)

// Config carries the account credentials for both directions of the
// email channel. The same address is used for sending and polling.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
}

// Gateway is the production Transport: gomail over SMTP for outbound,
// a fresh IMAP session per poll for inbound. Polled messages are
// flagged \Seen before the poll returns.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
}

func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, logger: logger.With("component", "mail")}
}

func (g *Gateway) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", g.cfg.Address)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(g.cfg.SMTPHost, g.cfg.SMTPPort, g.cfg.Address, g.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	g.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

func (g *Gateway) PollUnread(ctx context.Context) ([]Inbound, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", g.cfg.IMAPHost, g.cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("mail: imap dial: %w", err)
	}
	defer c.Logout()

	if err := c.Login(g.cfg.Address, g.cfg.Password); err != nil {
		return nil, fmt.Errorf("mail: imap login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("mail: select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("mail: search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var out []Inbound
	for msg := range messages {
		in, err := g.decode(msg, section)
		if err != nil {
			g.logger.Warn("skipping undecodable message", "seq", msg.SeqNum, "error", err)
			continue
		}
		out = append(out, in)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("mail: fetch: %w", err)
	}

	flagged := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.Store(seqset, flagged, []interface{}{imap.SeenFlag}, nil); err != nil {
		return nil, fmt.Errorf("mail: mark seen: %w", err)
	}
	g.logger.Info("polled unread mail", "count", len(out))
	return out, nil
}

func (g *Gateway) decode(msg *imap.Message, section *imap.BodySectionName) (Inbound, error) {
	var in Inbound
	if env := msg.Envelope; env != nil && len(env.From) > 0 {
		in.From = env.From[0].Address()
	}
	body := msg.GetBody(section)
	if body == nil {
		return in, fmt.Errorf("no body section")
	}
	text, err := extractTextBody(body)
	if err != nil {
		return in, err
	}
	in.Content = text
	return in, nil
}
