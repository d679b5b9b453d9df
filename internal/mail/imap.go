package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// IMAPConfig configures the IMAP search side and the SMTP send side of a
// plain mailbox provider.
type IMAPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
	Mailbox  string

	SMTPHost string
	SMTPPort string
	// SMTPImplicitTLS dials TLS directly instead of upgrading with STARTTLS.
	SMTPImplicitTLS bool
}

// Validate checks that both sides of the provider are addressable.
func (c *IMAPConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.Host == "" || c.Port == "" {
		return fmt.Errorf("IMAP host and port are required")
	}
	if c.Username == "" {
		return fmt.Errorf("IMAP username is required")
	}
	if c.SMTPHost == "" || c.SMTPPort == "" {
		return fmt.Errorf("SMTP host and port are required")
	}
	return nil
}

// IMAPClient implements Client with an IMAP mailbox for reads and SMTP
// for sends. Each call opens and closes its own connection.
type IMAPClient struct {
	config  *IMAPConfig
	mailbox string
	sender  *SMTPSender
	logger  *slog.Logger
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(config *IMAPConfig, logger *slog.Logger) (*IMAPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid IMAP config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	mailbox := config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPClient{
		config:  config,
		mailbox: mailbox,
		sender: &SMTPSender{
			Addr:        net.JoinHostPort(config.SMTPHost, config.SMTPPort),
			Username:    config.Username,
			Password:    config.Password,
			ImplicitTLS: config.SMTPImplicitTLS,
		},
		logger: logger.With("provider", "imap"),
	}, nil
}

// connect dials, authenticates and selects the configured mailbox. The
// connection is closed if ctx ends first. The caller calls release.
func (c *IMAPClient) connect(ctx context.Context) (client *imapclient.Client, release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	addr := net.JoinHostPort(c.config.Host, c.config.Port)

	if c.config.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	release = func() {
		stop()
		_ = client.Logout().Wait()
	}

	if err := client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("authentication failed for %s: %w", c.config.Username, err)
	}

	if _, err := client.Select(c.mailbox, nil).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("selecting %s: %w", c.mailbox, err)
	}
	return client, release, nil
}

// FindLatest runs a TEXT search for query and returns the message with
// the newest internal date.
func (c *IMAPClient) FindLatest(ctx context.Context, query string) (*Candidate, error) {
	client, release, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	criteria := &imap.SearchCriteria{}
	if query != "" {
		criteria.Text = []string{query}
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	c.logger.Debug("Search finished", "query", query, "matches", len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
	})
	defer fetchCmd.Close()

	var candidates []Candidate
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         strconv.FormatUint(uint64(buf.UID), 10),
			ReceivedAt: buf.InternalDate,
		})
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching internal dates: %w", err)
	}

	return Latest(candidates), nil
}

// RawContent fetches BODY.PEEK[] so the message keeps its unseen flag.
func (c *IMAPClient) RawContent(ctx context.Context, cand *Candidate) ([]byte, error) {
	if cand == nil {
		return nil, fmt.Errorf("%w: no candidate", ErrRawFetchFailed)
	}
	uid, err := strconv.ParseUint(cand.ID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid UID %q", ErrRawFetchFailed, cand.ID)
	}

	client, release, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRawFetchFailed, err)
	}
	defer release()

	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("%w: message UID %d not found", ErrRawFetchFailed, uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: collecting message data: %w", ErrRawFetchFailed, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("%w: message UID %d has no body", ErrRawFetchFailed, uid)
	}
	return raw, nil
}

// Send relays raw over SMTP.
func (c *IMAPClient) Send(ctx context.Context, raw []byte) (*SentMessage, error) {
	return c.sender.Send(ctx, raw)
}

// Close cleans up resources
func (c *IMAPClient) Close() error {
	return nil
}

// SMTPSender submits raw messages to an SMTP relay. Envelope recipients
// come from the To, Cc and Bcc headers; Bcc is stripped before DATA.
// Connections are always encrypted, with STARTTLS unless ImplicitTLS is set.
type SMTPSender struct {
	Addr        string
	Username    string
	Password    string
	ImplicitTLS bool
	// TLSConfig overrides the default verification against system roots.
	TLSConfig *tls.Config
}

func (s *SMTPSender) auth() sasl.Client {
	if s.Username == "" || s.Password == "" {
		return nil
	}
	return sasl.NewPlainClient("", s.Username, s.Password)
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	if s.ImplicitTLS {
		return smtp.DialTLS(s.Addr, s.TLSConfig)
	}
	return smtp.DialStartTLS(s.Addr, s.TLSConfig)
}

// Send transmits raw to every envelope recipient.
func (s *SMTPSender) Send(ctx context.Context, raw []byte) (*SentMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	from, rcpt, data, err := envelope(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	client, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", ErrSendFailed, s.Addr, err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if auth := s.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return nil, fmt.Errorf("%w: authentication failed for %s: %w", ErrSendFailed, s.Username, err)
		}
	}
	if err := client.SendMail(from, rcpt, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	// DATA was accepted; a failed QUIT does not unsend it.
	_ = client.Quit()
	return &SentMessage{ID: messageID(raw), Raw: raw}, nil
}
