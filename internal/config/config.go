package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"gmailer-bot/internal/dedup"
	"gmailer-bot/internal/jobs/forwarder"
	"gmailer-bot/internal/jobs/newsletter"
	"gmailer-bot/internal/mail"
	"gmailer-bot/internal/schedule"
)

// Mail providers
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// State backends
const (
	BackendDropbox = "dropbox"
	BackendSQLite  = "sqlite"
)

// Scopes accepted by Load. An empty scope checks nothing.
const (
	JobForward    = forwarder.Name
	JobNewsletter = newsletter.DefaultName
	// ScopeState checks only the state backend.
	ScopeState = "state"
)

// Config holds everything a single invocation reads from configuration.
type Config struct {
	Mail       MailConfig       `json:"mail"`
	State      StateConfig      `json:"state"`
	Dropbox    DropboxConfig    `json:"dropbox"`
	Forwarder  ForwarderConfig  `json:"forwarder"`
	Newsletter NewsletterConfig `json:"newsletter"`
	History    HistoryConfig    `json:"history"`
	Log        LogConfig        `json:"log"`

	// Timezone names the location schedule windows are evaluated in.
	// Empty means the host's local time.
	Timezone string         `json:"timezone"`
	Location *time.Location `json:"-"`

	DryRun bool `json:"dry_run"`
}

// MailConfig selects and configures the mail provider
type MailConfig struct {
	Provider string      `json:"provider"`
	Gmail    GmailConfig `json:"gmail"`
	IMAP     IMAPConfig  `json:"imap"`
}

// GmailConfig holds Gmail API credentials and request limits
type GmailConfig struct {
	ClientID       string        `json:"client_id"`
	ClientSecret   string        `json:"client_secret"`
	AccessToken    string        `json:"access_token"`
	RefreshToken   string        `json:"refresh_token"`
	UserEmail      string        `json:"user_email"`
	MaxResults     int64         `json:"max_results"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// IMAPConfig holds the mailbox and submission server settings
type IMAPConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	TLS             bool   `json:"tls"`
	Mailbox         string `json:"mailbox"`
	SMTPHost        string `json:"smtp_host"`
	SMTPPort        string `json:"smtp_port"`
	SMTPImplicitTLS bool   `json:"smtp_implicit_tls"`
}

// StateConfig selects where job state files live
type StateConfig struct {
	Backend    string `json:"backend"`
	SQLitePath string `json:"sqlite_path"`
}

// DropboxConfig holds the Dropbox API token
type DropboxConfig struct {
	AccessToken string `json:"access_token"`
}

// ForwarderConfig configures the forward job
type ForwarderConfig struct {
	Query       string `json:"query"`
	RunOnDays   []int  `json:"run_on_days"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	ToAddress   string `json:"to_address"`
	ToName      string `json:"to_name"`
	BccAddress  string `json:"bcc_address"`
	StatePath   string `json:"state_path"`
	Dedup       string `json:"dedup"`
}

// NewsletterConfig configures the newsletter job
type NewsletterConfig struct {
	JobName      string   `json:"job_name"`
	RunOnDays    []string `json:"run_on_days"`
	RunAfterTime string   `json:"run_after_time"`
	FromAddress  string   `json:"from_address"`
	FromName     string   `json:"from_name"`
	ToAddresses  string   `json:"to_addresses"`
	BccAddress   string   `json:"bcc_address"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Success      string   `json:"success"`
	StatePath    string   `json:"state_path"`
}

// HistoryConfig enables the local run history when DBPath is set
type HistoryConfig struct {
	DBPath string `json:"db_path"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// missing collects required keys that have no value.
type missing []string

func (m *missing) need(key, value string) {
	if strings.TrimSpace(value) == "" {
		*m = append(*m, key)
	}
}

func (m missing) err() error {
	if len(m) == 0 {
		return nil
	}
	return fmt.Errorf("config values required for %s but not found", strings.Join(m, ", "))
}

// validate checks every key the selected scope needs and reports all of
// the absent ones together.
func (c *Config) validate(job string) error {
	var m missing

	switch job {
	case JobForward, JobNewsletter, ScopeState, "":
	default:
		return fmt.Errorf("unknown job %q", job)
	}

	if job == JobForward || job == JobNewsletter {
		switch c.Mail.Provider {
		case ProviderGmail:
			if !strings.HasPrefix(strings.TrimSpace(c.Mail.Gmail.ClientSecret), "{") {
				m.need("mail.gmail.client_id", c.Mail.Gmail.ClientID)
			}
			m.need("mail.gmail.client_secret", c.Mail.Gmail.ClientSecret)
			m.need("mail.gmail.refresh_token", c.Mail.Gmail.RefreshToken+c.Mail.Gmail.AccessToken)
		case ProviderIMAP:
			m.need("mail.imap.host", c.Mail.IMAP.Host)
			m.need("mail.imap.username", c.Mail.IMAP.Username)
			m.need("mail.imap.password", c.Mail.IMAP.Password)
			m.need("mail.imap.smtp_host", c.Mail.IMAP.SMTPHost)
		default:
			return fmt.Errorf("invalid mail provider %q (expected %s or %s)", c.Mail.Provider, ProviderGmail, ProviderIMAP)
		}
	}

	if job != "" {
		switch c.State.Backend {
		case BackendDropbox:
			m.need("dropbox.access_token", c.Dropbox.AccessToken)
		case BackendSQLite:
			m.need("state.sqlite_path", c.State.SQLitePath)
		default:
			return fmt.Errorf("invalid state backend %q (expected %s or %s)", c.State.Backend, BackendDropbox, BackendSQLite)
		}
	}

	switch job {
	case JobForward:
		f := c.Forwarder
		m.need("forwarder.query", f.Query)
		if len(f.RunOnDays) == 0 {
			m = append(m, "forwarder.run_on_days")
		}
		m.need("forwarder.from_address", f.FromAddress)
		m.need("forwarder.from_name", f.FromName)
		m.need("forwarder.to_address", f.ToAddress)
		m.need("forwarder.to_name", f.ToName)
		m.need("forwarder.bcc_address", f.BccAddress)
		m.need("forwarder.state_path", f.StatePath)
	case JobNewsletter:
		n := c.Newsletter
		if len(n.RunOnDays) == 0 {
			m = append(m, "newsletter.run_on_days")
		}
		m.need("newsletter.run_after_time", n.RunAfterTime)
		m.need("newsletter.from_address", n.FromAddress)
		m.need("newsletter.from_name", n.FromName)
		m.need("newsletter.to_addresses", n.ToAddresses)
		m.need("newsletter.bcc_address", n.BccAddress)
		m.need("newsletter.subject", n.Subject)
		m.need("newsletter.body", n.Body)
		m.need("newsletter.state_path", n.StatePath)
	}

	if err := m.err(); err != nil {
		return err
	}

	switch job {
	case JobForward:
		_, err := c.ForwarderJob()
		return err
	case JobNewsletter:
		_, err := c.NewsletterJob()
		return err
	}
	return nil
}

// ForwarderJob converts the forwarder section into the job's config.
func (c *Config) ForwarderJob() (forwarder.Config, error) {
	f := c.Forwarder
	var invalid []string

	for _, d := range f.RunOnDays {
		if d < 1 || d > 31 {
			invalid = append(invalid, fmt.Sprintf("forwarder.run_on_days: day %d out of range 1-31", d))
		}
	}

	from, err := mail.ParseAddress(f.FromAddress, f.FromName)
	if err != nil {
		invalid = append(invalid, "forwarder.from_address: "+err.Error())
	}
	to, err := mail.ParseAddress(f.ToAddress, f.ToName)
	if err != nil {
		invalid = append(invalid, "forwarder.to_address: "+err.Error())
	}
	bcc, err := mail.ParseAddressList(f.BccAddress)
	if err != nil {
		invalid = append(invalid, "forwarder.bcc_address: "+err.Error())
	}

	normalizer, ok := dedup.ByName(f.Dedup)
	if !ok {
		invalid = append(invalid, fmt.Sprintf("forwarder.dedup: unknown normalizer %q", f.Dedup))
	}

	if len(invalid) > 0 {
		return forwarder.Config{}, fmt.Errorf("invalid config values: %s", strings.Join(invalid, "; "))
	}

	return forwarder.Config{
		Query: f.Query,
		Days:  schedule.DaysOfMonth(f.RunOnDays),
		Recipients: mail.Recipients{
			From: from,
			To:   []*gomail.Address{to},
			Bcc:  bcc,
		},
		Normalizer: normalizer,
		DryRun:     c.DryRun,
	}, nil
}

// NewsletterJob converts the newsletter section into the job's config.
func (c *Config) NewsletterJob() (newsletter.Config, error) {
	n := c.Newsletter
	var invalid []string

	days := make([]time.Weekday, 0, len(n.RunOnDays))
	for _, s := range n.RunOnDays {
		d, err := schedule.ParseWeekday(s)
		if err != nil {
			invalid = append(invalid, "newsletter.run_on_days: "+err.Error())
			continue
		}
		days = append(days, d)
	}

	after, err := schedule.ParseTimeOfDay(n.RunAfterTime)
	if err != nil {
		invalid = append(invalid, "newsletter.run_after_time: "+err.Error())
	}

	from, err := mail.ParseAddress(n.FromAddress, n.FromName)
	if err != nil {
		invalid = append(invalid, "newsletter.from_address: "+err.Error())
	}
	to, err := mail.ParseAddressList(n.ToAddresses)
	if err != nil {
		invalid = append(invalid, "newsletter.to_addresses: "+err.Error())
	}
	bcc, err := mail.ParseAddressList(n.BccAddress)
	if err != nil {
		invalid = append(invalid, "newsletter.bcc_address: "+err.Error())
	}

	if len(invalid) > 0 {
		return newsletter.Config{}, fmt.Errorf("invalid config values: %s", strings.Join(invalid, "; "))
	}

	return newsletter.Config{
		Name:       n.JobName,
		Window:     schedule.Weekly{Days: days, After: after},
		Recipients: mail.Recipients{From: from, To: to, Bcc: bcc},
		Templates: newsletter.Templates{
			Subject: n.Subject,
			Body:    n.Body,
			Success: n.Success,
		},
		DryRun: c.DryRun,
	}, nil
}

// GmailClientConfig maps the gmail section onto the mail client's config.
func (c *Config) GmailClientConfig() *mail.GmailConfig {
	g := c.Mail.Gmail
	return &mail.GmailConfig{
		ClientID:       g.ClientID,
		ClientSecret:   g.ClientSecret,
		RefreshToken:   g.RefreshToken,
		AccessToken:    g.AccessToken,
		UserEmail:      g.UserEmail,
		MaxResults:     g.MaxResults,
		RequestTimeout: g.RequestTimeout,
	}
}

// IMAPClientConfig maps the imap section onto the mail client's config.
func (c *Config) IMAPClientConfig() *mail.IMAPConfig {
	i := c.Mail.IMAP
	return &mail.IMAPConfig{
		Host:            i.Host,
		Port:            i.Port,
		Username:        i.Username,
		Password:        i.Password,
		TLS:             i.TLS,
		Mailbox:         i.Mailbox,
		SMTPHost:        i.SMTPHost,
		SMTPPort:        i.SMTPPort,
		SMTPImplicitTLS: i.SMTPImplicitTLS,
	}
}

// StatePath returns the state file path for a job.
func (c *Config) StatePath(job string) string {
	if job == JobNewsletter {
		return c.Newsletter.StatePath
	}
	return c.Forwarder.StatePath
}

// ToJSON returns the configuration with credentials redacted.
func (c *Config) ToJSON() (string, error) {
	safe := *c
	safe.Mail.Gmail.ClientSecret = redact(safe.Mail.Gmail.ClientSecret)
	safe.Mail.Gmail.AccessToken = redact(safe.Mail.Gmail.AccessToken)
	safe.Mail.Gmail.RefreshToken = redact(safe.Mail.Gmail.RefreshToken)
	safe.Mail.IMAP.Password = redact(safe.Mail.IMAP.Password)
	safe.Dropbox.AccessToken = redact(safe.Dropbox.AccessToken)

	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
