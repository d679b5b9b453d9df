package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"gmailer-bot/internal/config"
	"gmailer-bot/internal/mail"
	"gmailer-bot/internal/state"
)

// fileBackend is a state FileClient plus whatever releases it.
type fileBackend interface {
	state.FileClient
	Close() error
}

// Factories for the external services. Tests replace them.
var (
	newMailClient  = createMailClient
	newFileBackend = createFileBackend
)

// createMailClient creates and configures the email client
func createMailClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mail.Client, error) {
	switch cfg.Mail.Provider {
	case config.ProviderGmail:
		logger.Info("Using Gmail API with OAuth2 authentication")
		client, err := mail.NewGmailClient(ctx, cfg.GmailClientConfig(), logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderIMAP:
		logger.Info("Using IMAP mailbox with SMTP submission", "host", cfg.Mail.IMAP.Host)
		client, err := mail.NewIMAPClient(cfg.IMAPClientConfig(), logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("no valid email provider configured")
	}
}

// lazyMailClient builds the mail client on first use, so runs that are
// declined before reaching the mailbox never contact the provider.
type lazyMailClient struct {
	cfg    *config.Config
	logger *slog.Logger

	client mail.Client
	err    error
	built  bool
}

func (l *lazyMailClient) get(ctx context.Context) (mail.Client, error) {
	if !l.built {
		l.built = true
		l.client, l.err = newMailClient(ctx, l.cfg, l.logger)
		if l.err != nil {
			l.err = fmt.Errorf("failed to create email client: %w", l.err)
		}
	}
	return l.client, l.err
}

// Err is the construction error, if the client was needed and could not
// be built.
func (l *lazyMailClient) Err() error { return l.err }

func (l *lazyMailClient) FindLatest(ctx context.Context, query string) (*mail.Candidate, error) {
	client, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return client.FindLatest(ctx, query)
}

func (l *lazyMailClient) RawContent(ctx context.Context, c *mail.Candidate) ([]byte, error) {
	client, err := l.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mail.ErrRawFetchFailed, err)
	}
	return client.RawContent(ctx, c)
}

func (l *lazyMailClient) Send(ctx context.Context, raw []byte) (*mail.SentMessage, error) {
	client, err := l.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mail.ErrSendFailed, err)
	}
	return client.Send(ctx, raw)
}

func (l *lazyMailClient) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

type dropboxBackend struct {
	*state.DropboxClient
}

func (dropboxBackend) Close() error { return nil }

// createFileBackend opens the configured state backend.
func createFileBackend(cfg *config.Config, logger *slog.Logger) (fileBackend, error) {
	switch cfg.State.Backend {
	case config.BackendDropbox:
		client, err := state.NewDropboxClient(cfg.Dropbox.AccessToken, logger)
		if err != nil {
			return nil, err
		}
		return dropboxBackend{client}, nil
	case config.BackendSQLite:
		db, err := state.OpenSQLite(cfg.State.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("no valid state backend configured")
	}
}

// openHistory opens the run history database, or returns nil when none is
// configured.
func openHistory(cfg *config.Config) (*state.SQLite, error) {
	if cfg.History.DBPath == "" {
		return nil, nil
	}
	db, err := state.OpenSQLite(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return db, nil
}
