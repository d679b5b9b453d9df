package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient implements Client for the Gmail API
type GmailClient struct {
	service *gmail.Service
	userID  string
	config  *GmailConfig
	logger  *slog.Logger
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID string
	// ClientSecret is either the bare secret or the downloaded
	// client_secret.json document.
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserEmail    string

	// Request limits
	MaxResults     int64
	RequestTimeout time.Duration
}

// Validate reports the first missing credential.
func (c *GmailConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if !isCredentialsJSON(c.ClientSecret) && c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.RefreshToken == "" && c.AccessToken == "" {
		return fmt.Errorf("access token or refresh token is required")
	}
	return nil
}

func isCredentialsJSON(secret string) bool {
	return strings.HasPrefix(strings.TrimSpace(secret), "{")
}

func (c *GmailConfig) oauthConfig() (*oauth2.Config, error) {
	scopes := []string{gmail.GmailReadonlyScope, gmail.GmailSendScope}
	if isCredentialsJSON(c.ClientSecret) {
		cfg, err := google.ConfigFromJSON([]byte(c.ClientSecret), scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client secret JSON: %w", err)
		}
		return cfg, nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}, nil
}

// NewGmailClient creates a Gmail API client and verifies the connection.
// Extra options are applied after the authenticated HTTP client.
func NewGmailClient(ctx context.Context, config *GmailConfig, logger *slog.Logger, opts ...option.ClientOption) (*GmailClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Gmail config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	oauthConfig, err := config.oauthConfig()
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  config.AccessToken,
		RefreshToken: config.RefreshToken,
		TokenType:    "Bearer",
	}

	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := "me"
	if config.UserEmail != "" {
		userID = config.UserEmail
	}

	client := &GmailClient{
		service: service,
		userID:  userID,
		config:  config,
		logger:  logger.With("provider", "gmail"),
	}

	if err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("Gmail client health check failed: %w", err)
	}

	return client, nil
}

func (g *GmailClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, g.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// FindLatest lists messages matching query and returns the one with the
// newest internal date.
func (g *GmailClient) FindLatest(ctx context.Context, query string) (*Candidate, error) {
	g.logger.Debug("Searching Gmail", "query", query)

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	req := g.service.Users.Messages.List(g.userID).Q(query)
	if g.config.MaxResults > 0 {
		req = req.MaxResults(g.config.MaxResults)
	}

	resp, err := req.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Gmail search failed: %w", err)
	}

	g.logger.Debug("Search finished", "matches", len(resp.Messages))

	var candidates []Candidate
	for _, msg := range resp.Messages {
		meta, err := g.service.Users.Messages.Get(g.userID, msg.Id).Format("minimal").Context(ctx).Do()
		if err != nil {
			g.logger.Warn("Failed to get message metadata", "id", msg.Id, "error", err)
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         meta.Id,
			ThreadID:   meta.ThreadId,
			ReceivedAt: receivedAt(meta.InternalDate),
		})
	}

	if len(resp.Messages) > 0 && len(candidates) == 0 {
		return nil, fmt.Errorf("Gmail search matched %d messages but none could be read", len(resp.Messages))
	}

	return Latest(candidates), nil
}

// RawContent retrieves the message in raw format and decodes it.
func (g *GmailClient) RawContent(ctx context.Context, c *Candidate) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no candidate", ErrRawFetchFailed)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	msg, err := g.service.Users.Messages.Get(g.userID, c.ID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", ErrRawFetchFailed, c.ID, err)
	}
	if msg.Raw == "" {
		return nil, fmt.Errorf("%w: message %s has no raw payload", ErrRawFetchFailed, c.ID)
	}

	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", ErrRawFetchFailed, c.ID, err)
	}
	return raw, nil
}

// decodeRaw accepts web-safe base64 with or without padding.
func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Send submits raw through users.messages.send.
func (g *GmailClient) Send(ctx context.Context, raw []byte) (*SentMessage, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := g.service.Users.Messages.Send(g.userID, msg).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	g.logger.Info("Message sent", "id", sent.Id)
	return &SentMessage{ID: sent.Id, Raw: raw}, nil
}

// HealthCheck verifies the Gmail connection is working
func (g *GmailClient) HealthCheck(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	g.logger.Debug("Connected to Gmail account", "email", profile.EmailAddress)
	return nil
}

// Close cleans up resources
func (g *GmailClient) Close() error {
	// Gmail API client doesn't require explicit cleanup
	return nil
}
