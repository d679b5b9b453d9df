package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Default newsletter templates. The date keeps consecutive issues
// distinct: templates that render the same every day are sent once and
// then reported as duplicate content on every later run.
const (
	DefaultSubject = "{{job}} for {{weekday}} {{date}}"
	DefaultBody    = "Hello,\r\n\r\nThis is the {{job}} for {{weekday}} {{date}}.\r\n"
)

// Load reads configuration from defaults, an optional config file and the
// environment, then validates what job needs.
func Load(v *viper.Viper, job string) (*Config, error) {
	setDefaults(v)
	if err := setupEnvBinding(v); err != nil {
		return nil, err
	}

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(job); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mail.provider", ProviderGmail)
	v.SetDefault("mail.gmail.user_email", "me")
	v.SetDefault("mail.gmail.max_results", 25)
	v.SetDefault("mail.gmail.request_timeout", "30s")
	v.SetDefault("mail.imap.port", "993")
	v.SetDefault("mail.imap.tls", true)
	v.SetDefault("mail.imap.mailbox", "INBOX")
	v.SetDefault("mail.imap.smtp_port", "587")
	v.SetDefault("mail.imap.smtp_implicit_tls", false)

	v.SetDefault("state.backend", BackendDropbox)
	v.SetDefault("state.sqlite_path", "./gmailer-state.db")

	v.SetDefault("forwarder.state_path", "/gmailer_state.json")
	v.SetDefault("forwarder.dedup", "separator")

	v.SetDefault("newsletter.job_name", JobNewsletter)
	v.SetDefault("newsletter.subject", DefaultSubject)
	v.SetDefault("newsletter.body", DefaultBody)
	v.SetDefault("newsletter.success", "New email has been sent")
	v.SetDefault("newsletter.state_path", "/newsletter_gmailer.json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("dry_run", false)
}

func setupEnvBinding(v *viper.Viper) error {
	v.SetEnvPrefix("GMAILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by the earlier deployments of both bots. The GMAILER_
	// name is listed first so it wins when both are set.
	legacyEnvBindings := map[string][]string{
		"mail.gmail.client_secret": {"KOTLIN_GMAILER_GMAIL_CLIENT_SECRET", "NEWSLETTER_GMAILER_GMAIL_CLIENT_SECRET"},
		"mail.gmail.access_token":  {"KOTLIN_GMAILER_GMAIL_ACCESS_TOKEN", "NEWSLETTER_GMAILER_GMAIL_ACCESS_TOKEN"},
		"mail.gmail.refresh_token": {"KOTLIN_GMAILER_GMAIL_REFRESH_TOKEN", "NEWSLETTER_GMAILER_GMAIL_REFRESH_TOKEN"},
		"dropbox.access_token":     {"KOTLIN_GMAILER_DROPBOX_ACCESS_TOKEN", "NEWSLETTER_GMAILER_DROPBOX_ACCESS_TOKEN"},

		"forwarder.query":        {"KOTLIN_GMAILER_GMAIL_QUERY"},
		"forwarder.run_on_days":  {"KOTLIN_GMAILER_RUN_ON_DAYS"},
		"forwarder.from_address": {"KOTLIN_GMAILER_FROM_ADDRESS"},
		"forwarder.from_name":    {"KOTLIN_GMAILER_FROM_FULLNAME"},
		"forwarder.to_address":   {"KOTLIN_GMAILER_TO_ADDRESS"},
		"forwarder.to_name":      {"KOTLIN_GMAILER_TO_FULLNAME"},
		"forwarder.bcc_address":  {"KOTLIN_GMAILER_BCC_ADDRESS"},

		"newsletter.job_name":       {"NEWSLETTER_GMAILER_JOB_NAME"},
		"newsletter.run_on_days":    {"NEWSLETTER_GMAILER_RUN_ON_DAYS"},
		"newsletter.run_after_time": {"NEWSLETTER_GMAILER_RUN_AFTER_TIME"},
		"newsletter.from_address":   {"NEWSLETTER_GMAILER_FROM_ADDRESS"},
		"newsletter.from_name":      {"NEWSLETTER_GMAILER_FROM_FULLNAME"},
		"newsletter.to_addresses":   {"NEWSLETTER_GMAILER_TO_ADDRESSES"},
		"newsletter.bcc_address":    {"NEWSLETTER_GMAILER_BCC_ADDRESS"},
		"newsletter.subject":        {"NEWSLETTER_GMAILER_SUBJECT_A"},
		"newsletter.body":           {"NEWSLETTER_GMAILER_BODY_A"},
	}

	for configKey, legacy := range legacyEnvBindings {
		envKey := "GMAILER_" + strings.ToUpper(strings.ReplaceAll(configKey, ".", "_"))
		if err := v.BindEnv(append([]string{configKey, envKey}, legacy...)...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", configKey, err)
		}
	}
	return nil
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.gmailer")
		v.SetConfigName("gmailer")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}
	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	var err error

	config.Mail.Provider = strings.ToLower(v.GetString("mail.provider"))
	config.Mail.Gmail.ClientID = v.GetString("mail.gmail.client_id")
	config.Mail.Gmail.ClientSecret = v.GetString("mail.gmail.client_secret")
	config.Mail.Gmail.AccessToken = v.GetString("mail.gmail.access_token")
	config.Mail.Gmail.RefreshToken = v.GetString("mail.gmail.refresh_token")
	config.Mail.Gmail.UserEmail = v.GetString("mail.gmail.user_email")
	config.Mail.Gmail.MaxResults = v.GetInt64("mail.gmail.max_results")
	config.Mail.Gmail.RequestTimeout, err = time.ParseDuration(v.GetString("mail.gmail.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid gmail request timeout: %w", err)
	}

	config.Mail.IMAP.Host = v.GetString("mail.imap.host")
	config.Mail.IMAP.Port = v.GetString("mail.imap.port")
	config.Mail.IMAP.Username = v.GetString("mail.imap.username")
	config.Mail.IMAP.Password = v.GetString("mail.imap.password")
	config.Mail.IMAP.TLS = v.GetBool("mail.imap.tls")
	config.Mail.IMAP.Mailbox = v.GetString("mail.imap.mailbox")
	config.Mail.IMAP.SMTPHost = v.GetString("mail.imap.smtp_host")
	config.Mail.IMAP.SMTPPort = v.GetString("mail.imap.smtp_port")
	config.Mail.IMAP.SMTPImplicitTLS = v.GetBool("mail.imap.smtp_implicit_tls")

	config.State.Backend = strings.ToLower(v.GetString("state.backend"))
	config.State.SQLitePath = v.GetString("state.sqlite_path")
	config.Dropbox.AccessToken = v.GetString("dropbox.access_token")

	config.Forwarder.Query = v.GetString("forwarder.query")
	config.Forwarder.RunOnDays, err = parseIntList(v.Get("forwarder.run_on_days"))
	if err != nil {
		return fmt.Errorf("invalid forwarder run_on_days: %w", err)
	}
	config.Forwarder.FromAddress = v.GetString("forwarder.from_address")
	config.Forwarder.FromName = v.GetString("forwarder.from_name")
	config.Forwarder.ToAddress = v.GetString("forwarder.to_address")
	config.Forwarder.ToName = v.GetString("forwarder.to_name")
	config.Forwarder.BccAddress = joinList(v.Get("forwarder.bcc_address"))
	config.Forwarder.StatePath = v.GetString("forwarder.state_path")
	config.Forwarder.Dedup = v.GetString("forwarder.dedup")

	config.Newsletter.JobName = v.GetString("newsletter.job_name")
	config.Newsletter.RunOnDays = parseStringList(v.Get("newsletter.run_on_days"))
	config.Newsletter.RunAfterTime = v.GetString("newsletter.run_after_time")
	config.Newsletter.FromAddress = v.GetString("newsletter.from_address")
	config.Newsletter.FromName = v.GetString("newsletter.from_name")
	config.Newsletter.ToAddresses = joinList(v.Get("newsletter.to_addresses"))
	config.Newsletter.BccAddress = joinList(v.Get("newsletter.bcc_address"))
	config.Newsletter.Subject = v.GetString("newsletter.subject")
	config.Newsletter.Body = v.GetString("newsletter.body")
	config.Newsletter.Success = v.GetString("newsletter.success")
	config.Newsletter.StatePath = v.GetString("newsletter.state_path")

	config.History.DBPath = v.GetString("history.db_path")
	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")
	config.DryRun = v.GetBool("dry_run")

	config.Timezone = v.GetString("timezone")
	config.Location = time.Local
	if config.Timezone != "" {
		config.Location, err = time.LoadLocation(config.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}

// parseStringList accepts a comma-separated string from the environment or
// a list from a config file.
func parseStringList(value any) []string {
	switch v := value.(type) {
	case nil:
		return []string{}
	case string:
		return parseStringSlice(v)
	default:
		items := cast.ToStringSlice(v)
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
}

func parseIntList(value any) ([]int, error) {
	var days []int
	for _, s := range parseStringList(value) {
		d, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		days = append(days, d)
	}
	return days, nil
}

func joinList(value any) string {
	return strings.Join(parseStringList(value), ", ")
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(s string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
