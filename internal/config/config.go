// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Adapter names accepted in the adapter setting.
const (
	AdapterMail     = "mail"
	AdapterSendmail = "sendmail"
	AdapterSMTP     = "smtp"
	AdapterSES      = "ses"
	AdapterGraph    = "graph"
	AdapterStdout   = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Adapter  string         `yaml:"adapter"`
	Sendmail SendmailConfig `yaml:"sendmail"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	SES      SESConfig      `yaml:"ses"`
	Graph    GraphConfig    `yaml:"graph"`
	Relay    RelayConfig    `yaml:"relay"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SendmailConfig configures local delivery.
type SendmailConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

// SMTPConfig holds the outbound SMTP session settings.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Secure   string        `yaml:"secure"`
	Auth     bool          `yaml:"auth"`
	Debug    bool          `yaml:"debug"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	Sender          string `yaml:"sender"`
	SaveToSentItems bool   `yaml:"save_to_sent_items"`
}

// RelayConfig holds the SMTP relay listener configuration.
type RelayConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	MaxRecipients  int    `yaml:"max_recipients"`
}

// TLSConfig holds TLS certificate file paths for the relay.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// LoadEnvFile copies variables from a .env file into the process
// environment. Variables that already have a non-empty value are kept.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	for k, v := range vars {
		if os.Getenv(k) != "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

// AdapterName returns the configured adapter, or infers one from the
// credentials present when none is set.
func (c *Config) AdapterName() string {
	if c.Adapter != "" {
		return c.Adapter
	}
	switch {
	case c.GraphConfigured():
		return AdapterGraph
	case c.SESConfigured():
		return AdapterSES
	case c.SMTP.Host != "":
		return AdapterSMTP
	default:
		return AdapterStdout
	}
}

// Validate checks that the selected adapter has what it needs.
func (c *Config) Validate() error {
	switch name := c.AdapterName(); name {
	case AdapterMail, AdapterSendmail, AdapterStdout:
	case AdapterSMTP:
		if c.SMTP.Host == "" {
			return errors.New("smtp adapter requires SMTP_HOST")
		}
	case AdapterSES:
		if !c.SESConfigured() {
			return errors.New("ses adapter requires SES_REGION and SES_SENDER")
		}
	case AdapterGraph:
		if !c.GraphConfigured() {
			return errors.New("graph adapter requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER")
		}
	default:
		return fmt.Errorf("unknown adapter %q", name)
	}
	return nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if the SES region and sender are set. Keys are
// optional because the AWS default credential chain may supply them.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// AuthEnabled returns true if both relay username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.Relay.Username != "" && c.Relay.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Sendmail.Path = "/usr/sbin/sendmail"
	c.SMTP.Port = 465
	c.SMTP.Secure = "ssl"
	c.SMTP.Auth = true
	c.SMTP.Timeout = 30 * time.Second
	c.Relay.Listen = ":2525"
	c.Relay.Hostname = "localhost"
	c.Relay.MaxMessageSize = defaultMaxMessageSize
	c.Relay.MaxRecipients = 100
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Adapter, "ADAPTER")
	c.Adapter = strings.ToLower(c.Adapter)

	setString(&c.Sendmail.Path, "SENDMAIL_PATH")
	if v := os.Getenv("SENDMAIL_ARGS"); v != "" {
		c.Sendmail.Args = strings.Fields(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.User, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.Secure, "SMTP_SECURE")
	setBool(&c.SMTP.Auth, "SMTP_AUTH")
	setBool(&c.SMTP.Debug, "SMTP_DEBUG")
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SMTP.Timeout = d
		}
	}

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")
	setBool(&c.Graph.SaveToSentItems, "GRAPH_SAVE_TO_SENT_ITEMS")

	setString(&c.Relay.Listen, "RELAY_LISTEN")
	setString(&c.Relay.Hostname, "RELAY_HOSTNAME")
	setString(&c.Relay.Username, "RELAY_USERNAME")
	setString(&c.Relay.Password, "RELAY_PASSWORD")
	if v := os.Getenv("RELAY_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Relay.MaxMessageSize = size
		}
	}
	setInt(&c.Relay.MaxRecipients, "RELAY_MAX_RECIPIENTS")

	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
