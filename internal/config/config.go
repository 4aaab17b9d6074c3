// Package config loads and validates the daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
)

// Config is the top-level daemon configuration.
type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Peers    []string       `json:"peers,omitempty"`
	Engine   EngineConfig   `json:"engine"`
	Calendar CalendarConfig `json:"calendar"`
	Mail     *mail.Config   `json:"mail,omitempty"`
	API      APIConfig      `json:"api"`
}

// AgentConfig identifies the person this daemon schedules for.
type AgentConfig struct {
	Name        string `json:"name"`         // agent name, e.g. "sam-agent"
	Description string `json:"description,omitempty"`
	User        string `json:"user"`       // person's name, e.g. "Sam"
	UserEmail   string `json:"user_email"` // person's email address
	URL         string `json:"url"`        // public base URL other agents reach us at
	Timezone    string `json:"timezone"`   // IANA name, e.g. "America/New_York"
	DataDir     string `json:"data_dir"`
}

// EngineConfig holds reasoning-engine settings.
type EngineConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// CalendarConfig selects the calendar backing store.
type CalendarConfig struct {
	ID string `json:"id"` // calendar identifier, default "primary"
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with SECRETARY_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Agent: AgentConfig{
			Name:        os.Getenv("SECRETARY_AGENT_NAME"),
			Description: os.Getenv("SECRETARY_AGENT_DESCRIPTION"),
			User:        os.Getenv("SECRETARY_USER"),
			UserEmail:   os.Getenv("SECRETARY_USER_EMAIL"),
			URL:         os.Getenv("SECRETARY_AGENT_URL"),
			Timezone:    getenv("SECRETARY_TIMEZONE", "UTC"),
			DataDir:     getenv("SECRETARY_DATA_DIR", "/data"),
		},
		Engine: EngineConfig{
			APIKey:  os.Getenv("SECRETARY_OPENAI_API_KEY"),
			BaseURL: os.Getenv("SECRETARY_OPENAI_BASE_URL"),
			Model:   getenv("SECRETARY_MODEL", "gpt-4o"),
		},
		API: APIConfig{
			Host: getenv("SECRETARY_API_HOST", "0.0.0.0"),
			Port: getenvInt("SECRETARY_API_PORT", 8080),
			Key:  os.Getenv("SECRETARY_API_KEY"),
		},
	}

	if peers := os.Getenv("SECRETARY_PEERS"); peers != "" {
		for _, p := range strings.Split(peers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Peers = append(cfg.Peers, p)
			}
		}
	}

	if addr := os.Getenv("SECRETARY_MAIL_ADDRESS"); addr != "" {
		cfg.Mail = &mail.Config{
			Address:  addr,
			Password: os.Getenv("SECRETARY_MAIL_PASSWORD"),
			SMTPHost: os.Getenv("SECRETARY_SMTP_HOST"),
			SMTPPort: getenvInt("SECRETARY_SMTP_PORT", 587),
			IMAPHost: os.Getenv("SECRETARY_IMAP_HOST"),
			IMAPPort: getenvInt("SECRETARY_IMAP_PORT", 993),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.Timezone == "" {
		c.Agent.Timezone = "UTC"
	}
	if c.Calendar.ID == "" {
		c.Calendar.ID = "primary"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Engine.Model == "" {
		c.Engine.Model = "gpt-4o"
	}
	if c.Mail != nil {
		if c.Mail.SMTPPort == 0 {
			c.Mail.SMTPPort = 587
		}
		if c.Mail.IMAPPort == 0 {
			c.Mail.IMAPPort = 993
		}
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.Name == "" {
		errs = append(errs, "agent.name is required")
	}
	if c.Agent.User == "" {
		errs = append(errs, "agent.user is required")
	}
	if c.Agent.DataDir == "" {
		errs = append(errs, "agent.data_dir is required")
	}

	if c.Mail != nil {
		if c.Mail.Address == "" {
			errs = append(errs, "mail.address is required")
		}
		if c.Mail.Password == "" {
			errs = append(errs, "mail.password is required")
		}
		if c.Mail.SMTPHost == "" {
			errs = append(errs, "mail.smtp_host is required")
		}
		if c.Mail.IMAPHost == "" {
			errs = append(errs, "mail.imap_host is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
