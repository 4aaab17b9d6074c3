package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  "agent": {
    "name": "sam-agent",
    "description": "Sam's scheduling assistant",
    "user": "Sam",
    "user_email": "sam@example.com",
    "url": "http://sam.example.com:8080",
    "timezone": "America/New_York",
    "data_dir": "/tmp/secretary-test"
  },
  "peers": ["http://alex.example.com:8080"],
  "engine": {
    "api_key": "sk-test-key",
    "model": "gpt-4o"
  },
  "mail": {
    "address": "sam.assistant@example.com",
    "password": "app-password",
    "smtp_host": "smtp.example.com",
    "smtp_port": 587,
    "imap_host": "imap.example.com",
    "imap_port": 993
  },
  "api": {
    "host": "0.0.0.0",
    "port": 8080,
    "api_key": "operator-key"
  }
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(validJSON), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Name != "sam-agent" {
		t.Errorf("agent.name = %q", cfg.Agent.Name)
	}
	if cfg.Agent.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", cfg.Agent.Timezone)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0] != "http://alex.example.com:8080" {
		t.Errorf("peers = %v", cfg.Peers)
	}
	if cfg.Mail == nil || cfg.Mail.SMTPHost != "smtp.example.com" {
		t.Errorf("mail = %+v", cfg.Mail)
	}
	if cfg.Calendar.ID != "primary" {
		t.Errorf("calendar id default = %q", cfg.Calendar.ID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"agent": {"data_dir": "/tmp"}}`), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "agent.name is required") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "agent.user is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadIncompleteMail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{
	  "agent": {"name": "a", "user": "A", "data_dir": "/tmp"},
	  "mail": {"address": "a@x.com"}
	}`), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for incomplete mail config")
	}
	if !strings.Contains(err.Error(), "mail.smtp_host is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SECRETARY_AGENT_NAME", "sam-agent")
	t.Setenv("SECRETARY_USER", "Sam")
	t.Setenv("SECRETARY_USER_EMAIL", "sam@example.com")
	t.Setenv("SECRETARY_DATA_DIR", t.TempDir())
	t.Setenv("SECRETARY_PEERS", "http://a.example.com, http://b.example.com")
	t.Setenv("SECRETARY_MAIL_ADDRESS", "assistant@example.com")
	t.Setenv("SECRETARY_MAIL_PASSWORD", "pw")
	t.Setenv("SECRETARY_SMTP_HOST", "smtp.example.com")
	t.Setenv("SECRETARY_IMAP_HOST", "imap.example.com")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Agent.User != "Sam" {
		t.Errorf("user = %q", cfg.Agent.User)
	}
	if len(cfg.Peers) != 2 {
		t.Errorf("peers = %v", cfg.Peers)
	}
	if cfg.Mail.SMTPPort != 587 || cfg.Mail.IMAPPort != 993 {
		t.Errorf("mail ports = %d/%d", cfg.Mail.SMTPPort, cfg.Mail.IMAPPort)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api port = %d", cfg.API.Port)
	}
	if cfg.Agent.Timezone != "UTC" {
		t.Errorf("timezone default = %q", cfg.Agent.Timezone)
	}
}
