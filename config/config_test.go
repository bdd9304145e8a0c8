package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the credential file at an empty temp dir and clears auth overrides.
func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "max_config.json")
	t.Setenv("CREDENTIALS_FILE", path)
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "")
	t.Setenv("MAX_TOKEN", "")
	t.Setenv("MAX_USER_ID", "")
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_API_URL", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("AUTH_ADDR", "")
	t.Setenv("MATRIX_HOMESERVER", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxToken != "" || cfg.MaxUserID != "" {
		t.Errorf("expected empty credential, got %+v", cfg.Credential())
	}
	if cfg.MaxAPIURL != "https://api.max.ru" {
		t.Errorf("MaxAPIURL = %q", cfg.MaxAPIURL)
	}
	if cfg.AuthAddr != "localhost:8080" {
		t.Errorf("AuthAddr = %q", cfg.AuthAddr)
	}
	if cfg.PollInterval != 10*time.Second || cfg.MaxHTTPTimeout != 30*time.Second {
		t.Errorf("unexpected intervals: poll=%v http=%v", cfg.PollInterval, cfg.MaxHTTPTimeout)
	}
	if cfg.MatrixHomeserver != "https://matrix.example.com" {
		t.Errorf("MatrixHomeserver = %q", cfg.MatrixHomeserver)
	}
}

func TestLoadCredentialPrecedence(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte(`{"token":"F","user_id":"U1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_TOKEN", "E")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxToken != "E" || cfg.MaxUserID != "U1" {
		t.Errorf("got token=%q user_id=%q, want E/U1", cfg.MaxToken, cfg.MaxUserID)
	}
}

func TestLoadInvalidCredentialFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte(`[`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("expected parse error for malformed credential file")
	}
}

func TestLoadSettingsIgnoresCredentialFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte(`[`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if cfg.CredentialsFile != path || cfg.MaxToken != "" {
		t.Errorf("LoadSettings() = file %q token %q", cfg.CredentialsFile, cfg.MaxToken)
	}

	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "short")
	if _, err := LoadSettings(); err == nil {
		t.Error("expected error for invalid encryption key")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	isolate(t)
	t.Setenv("POLL_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid POLL_INTERVAL")
	}
	t.Setenv("POLL_INTERVAL", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero POLL_INTERVAL")
	}
}

func TestLoadInvalidEncryptionKey(t *testing.T) {
	isolate(t)
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "short")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid encryption key")
	}
}

func TestValidateMatrixReady(t *testing.T) {
	cfg := &Config{MatrixHomeserver: "https://hs", MatrixRoomID: "!room:hs"}
	if err := cfg.ValidateMatrixReady(); err == nil {
		t.Error("expected error without matrix credentials")
	}
	cfg.MatrixUsername, cfg.MatrixPassword = "bot", "pw"
	if err := cfg.ValidateMatrixReady(); err != nil {
		t.Errorf("password login should be valid: %v", err)
	}
	cfg = &Config{MatrixHomeserver: "https://hs", MatrixRoomID: "!room:hs", MatrixAccessToken: "t", MatrixUserID: "@bot:hs"}
	if err := cfg.ValidateMatrixReady(); err != nil {
		t.Errorf("token login should be valid: %v", err)
	}
}

func TestValidateTelegramReady(t *testing.T) {
	cfg := &Config{TelegramBotToken: "123:abc"}
	if err := cfg.ValidateTelegramReady(); err == nil {
		t.Error("expected error without chat id")
	}
	cfg.TelegramChatID = "-100123"
	if err := cfg.ValidateTelegramReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
