// Package config loads environment variables and the persisted Max credential
// into a typed Config used across the bridge.
// Precedence is defaults, then the credential file, then the environment.
// Destination backends are optional; use ValidateMatrixReady and
// ValidateTelegramReady before wiring them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/crypto"
)

type Config struct {
	// Max source platform
	MaxToken       string
	MaxUserID      string
	MaxAPIURL      string
	MaxHTTPTimeout time.Duration
	MaxStream      bool
	MaxWSURL       string

	// Credential file
	CredentialsFile string
	CredentialsKey  string

	// Local auth capture
	AuthAddr     string
	AuthPagePath string
	AuthTimeout  time.Duration

	// Matrix
	MatrixHomeserver  string
	MatrixUsername    string
	MatrixPassword    string
	MatrixAccessToken string
	MatrixUserID      string
	MatrixRoomID      string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string

	// Bridge loop
	PollInterval time.Duration
	MetricsAddr  string
}

// Load reads environment variables, applies defaults and merges the credential
// file. A missing credential file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	store, err := cfg.CredentialStore()
	if err != nil {
		return nil, err
	}
	cred, err := credentials.NewResolver(store).Resolve()
	if err != nil {
		return nil, err
	}
	cfg.MaxToken = cred.Token
	cfg.MaxUserID = cred.UserID

	return cfg, nil
}

// LoadSettings is Load without reading the credential file, for tools that
// replace the credential and must start even when the file is corrupt.
// The encryption key is still validated.
func LoadSettings() (*Config, error) {
	cfg := &Config{}

	cfg.MaxAPIURL = strings.TrimRight(envOr("MAX_API_URL", "https://api.max.ru"), "/")
	cfg.MaxWSURL = envOr("MAX_WS_URL", "wss://max.ru/ws")
	cfg.MaxStream = os.Getenv("MAX_STREAM") == "1"

	cfg.CredentialsFile = envOr("CREDENTIALS_FILE", credentials.DefaultPath)
	cfg.CredentialsKey = os.Getenv("CREDENTIALS_ENCRYPTION_KEY")

	cfg.AuthAddr = envOr("AUTH_ADDR", "localhost:8080")
	cfg.AuthPagePath = envOr("AUTH_PAGE_PATH", "auth.html")

	cfg.MatrixHomeserver = envOr("MATRIX_HOMESERVER", "https://matrix.example.com")
	cfg.MatrixUsername = os.Getenv("MATRIX_USERNAME")
	cfg.MatrixPassword = os.Getenv("MATRIX_PASSWORD")
	cfg.MatrixAccessToken = os.Getenv("MATRIX_ACCESS_TOKEN")
	cfg.MatrixUserID = os.Getenv("MATRIX_USER_ID")
	cfg.MatrixRoomID = os.Getenv("MATRIX_ROOM_ID")

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	var err error
	if cfg.MaxHTTPTimeout, err = durationEnv("MAX_HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AuthTimeout, err = durationEnv("AUTH_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive")
	}
	if _, err := cfg.CredentialStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CredentialStore returns the store backing the Max credential, sealing tokens
// when CREDENTIALS_ENCRYPTION_KEY is set.
func (c *Config) CredentialStore() (*credentials.Store, error) {
	if c.CredentialsKey == "" {
		return credentials.NewStore(c.CredentialsFile, nil), nil
	}
	enc, err := crypto.NewAESEncryptor(c.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("invalid CREDENTIALS_ENCRYPTION_KEY: %w", err)
	}
	return credentials.NewStore(c.CredentialsFile, enc), nil
}

// Credential returns the merged Max credential.
func (c *Config) Credential() credentials.Credential {
	return credentials.Credential{Token: c.MaxToken, UserID: c.MaxUserID}
}

// ValidateMatrixReady checks the fields required to relay into Matrix.
func (c *Config) ValidateMatrixReady() error {
	if c.MatrixHomeserver == "" || c.MatrixRoomID == "" {
		return fmt.Errorf("missing matrix env: require MATRIX_HOMESERVER, MATRIX_ROOM_ID")
	}
	hasPassword := c.MatrixUsername != "" && c.MatrixPassword != ""
	hasToken := c.MatrixAccessToken != "" && c.MatrixUserID != ""
	if !hasPassword && !hasToken {
		return fmt.Errorf("missing matrix env: require MATRIX_USERNAME+MATRIX_PASSWORD or MATRIX_ACCESS_TOKEN+MATRIX_USER_ID")
	}
	return nil
}

// ValidateTelegramReady checks the fields required to relay into Telegram.
func (c *Config) ValidateTelegramReady() error {
	if c.TelegramBotToken == "" || c.TelegramChatID == "" {
		return fmt.Errorf("missing telegram env: require TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// durationEnv parses a Go duration; "0" is allowed and means disabled.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration, e.g. 30s): %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}
