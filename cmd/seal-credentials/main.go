// Package main provides a CLI tool to seal a plaintext Max token in the
// credential file with AES-256-GCM.
//
// Usage:
//
//	seal-credentials [--dry-run] [--file PATH]
//
// Environment Variables:
//
//	CREDENTIALS_FILE: credential file (default max_config.json)
//	CREDENTIALS_ENCRYPTION_KEY: Base64-encoded 32-byte key (required)
//
// Example:
//
//	export CREDENTIALS_ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./seal-credentials --dry-run
//	./seal-credentials
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/crypto"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Report what would be sealed without writing")
	file := flag.String("file", os.Getenv("CREDENTIALS_FILE"), "Credential file (default max_config.json)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	key := os.Getenv("CREDENTIALS_ENCRYPTION_KEY")
	if key == "" {
		slog.Error("CREDENTIALS_ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	store := credentials.NewStore(*file, enc)
	sealed, err := sealCredentials(store, *dryRun)
	if err != nil {
		slog.Error("sealing failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("done", slog.String("file", store.Path), slog.Bool("sealed", sealed), slog.Bool("dry_run", *dryRun))
}

// sealCredentials rewrites the store's file with a sealed token when the
// token on disk is still plaintext. It reports whether a plaintext token was
// found.
func sealCredentials(store *credentials.Store, dryRun bool) (bool, error) {
	b, err := os.ReadFile(store.Path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no credential file found", slog.String("file", store.Path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", store.Path, err)
	}
	var raw credentials.Credential
	if err := json.Unmarshal(b, &raw); err != nil {
		return false, fmt.Errorf("parse %s: %w", store.Path, err)
	}
	if raw.Token == "" || crypto.IsSealed(raw.Token) {
		slog.Info("no plaintext token to seal")
		return false, nil
	}
	if dryRun {
		slog.Info("would seal token (dry-run)", slog.String("user_id", raw.UserID))
		return true, nil
	}
	if err := store.Save(raw); err != nil {
		return false, fmt.Errorf("save sealed credential: %w", err)
	}
	return true, nil
}
