// Package credentials persists the Max access credential in a flat JSON file
// and resolves it against environment overrides.
//
// The file holds exactly {"token": "...", "user_id": "..."} and is always
// rewritten wholesale. A missing file reads as an empty credential.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/onnwee/max-bridge/crypto"
)

// DefaultPath is the credential file name, relative to the working directory.
const DefaultPath = "max_config.json"

// Environment overrides for the stored credential.
const (
	EnvToken  = "MAX_TOKEN"
	EnvUserID = "MAX_USER_ID"
)

// Credential is the token/user pair issued by the Max authorization page.
type Credential struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Valid reports whether both fields are present.
func (c Credential) Valid() bool { return c.Token != "" && c.UserID != "" }

// Store reads and writes the credential file.
type Store struct {
	Path string
	// Encryptor, when set, seals the token before it is written.
	Encryptor crypto.Encryptor
}

// NewStore returns a Store for path, falling back to DefaultPath.
func NewStore(path string, enc crypto.Encryptor) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{Path: path, Encryptor: enc}
}

// Read loads the credential file. A missing or blank file yields an empty
// Credential and no error; malformed JSON is an error.
func (s *Store) Read() (Credential, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, nil
	}
	if err != nil {
		return Credential{}, fmt.Errorf("read credential file %s: %w", s.Path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Credential{}, nil
	}
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return Credential{}, fmt.Errorf("parse credential file %s: %w", s.Path, err)
	}
	tok, err := crypto.Open(s.Encryptor, c.Token)
	if err != nil {
		return Credential{}, fmt.Errorf("open token in %s: %w", s.Path, err)
	}
	c.Token = tok
	return c, nil
}

// Save atomically replaces the credential file with c.
func (s *Store) Save(c Credential) error {
	out := c
	if s.Encryptor != nil {
		sealed, err := crypto.Seal(s.Encryptor, c.Token)
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
		out.Token = sealed
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

// Resolver merges the file with MAX_TOKEN / MAX_USER_ID. A non-empty
// environment value wins; otherwise the file value is used.
type Resolver struct {
	Store  *Store
	Getenv func(string) string
}

// NewResolver returns a Resolver reading the process environment.
func NewResolver(store *Store) *Resolver {
	return &Resolver{Store: store, Getenv: os.Getenv}
}

// Resolve returns the effective credential.
func (r *Resolver) Resolve() (Credential, error) {
	c, err := r.Store.Read()
	if err != nil {
		return Credential{}, err
	}
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := getenv(EnvUserID); v != "" {
		c.UserID = v
	}
	return c, nil
}
