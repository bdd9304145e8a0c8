package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/max-bridge/crypto"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "max_config.json"), nil)
	c, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if c != (Credential{}) {
		t.Errorf("Read() = %+v, want empty", c)
	}
	if c.Valid() {
		t.Error("empty credential reported valid")
	}
}

func TestReadBlankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "max_config.json")
	writeFile(t, path, "  \n")
	c, err := NewStore(path, nil).Read()
	if err != nil || c != (Credential{}) {
		t.Errorf("Read() = %+v, %v; want empty, nil", c, err)
	}
}

func TestReadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "max_config.json")
	writeFile(t, path, "{not json")
	if _, err := NewStore(path, nil).Read(); err == nil || !strings.Contains(err.Error(), "parse credential file") {
		t.Errorf("Read() error = %v, want parse error", err)
	}
}

func TestSaveOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "max_config.json")
	writeFile(t, path, `{"token":"old","user_id":"old","extra":true}`)
	s := NewStore(path, nil)
	if err := s.Save(Credential{Token: "abc", UserID: "123"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	if len(got) != 2 || got["token"] != "abc" || got["user_id"] != "123" {
		t.Errorf("saved file = %s, want exactly token/user_id", b)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, dir has %d entries", len(entries))
	}
}

func TestSaveEncrypted(t *testing.T) {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "max_config.json")
	s := NewStore(path, enc)
	if err := s.Save(Credential{Token: "secret-token", UserID: "42"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "secret-token") || !strings.Contains(string(b), crypto.SealedPrefix) {
		t.Errorf("token stored in plaintext: %s", b)
	}
	c, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if c.Token != "secret-token" || c.UserID != "42" {
		t.Errorf("Read() = %+v", c)
	}
	if _, err := NewStore(path, nil).Read(); err == nil {
		t.Error("reading sealed token without key should fail")
	}
}

func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "max_config.json")
	writeFile(t, path, `{"token":"F","user_id":"U1"}`)
	env := map[string]string{EnvToken: "E"}
	r := &Resolver{Store: NewStore(path, nil), Getenv: func(k string) string { return env[k] }}
	c, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.Token != "E" || c.UserID != "U1" {
		t.Errorf("Resolve() = %+v, want token=E user_id=U1", c)
	}

	env[EnvToken] = ""
	env[EnvUserID] = "U2"
	c, _ = r.Resolve()
	if c.Token != "F" || c.UserID != "U2" {
		t.Errorf("Resolve() = %+v, want token=F user_id=U2", c)
	}
}

func TestResolveNothingConfigured(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvUserID, "")
	r := NewResolver(NewStore(filepath.Join(t.TempDir(), "none.json"), nil))
	c, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.Token != "" || c.UserID != "" {
		t.Errorf("Resolve() = %+v, want empty", c)
	}
}
