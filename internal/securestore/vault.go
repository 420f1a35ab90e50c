package securestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"mini-live-chat/go-core/pkg/models"
)

// Credentials is what the auth collaborator hands out on login and what the
// client needs across restarts: the bearer token plus the local identity.
type Credentials struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Vault persists Credentials encrypted at a fixed path.
type Vault struct {
	path       string
	passphrase string
}

// NewVault returns a vault rooted at path. The passphrase is required; there
// is no plaintext fallback.
func NewVault(path, passphrase string) *Vault {
	return &Vault{path: path, passphrase: passphrase}
}

// Save seals and writes the credentials.
func (v *Vault) Save(creds Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	sealed, err := Encrypt(v.passphrase, raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(v.path, sealed, 0o600)
}

// Load reads and opens the credentials. A missing file yields ok=false with
// no error so first-run flows stay quiet.
func (v *Vault) Load() (Credentials, bool, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	plain, err := Decrypt(v.passphrase, raw)
	if err != nil {
		return Credentials{}, false, err
	}
	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, false, ErrInvalid
	}
	return creds, true, nil
}

// Clear removes the stored credentials, used on forced logout.
func (v *Vault) Clear() error {
	err := os.Remove(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
