package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// Store persists a single OAuth2 token. Load returns ErrTokenNotSet when nothing is stored.
type Store interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// FileStore keeps the token as JSON on disk. An empty path disables persistence.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*oauth2.Token, error) {
	if s.path == "" {
		return nil, ErrTokenNotSet
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTokenNotSet
		}
		return nil, fmt.Errorf("os.Open failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("json.NewDecoder.Decode failed: %w", err)
	}

	return token, nil
}

func (s *FileStore) Save(tok *oauth2.Token) error {
	if s.path == "" || tok == nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("os.MkdirAll failed: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("os.OpenFile failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}

	return nil
}

// KeyringStore keeps the token in the OS keyring under a single key.
type KeyringStore struct {
	ring keyring.Keyring
	key  string
}

// NewKeyringStore creates a KeyringStore that uses key inside ring.
func NewKeyringStore(ring keyring.Keyring, key string) *KeyringStore {
	return &KeyringStore{ring: ring, key: key}
}

// OpenKeyring opens the platform keyring, falling back to an encrypted file in fileDir.
func OpenKeyring(service, fileDir, password string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("keyring.Open failed: %w", err)
	}
	return ring, nil
}

func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrTokenNotSet
	}
	if err != nil {
		return nil, fmt.Errorf("ring.Get(%s) failed: %w", s.key, err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, token); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return token, nil
}

func (s *KeyringStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        data,
		Label:       "Gmail OAuth token",
		Description: "OAuth2 token used to read the mailbox",
	})
	if err != nil {
		return fmt.Errorf("ring.Set(%s) failed: %w", s.key, err)
	}

	return nil
}
