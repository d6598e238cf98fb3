package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "todo-sync"

// Well-known credential keys.
const (
	// KeyAccessToken holds the session token issued by a remote backend.
	KeyAccessToken = "access_token"

	// KeyIMAPPassword holds the password of the mail delivery mailbox.
	KeyIMAPPassword = "imap_password"
)

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// KeyringStore is a Store backed by a keyring.Keyring.
type KeyringStore struct {
	mu   sync.Mutex
	ring keyring.Keyring
}

var _ Store = (*KeyringStore)(nil)

// OpenKeyring returns a store over the system keyring, falling back to an
// encrypted file under fileDir when no system keyring is available.
func OpenKeyring(fileDir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("todo-sync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// NewMemoryStore returns a store that keeps credentials in process memory.
func NewMemoryStore() *KeyringStore {
	return &KeyringStore{ring: keyring.NewArrayKeyring(nil)}
}

// Get retrieves a credential value by key.
func (s *KeyringStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *KeyringStore) Set(key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (s *KeyringStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
