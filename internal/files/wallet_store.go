package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"skillforge/internal/crypto"
)

var (
	ErrDuplicateCredential = errors.New("credential already stored")
	ErrEntryNotFound       = errors.New("wallet entry not found")
)

// walletAAD binds the ciphertext to its purpose.
var walletAAD = []byte("skillforge-wallet-v1")

// Entry is one issued credential kept in the wallet.
type Entry struct {
	ID               string    `json:"id"`
	AccomplishmentID string    `json:"accomplishment_id"`
	QuestID          string    `json:"quest_id,omitempty"`
	QuestTitle       string    `json:"quest_title,omitempty"`
	JWT              string    `json:"jwt"`
	SavedAt          time.Time `json:"saved_at"`
}

// WalletStore keeps issued credentials in a single AES-GCM encrypted JSON
// file. The bearer token is never written here.
type WalletStore struct {
	filePath string
	key      []byte
	mu       sync.RWMutex
	now      func() time.Time
}

// NewWalletStore opens the wallet at path, sealing it with a key derived from
// masterKey. The file is created lazily on first Save.
func NewWalletStore(path string, masterKey []byte) (*WalletStore, error) {
	key, err := crypto.DeriveWalletKey(masterKey)
	if err != nil {
		return nil, fmt.Errorf("derive wallet key: %w", err)
	}
	return &WalletStore{filePath: path, key: key, now: time.Now}, nil
}

// Path returns the wallet file location.
func (s *WalletStore) Path() string { return s.filePath }

// Save appends an entry, assigning its ID and save time. The same JWT cannot
// be stored twice.
func (s *WalletStore) Save(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	for _, v := range entries {
		if v.JWT == e.JWT {
			return ErrDuplicateCredential
		}
	}

	e.ID = uuid.NewString()
	e.SavedAt = s.now().UTC()
	entries = append(entries, *e)
	return s.write(entries)
}

// GetAll returns every entry, oldest first. A missing wallet is empty.
func (s *WalletStore) GetAll() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].SavedAt.Before(entries[j].SavedAt) })
	return entries, nil
}

// Get returns the entry with the given ID.
func (s *WalletStore) Get(id string) (*Entry, error) {
	entries, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// Clear removes the wallet file.
func (s *WalletStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *WalletStore) load() ([]Entry, error) {
	blob, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	plain, err := crypto.DecryptAESGCM(s.key, blob, walletAAD)
	if err != nil {
		return nil, fmt.Errorf("open wallet %s: %w", s.filePath, err)
	}
	var entries []Entry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	return entries, nil
}

func (s *WalletStore) write(entries []Entry) error {
	plain, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	enc, err := crypto.EncryptAESGCM(s.key, plain, walletAAD)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, enc, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}
