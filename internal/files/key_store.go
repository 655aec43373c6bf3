package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skillforge/internal/crypto"
)

// WalletKeyEnv holds the hex master wallet key. It takes precedence over the
// key file.
const WalletKeyEnv = "SKILLFORGE_WALLET_KEY_HEX"

var (
	ErrWalletKeyMissing = errors.New("wallet key not found")
	ErrWalletKeyExists  = errors.New("wallet key already exists")
)

// ReadWalletKey returns the 32-byte master wallet key from the environment or
// from the hex key file at path.
func ReadWalletKey(path string) ([]byte, error) {
	h := os.Getenv(WalletKeyEnv)
	if h == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s not set and %s not found", ErrWalletKeyMissing, WalletKeyEnv, path)
			}
			return nil, err
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("wallet key hex decode error: %w", err)
	}
	if len(b) != crypto.KeySize {
		return nil, fmt.Errorf("wallet key length must be %d bytes (hex %d chars): %w", crypto.KeySize, crypto.KeySize*2, crypto.ErrInvalidKeyLength)
	}
	return b, nil
}

// GenerateWalletKey writes a fresh hex master key to path. It refuses to
// overwrite an existing file.
func GenerateWalletKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrWalletKeyExists, path)
	}
	key, err := crypto.GenerateMasterKey()
	if err != nil {
		return fmt.Errorf("generate wallet key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600)
}

// FileExists checks if the given file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
