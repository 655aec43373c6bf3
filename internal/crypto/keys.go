package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF info strings. Changing one makes every existing wallet unreadable.
const (
	infoWalletSeal = "skillforge-wallet-seal"
)

// DeriveWalletKey derives the wallet sealing key from the master wallet key
// using HKDF-SHA256.
func DeriveWalletKey(master []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(infoWalletSeal))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateMasterKey returns a fresh random master wallet key.
func GenerateMasterKey() ([]byte, error) {
	return RandomBytes(KeySize)
}
