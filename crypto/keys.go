package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const privateKeyLength = 64

// GeneratePrivateKey returns a fresh ed25519 keypair.
func GeneratePrivateKey() (solana.PrivateKey, error) {
	return solana.NewRandomPrivateKey()
}

// DecodeAddress parses a base58 account address.
func DecodeAddress(addr string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return solana.PublicKey{}, errors.New("crypto: empty address")
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: invalid address %q: %w", trimmed, err)
	}
	return key, nil
}

// SaveKeypair writes the key as a JSON array of its 64 bytes, the format the
// Solana tooling uses for keypair files.
func SaveKeypair(path string, key solana.PrivateKey) error {
	if len(key) != privateKeyLength {
		return fmt.Errorf("crypto: private key must be %d bytes", privateKeyLength)
	}
	if path == "" {
		return errors.New("crypto: empty keypair path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// LoadKeypair reads a key written by SaveKeypair and checks that its public
// half matches the secret half.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseKeypair(raw)
}

func parseKeypair(raw []byte) (solana.PrivateKey, error) {
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("crypto: decode keypair: %w", err)
	}
	if len(ints) != privateKeyLength {
		return nil, fmt.Errorf("crypto: keypair has %d bytes, want %d", len(ints), privateKeyLength)
	}
	key := make(solana.PrivateKey, privateKeyLength)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("crypto: keypair byte %d out of range", i)
		}
		key[i] = byte(v)
	}
	if err := checkKeypair(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeypair(key solana.PrivateKey) error {
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		return errors.New("crypto: keypair public key does not match secret")
	}
	return nil
}
