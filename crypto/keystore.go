package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/gagliardetto/solana-go"
)

const keystoreVersion = 3

// Scrypt cost parameters used when encrypting. Tests lower them.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// encryptedKey is a keystore v3 crypto section wrapped with the address it
// unlocks.
type encryptedKey struct {
	Address string              `json:"address"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
	Version int                 `json:"version"`
}

// SaveToKeystore encrypts the keypair with passphrase and writes it to path.
func SaveToKeystore(path string, key solana.PrivateKey, passphrase string) error {
	if len(key) != privateKeyLength {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	cj, err := keystore.EncryptDataV3(key, []byte(passphrase), scryptN, scryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	raw, err := json.MarshalIndent(encryptedKey{
		Address: key.PublicKey().String(),
		Crypto:  cj,
		Version: keystoreVersion,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file encryptedKey
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", file.Version)
	}
	secret, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	if len(secret) != privateKeyLength {
		return nil, fmt.Errorf("crypto: decrypted key has %d bytes", len(secret))
	}
	key := solana.PrivateKey(secret)
	if err := checkKeypair(key); err != nil {
		return nil, err
	}
	if file.Address != "" && file.Address != key.PublicKey().String() {
		return nil, errors.New("crypto: keystore address does not match key")
	}
	return key, nil
}

// IsKeystore reports whether raw looks like an encrypted keystore rather than
// a plain keypair array.
func IsKeystore(raw []byte) bool {
	var probe struct {
		Version int             `json:"version"`
		Crypto  json.RawMessage `json:"crypto"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Version == keystoreVersion && len(probe.Crypto) > 0
}
