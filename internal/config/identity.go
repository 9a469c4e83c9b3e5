package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/datacore/datacore/keys"
)

// LoadOrCreateIdentity reads the Ed25519 keypair from cfg.KeyPath, or
// generates a fresh one and persists it if the file does not exist yet,
// following the storage package's 0o600 file-permission convention for
// secret material.
func LoadOrCreateIdentity(cfg *Config) (keys.PublicKey, keys.SecretKey, error) {
	raw, err := os.ReadFile(cfg.KeyPath())
	if err == nil {
		return decodeIdentity(raw)
	}
	if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config: read identity: %w", err)
	}

	public, secret, err := keys.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("config: generate identity: %w", err)
	}
	if err := SaveIdentity(cfg, secret); err != nil {
		return nil, nil, err
	}
	return public, secret, nil
}

// LoadIdentity reads the Ed25519 keypair from cfg.KeyPath, returning an
// error if no identity has been generated yet.
func LoadIdentity(cfg *Config) (keys.PublicKey, keys.SecretKey, error) {
	raw, err := os.ReadFile(cfg.KeyPath())
	if err != nil {
		return nil, nil, fmt.Errorf("config: read identity: %w", err)
	}
	return decodeIdentity(raw)
}

// SaveIdentity writes secret's hex encoding to cfg.KeyPath.
func SaveIdentity(cfg *Config, secret keys.SecretKey) error {
	encoded := hex.EncodeToString(secret)
	if err := os.WriteFile(cfg.KeyPath(), []byte(encoded+"\n"), 0o600); err != nil {
		return fmt.Errorf("config: write identity: %w", err)
	}
	return nil
}

func decodeIdentity(raw []byte) (keys.PublicKey, keys.SecretKey, error) {
	trimmed := trimNewline(raw)
	secret := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(secret, trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("config: decode identity: %w", err)
	}
	secret = secret[:n]
	public := secret[32:]
	return public, secret, nil
}

func trimNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}
