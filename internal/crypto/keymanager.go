// Package crypto provides HMAC request authentication for the MPC cluster,
// secp256k1 proof signing and verification, and encryption of secrets at
// rest (server seeds and the local dealer's signing key).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters (N=2^15, r=8, p=1), about 100ms per derivation.
const (
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	keyLen    = 32
	saltLen   = 16
	kdfScrypt = "scrypt"

	envelopeVersion = 2
	// sealedPrefix tags seeds sealed by SeedVault.
	sealedPrefix = "v2:"
)

// seedAAD binds sealed seeds to their purpose so a sealed seed cannot be
// passed off as any other vault ciphertext.
var seedAAD = []byte("housed/server-seed")

// envelope is the JSON form of an encrypted key file. Byte fields are
// base64 via encoding/json.
type envelope struct {
	Version int    `json:"version"`
	KDF     string `json:"kdf"`
	N       int    `json:"n"`
	R       int    `json:"r"`
	P       int    `json:"p"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

func deriveAEAD(secret, salt []byte, n, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key(secret, salt, n, r, p, keyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	return cipher.NewGCM(block)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: read random: %w", err)
	}
	return b, nil
}

// parseSigningKey accepts 64 hex characters, with or without 0x, that form
// a valid secp256k1 scalar.
func parseSigningKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: signing key is not hex: %w", err)
	}
	if _, err := ethcrypto.ToECDSA(raw); err != nil {
		return nil, fmt.Errorf("crypto: signing key: %w", err)
	}
	return raw, nil
}

// EncryptKey seals a hex signing key under password and returns the JSON
// key file.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	raw, err := parseSigningKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	salt, err := randomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	aead, err := deriveAEAD([]byte(password), salt, scryptN, scryptR, scryptP)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(envelope{
		Version: envelopeVersion,
		KDF:     kdfScrypt,
		N:       scryptN,
		R:       scryptR,
		P:       scryptP,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, raw, nil),
	}, "", "  ")
}

// DecryptKey opens a key file written by EncryptKey and returns the key as
// lowercase hex without 0x.
func DecryptKey(file []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var env envelope
	if err := json.Unmarshal(file, &env); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if env.Version != envelopeVersion || env.KDF != kdfScrypt {
		return "", fmt.Errorf("crypto: unsupported key file (version %d, kdf %q)", env.Version, env.KDF)
	}
	aead, err := deriveAEAD([]byte(password), env.Salt, env.N, env.R, env.P)
	if err != nil {
		return "", err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return "", errors.New("crypto: key file nonce has wrong length")
	}
	raw, err := aead.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return "", errors.New("crypto: key file did not decrypt (wrong password?)")
	}
	return hex.EncodeToString(raw), nil
}

// KeyConfig locates the local dealer's signing key.
type KeyConfig struct {
	// RawPrivateKey is the hex key, with or without 0x.
	RawPrivateKey string
	// EncryptedKeyPath is a file written by EncryptKey, opened with
	// KeyPassword.
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadKey resolves the signing key, preferring RawPrivateKey. Neither being
// set yields "" and no error.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		raw, err := parseSigningKey(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	case cfg.EncryptedKeyPath != "":
		file, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(file, cfg.KeyPassword)
	default:
		return "", nil
	}
}

// SeedVault encrypts server seeds before they are persisted. Its key is
// derived once per process from the passphrase and a deployment salt.
type SeedVault struct {
	aead cipher.AEAD
}

// NewSeedVault derives the vault key. An empty passphrase is rejected.
func NewSeedVault(passphrase, salt string) (*SeedVault, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: seed vault passphrase must not be empty")
	}
	aead, err := deriveAEAD([]byte(passphrase), []byte("housed-vault:"+salt), scryptN, scryptR, scryptP)
	if err != nil {
		return nil, err
	}
	return &SeedVault{aead: aead}, nil
}

// Seal encrypts seed as "v2:" + base64url(nonce || ciphertext).
func (v *SeedVault) Seal(seed string) (string, error) {
	nonce, err := randomBytes(v.aead.NonceSize())
	if err != nil {
		return "", err
	}
	out := v.aead.Seal(nonce, nonce, []byte(seed), seedAAD)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (v *SeedVault) Open(sealed string) (string, error) {
	body, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", errors.New("crypto: sealed seed has unknown format")
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("crypto: decode sealed seed: %w", err)
	}
	n := v.aead.NonceSize()
	if len(raw) < n+v.aead.Overhead() {
		return "", errors.New("crypto: sealed seed too short")
	}
	plain, err := v.aead.Open(nil, raw[:n], raw[n:], seedAAD)
	if err != nil {
		return "", errors.New("crypto: sealed seed did not decrypt")
	}
	return string(plain), nil
}
