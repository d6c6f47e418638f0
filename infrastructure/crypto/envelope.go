// Package crypto implements the credential vault's encrypt/decrypt
// primitives: AES-256-GCM with a per-record key derived via scrypt from a
// process-wide master passphrase and a fresh random salt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	saltSize     = 32
	nonceSize    = 12
	derivedKeyLen = 32
)

// Envelope is the discrete {encryptedData, iv, authTag, salt} record shape
// persisted on the credentials table. EncryptedData and AuthTag are kept
// separate because GCM's Seal appends the tag to the ciphertext; splitting
// them here matches the column layout rather than the library's output
// layout.
type Envelope struct {
	EncryptedData []byte
	IV            []byte
	AuthTag       []byte
	Salt          []byte
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under a key derived from masterPassphrase and a
// fresh random salt, returning the discrete envelope fields.
func Encrypt(masterPassphrase string, plaintext []byte) (*Envelope, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	key, err := deriveKey(masterPassphrase, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("read iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagLen := aead.Overhead()
	ciphertext := sealed[:len(sealed)-tagLen]
	authTag := sealed[len(sealed)-tagLen:]

	return &Envelope{
		EncryptedData: ciphertext,
		IV:            iv,
		AuthTag:       authTag,
		Salt:          salt,
	}, nil
}

// Decrypt opens an Envelope previously produced by Encrypt. It returns an
// error (the caller maps this to InvalidCredential) if the GCM tag fails
// to verify, which covers both tampering and use of the wrong passphrase.
func Decrypt(masterPassphrase string, env *Envelope) ([]byte, error) {
	key, err := deriveKey(masterPassphrase, env.Salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	sealed := make([]byte, 0, len(env.EncryptedData)+len(env.AuthTag))
	sealed = append(sealed, env.EncryptedData...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateIndexNowKey returns 32 hex characters from a CSPRNG, matching the
// format IndexNow expects for the per-project key file.
func GenerateIndexNowKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
