package models

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// encryptionKey is derived once at startup via ConfigureEncryption. Columns
// typed EncryptedString are encrypted on write and decrypted on read, so
// tokens never reach the database or logs in plaintext.
var (
	encryptionKey []byte
	encryptionMu  sync.RWMutex
)

var errNoEncryptionKey = errors.New("models: encryption key not configured")

// ConfigureEncryption derives the AES-256 key used for EncryptedString
// columns from the given secret and salt.
func ConfigureEncryption(secret, salt string) error {
	if secret == "" {
		return errors.New("models: empty encryption secret")
	}
	key := pbkdf2.Key([]byte(secret), []byte(salt), 4096, 32, sha256.New)
	encryptionMu.Lock()
	encryptionKey = key
	encryptionMu.Unlock()
	return nil
}

// EncryptedString is a string column stored encrypted with AES-256-GCM.
// The zero value round-trips as SQL NULL.
type EncryptedString string

// Value implements driver.Valuer, encrypting on write.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" {
		return nil, nil
	}
	encryptionMu.RLock()
	key := encryptionKey
	encryptionMu.RUnlock()
	if key == nil {
		return nil, errNoEncryptionKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(e), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Scan implements sql.Scanner, decrypting on read.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}

	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("models: cannot scan %T into EncryptedString", value)
	}
	if raw == "" {
		*e = ""
		return nil
	}

	encryptionMu.RLock()
	key := encryptionKey
	encryptionMu.RUnlock()
	if key == nil {
		return errNoEncryptionKey
	}

	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("models: invalid encrypted column payload: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	if len(sealed) < gcm.NonceSize() {
		return errors.New("models: encrypted column payload too short")
	}
	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return fmt.Errorf("models: failed to decrypt column: %w", err)
	}
	*e = EncryptedString(plain)
	return nil
}

// String implements fmt.Stringer and masks the value so tokens cannot leak
// through logging.
func (e EncryptedString) String() string {
	if e == "" {
		return ""
	}
	return "[encrypted]"
}
