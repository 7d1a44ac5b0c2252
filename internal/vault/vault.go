// Package vault stores and retrieves per-account provider passwords.
// Backend selection is a tagged variant, not dynamic dispatch behind an
// interface: every Store call tries the OS secret store first and falls
// back to the encrypted file only on error, so a keychain that comes and
// goes (locked session, headless box) degrades without reconfiguration.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/streamforge/tuner-gateway/internal/appdir"
	"github.com/streamforge/tuner-gateway/internal/errs"
)

const keychainPrefix = "keychain:"

const saltFileName = "credential_salt"
const saltSize = 32

// Vault stores account credentials. It holds no plaintext; every handle it
// returns is opaque to the caller.
type Vault struct {
	dir appdir.Dir
	os  osStore
}

// New returns a Vault rooted at dir, reading or creating the encryption
// salt file under dir (mode 0600).
func New(dir appdir.Dir) (*Vault, error) {
	if _, err := loadOrCreateSalt(dir); err != nil {
		return nil, errs.CredentialIO(err)
	}
	return &Vault{dir: dir, os: osStore{}}, nil
}

// Store encrypts plaintext and returns an opaque handle. It tries the OS
// secret store first; on any error it falls back to the encrypted file.
func (v *Vault) Store(accountID int64, plaintext string) (string, error) {
	if err := v.os.Store(accountID, plaintext); err == nil {
		return keychainPrefix + strconv.FormatInt(accountID, 10), nil
	}
	handle, err := v.encryptedStore(accountID, plaintext)
	if err != nil {
		return "", errs.CredentialIO(err)
	}
	return handle, nil
}

// Retrieve decrypts the plaintext behind handle. Dispatches on whether
// handle carries the keychain sentinel prefix.
func (v *Vault) Retrieve(accountID int64, handle string) (string, error) {
	if strings.HasPrefix(handle, keychainPrefix) {
		plaintext, err := v.os.Retrieve(accountID)
		if err == nil {
			return plaintext, nil
		}
		return "", errs.CredentialIO(fmt.Errorf("keychain retrieve failed and no encrypted fallback handle available: %w", err))
	}
	plaintext, err := v.encryptedRetrieve(accountID, handle)
	if err != nil {
		return "", errs.CredentialIO(err)
	}
	return plaintext, nil
}

// Delete removes the credential referenced by handle from whichever
// backend it lives in.
func (v *Vault) Delete(accountID int64, handle string) error {
	if strings.HasPrefix(handle, keychainPrefix) {
		return v.os.Delete(accountID)
	}
	return nil
}

func loadOrCreateSalt(dir appdir.Dir) ([]byte, error) {
	path := dir.Join(saltFileName)
	if b, err := os.ReadFile(path); err == nil && len(b) == saltSize {
		return b, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir.Path(), saltFileName+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(salt); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return salt, nil
}

func (v *Vault) aead(accountID int64) (cipher.AEAD, error) {
	salt, err := loadOrCreateSalt(v.dir)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(strconv.FormatInt(accountID, 10)))
	key := h.Sum(nil)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encryptedStore encrypts plaintext with AES-GCM-256, key derived from the
// salt plus the account id, and returns the handle: base16(nonce || ct || tag).
func (v *Vault) encryptedStore(accountID int64, plaintext string) (string, error) {
	aead, err := v.aead(accountID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

func (v *Vault) encryptedRetrieve(accountID int64, handle string) (string, error) {
	aead, err := v.aead(accountID)
	if err != nil {
		return "", err
	}
	blob, err := hex.DecodeString(handle)
	if err != nil {
		return "", fmt.Errorf("malformed handle: %w", err)
	}
	nonceSize := aead.NonceSize()
	if len(blob) < nonceSize {
		return "", fmt.Errorf("handle too short")
	}
	nonce, ct := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
