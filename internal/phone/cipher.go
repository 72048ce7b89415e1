package phone

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKey        = errors.New("phone: invalid encryption key")
	ErrInvalidCiphertext = errors.New("phone: invalid ciphertext")
)

const minKeyLen = 16

// Cipher encrypts phone numbers with AES-256-GCM. The nonce is an HMAC of the
// plaintext, so equal numbers produce equal ciphertext and stored rows can be
// looked up by ciphertext. The key must never change while ciphertext exists.
type Cipher struct {
	aead   cipher.AEAD
	macKey []byte
}

// NewCipher derives the encryption and nonce keys from secret.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) < minKeyLen {
		return nil, ErrInvalidKey
	}

	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("courtbot phone cipher v1"))
	encKey := make([]byte, 32)
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, ErrInvalidKey
	}
	if _, err := io.ReadFull(kdf, macKey); err != nil {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Cipher{aead: aead, macKey: macKey}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrInvalidKey
	}
	nonce := c.nonce(plaintext)
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrInvalidKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	size := c.aead.NonceSize()
	if len(raw) < size+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:size], raw[size:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if !hmac.Equal(nonce, c.nonce(string(plain))) {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

func (c *Cipher) nonce(plaintext string) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(plaintext))
	return mac.Sum(nil)[:c.aead.NonceSize()]
}
