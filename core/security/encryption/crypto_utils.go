package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortCiphertext is returned when a sealed record is too short to hold a nonce.
var ErrShortCiphertext = errors.New("ciphertext is too short")

// ValidateKey checks the AES key length.
func ValidateKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	}
	return fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", len(key))
}

// PageCipher encrypts page images in place with AES-CTR. The counter block
// is derived from the page address, so an image keeps its length and the
// same page always encrypts the same way. It satisfies the page cache's
// PageTransform interface.
type PageCipher struct {
	block cipher.Block
}

// NewPageCipher creates a PageCipher. The key must be 16, 24, or 32 bytes
// long to select AES-128, AES-192, or AES-256 respectively.
func NewPageCipher(key []byte) (*PageCipher, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return &PageCipher{block: block}, nil
}

func (c *PageCipher) stream(addr uint64) cipher.Stream {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv, addr)
	return cipher.NewCTR(c.block, iv)
}

// Encode encrypts buf, the image of the page at addr.
func (c *PageCipher) Encode(addr uint64, buf []byte) error {
	c.stream(addr).XORKeyStream(buf, buf)
	return nil
}

// Decode decrypts buf, the image of the page at addr.
func (c *PageCipher) Decode(addr uint64, buf []byte) error {
	c.stream(addr).XORKeyStream(buf, buf)
	return nil
}

// RecordCipher provides authenticated encryption for log records.
// It uses AES-GCM (Galois/Counter Mode).
type RecordCipher struct {
	gcm cipher.AEAD
}

// NewRecordCipher creates a RecordCipher for the given AES key.
func NewRecordCipher(key []byte) (*RecordCipher, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &RecordCipher{gcm: gcm}, nil
}

// Seal encrypts plaintext. The nonce is prepended to the ciphertext.
func (c *RecordCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize(), c.gcm.NonceSize()+len(plaintext)+c.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a record produced by Seal. It fails if the record was
// tampered with.
func (c *RecordCipher) Open(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrShortCiphertext
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
