// Package crypto seals small secrets (session dumps) at rest with a passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Magic prefixes every sealed blob.
	Magic = "RRSB"

	// FormatVersion of the sealed layout.
	FormatVersion = 1

	SaltSize  = 16
	NonceSize = 12
	KeyLen    = 32

	// magic(4) + version(4) + time(4) + memory(4) + threads(1) + salt + nonce
	headerSize = 4 + 4 + 4 + 4 + 1 + SaltSize + NonceSize
)

var (
	ErrInvalidMagic   = errors.New("not a sealed blob")
	ErrInvalidVersion = errors.New("unsupported sealed blob version")
	ErrOpenFailed     = errors.New("open failed: wrong passphrase or corrupted data")
	ErrEmptyPassword  = errors.New("passphrase must not be empty")
)

// Params are the Argon2id cost parameters. They are stored in the blob header
// so Open never needs to be told which were used.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams follow the OWASP Argon2id baseline.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 4}

func deriveKey(passphrase string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, KeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from passphrase.
func Seal(plaintext []byte, passphrase string, p Params) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassword
	}

	header := make([]byte, headerSize)
	copy(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], p.Time)
	binary.LittleEndian.PutUint32(header[12:16], p.Memory)
	header[16] = p.Threads

	salt := header[17 : 17+SaltSize]
	nonce := header[17+SaltSize:]
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(passphrase, salt, p))
	if err != nil {
		return nil, err
	}

	// The header is authenticated so cost parameters cannot be swapped.
	ciphertext := gcm.Seal(nil, nonce, plaintext, header)
	return append(header, ciphertext...), nil
}

// Open reverses Seal.
func Open(data []byte, passphrase string) ([]byte, error) {
	if len(data) < headerSize || string(data[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(data[4:8]) != FormatVersion {
		return nil, ErrInvalidVersion
	}

	p := Params{
		Time:    binary.LittleEndian.Uint32(data[8:12]),
		Memory:  binary.LittleEndian.Uint32(data[12:16]),
		Threads: data[16],
	}
	if p.Time == 0 || p.Threads == 0 {
		return nil, ErrInvalidMagic
	}

	header := data[:headerSize]
	salt := header[17 : 17+SaltSize]
	nonce := header[17+SaltSize:]

	gcm, err := newGCM(deriveKey(passphrase, salt, p))
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, data[headerSize:], header)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed-blob prefix.
func IsSealed(data []byte) bool {
	return len(data) >= 4 && string(data[0:4]) == Magic
}
