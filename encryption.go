package txwatch

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SealNonceSize is the AES-GCM nonce size.
	SealNonceSize = 12
	// SealSaltSize is the PBKDF2 salt size.
	SealSaltSize = 32
	// SealKeySize is the AES-256 key size.
	SealKeySize = 32
	// PBKDF2Iterations is the number of key derivation rounds.
	PBKDF2Iterations = 100000
)

// ErrWrongPassword is returned when sealed data cannot be opened.
var ErrWrongPassword = errors.New("wrong password or corrupted data")

// Sealer encrypts session exports with a password-derived AES-256-GCM key.
type Sealer struct {
	gcm  cipher.AEAD
	salt []byte
}

// NewSealer derives a key from password with a fresh random salt.
func NewSealer(password string) (*Sealer, error) {
	salt := make([]byte, SealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return NewSealerWithSalt(password, salt)
}

// NewSealerWithSalt derives the key of an existing export.
func NewSealerWithSalt(password string, salt []byte) (*Sealer, error) {
	if password == "" {
		return nil, errors.New("password is required")
	}
	if len(salt) != SealSaltSize {
		return nil, errors.New("invalid salt size")
	}

	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, SealKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm, salt: append([]byte(nil), salt...)}, nil
}

// Salt returns the key derivation salt.
func (s *Sealer) Salt() []byte {
	return s.salt
}

// Seal encrypts plaintext and prepends the nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, SealNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < SealNonceSize {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, sealed[:SealNonceSize], sealed[SealNonceSize:], nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}
