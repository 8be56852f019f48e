package store

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealBroken is returned when a sealed document cannot be opened, usually
// because the passphrase is wrong or missing.
var ErrSealBroken = errors.New("credentials seal broken")

const (
	sealSaltLength  = 16
	sealTimeCost    = 1
	sealMemoryKB    = 19 * 1024
	sealParallelism = 1
	sealAlgorithm   = "argon2id+xchacha20poly1305"
)

type sealedBlob struct {
	Algorithm string `json:"alg"`
	Salt      []byte `json:"salt"`
	Nonce     []byte `json:"nonce"`
	Data      []byte `json:"data"`
}

// sealer caches the derived key for the last salt seen; Argon2 is
// deliberately slow and every FileStore operation goes through it.
type sealer struct {
	passphrase []byte
	salt       []byte
	key        []byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase)}
}

func (s *sealer) keyFor(salt []byte) []byte {
	if s.key != nil && bytes.Equal(salt, s.salt) {
		return s.key
	}
	s.salt = append([]byte(nil), salt...)
	s.key = argon2.IDKey(s.passphrase, salt, sealTimeCost, sealMemoryKB, sealParallelism, chacha20poly1305.KeySize)
	return s.key
}

func (s *sealer) seal(plain []byte) (*sealedBlob, error) {
	salt := s.salt
	if salt == nil {
		salt = make([]byte, sealSaltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("seal salt: %w", err)
		}
	}

	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("seal nonce: %w", err)
	}

	return &sealedBlob{
		Algorithm: sealAlgorithm,
		Salt:      salt,
		Nonce:     nonce,
		Data:      aead.Seal(nil, nonce, plain, []byte(sealAlgorithm)),
	}, nil
}

func (s *sealer) open(blob *sealedBlob) ([]byte, error) {
	if blob.Algorithm != sealAlgorithm || len(blob.Salt) != sealSaltLength {
		return nil, ErrSealBroken
	}
	aead, err := chacha20poly1305.NewX(s.keyFor(blob.Salt))
	if err != nil {
		return nil, err
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return nil, ErrSealBroken
	}
	plain, err := aead.Open(nil, blob.Nonce, blob.Data, []byte(sealAlgorithm))
	if err != nil {
		return nil, ErrSealBroken
	}
	return plain, nil
}
