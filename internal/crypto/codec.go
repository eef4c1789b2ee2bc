package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"chatly-server/internal/model"
)

var (
	// ErrIntegrity means the authentication tag did not verify: the stored
	// record was corrupted or tampered with.
	ErrIntegrity = errors.New("message integrity check failed")
	// ErrFormat means a ciphertext field is not valid hex or has the wrong
	// length for this codec.
	ErrFormat = errors.New("malformed ciphertext record")
)

// Codec seals and opens message bodies with AES-256-GCM. The key is derived
// once from a shared secret; each Encrypt call draws a fresh random nonce.
type Codec struct {
	aead cipher.AEAD
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("missing message secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

func (c *Codec) Encrypt(plaintext string) (model.Ciphertext, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.Ciphertext{}, err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()
	return model.Ciphertext{
		IV:      hex.EncodeToString(nonce),
		Content: hex.EncodeToString(sealed[:tagStart]),
		AuthTag: hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

func (c *Codec) Decrypt(ct model.Ciphertext) (string, error) {
	nonce, err := hex.DecodeString(ct.IV)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrFormat
	}
	content, err := hex.DecodeString(ct.Content)
	if err != nil {
		return "", ErrFormat
	}
	tag, err := hex.DecodeString(ct.AuthTag)
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", ErrFormat
	}

	plaintext, err := c.aead.Open(nil, nonce, append(content, tag...), nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}
