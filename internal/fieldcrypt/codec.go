// Package fieldcrypt encrypts individual column values before they are
// written and decrypts them after they are read.
//
// Each value gets its own random salt and nonce. The value key is derived from
// the master secret with PBKDF2-HMAC-SHA256 and used with AES-256-GCM. The
// stored form is
//
//	ENC:base64(hex(salt) ":" hex(nonce) ":" hex(ciphertext||tag))
//
// Values without the ENC: marker are legacy plaintext and decrypt to themselves.
package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Marker prefixes every encrypted value.
	Marker = "ENC:"

	// DefaultIterations is the PBKDF2 round count used when none is configured.
	DefaultIterations = 10000

	saltSize  = 32
	nonceSize = 12
	keySize   = 32
)

// Observer receives one call per codec operation. op is "encrypt" or "decrypt".
type Observer func(op string, err error, elapsed time.Duration)

// Codec holds the master secret. It is safe for concurrent use.
type Codec struct {
	secret     []byte
	iterations int
	observe    Observer
	random     io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithIterations overrides the PBKDF2 round count. Values below 1 are ignored.
func WithIterations(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.iterations = n
		}
	}
}

// WithObserver installs a hook that is called after every operation.
func WithObserver(fn Observer) Option {
	return func(c *Codec) { c.observe = fn }
}

// New returns a Codec bound to secret.
func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("fieldcrypt: empty master secret")
	}
	c := &Codec{
		secret:     append([]byte(nil), secret...),
		iterations: DefaultIterations,
		random:     rand.Reader,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Iterations returns the PBKDF2 round count in use.
func (c *Codec) Iterations() int { return c.iterations }

// IsEncrypted reports whether v carries the encryption marker.
func IsEncrypted(v string) bool { return strings.HasPrefix(v, Marker) }

// Encrypt seals plaintext. The empty string is returned unchanged.
func (c *Codec) Encrypt(plaintext string) (out string, err error) {
	if plaintext == "" {
		return plaintext, nil
	}
	defer c.track("encrypt", time.Now(), &err)

	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("%w: generating salt: %v", ErrEncryption, err)
	}
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryption, err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	payload := hex.EncodeToString(salt) + ":" + hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed)
	return Marker + base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Decrypt opens a value produced by Encrypt. Unmarked values, including the
// empty string, are returned unchanged.
func (c *Codec) Decrypt(value string) (out string, err error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	defer c.track("decrypt", time.Now(), &err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Marker))
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrMalformedCiphertext, err)
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedCiphertext, len(parts))
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) == 0 {
		return "", fmt.Errorf("%w: bad salt", ErrMalformedCiphertext)
	}
	nonce, err := hex.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrMalformedCiphertext)
	}
	sealed, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrMalformedCiphertext)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed (wrong key or corrupted value)", ErrDecryption)
	}
	return string(plain), nil
}

// EncryptPtr is Encrypt for optional values; nil passes through.
func (c *Codec) EncryptPtr(p *string) (*string, error) {
	if p == nil {
		return nil, nil
	}
	out, err := c.Encrypt(*p)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DecryptPtr is Decrypt for optional values; nil passes through.
func (c *Codec) DecryptPtr(p *string) (*string, error) {
	if p == nil {
		return nil, nil
	}
	out, err := c.Decrypt(*p)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EncryptImage seals a binary payload by base64-encoding it and running it
// through Encrypt. Empty input is returned unchanged.
func (c *Codec) EncryptImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	enc, err := c.Encrypt(base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

// DecryptImage reverses EncryptImage. Bytes without the marker are legacy
// unencrypted images and are returned unchanged.
func (c *Codec) DecryptImage(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(Marker)) {
		return data, nil
	}
	dec, err := c.Decrypt(string(data))
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: image payload is not base64", ErrMalformedCiphertext)
	}
	return raw, nil
}

func (c *Codec) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, c.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *Codec) track(op string, start time.Time, errp *error) {
	if c.observe != nil {
		c.observe(op, *errp, time.Since(start))
	}
}
