package fieldcrypt

import (
	"errors"
	"fmt"
)

// Cryptographic failures are never retried: a wrong key or corrupted value
// cannot succeed on a second attempt.
var (
	ErrEncryption = errors.New("fieldcrypt: encryption failed")
	ErrDecryption = errors.New("fieldcrypt: decryption failed")

	// ErrMalformedCiphertext marks a value that carries the marker but cannot
	// be split into salt, nonce and ciphertext. It matches ErrDecryption.
	ErrMalformedCiphertext = fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
)
