// Package secrets provides reversible encryption for identifiers stored at
// rest. Protected values carry a recognizable marker prefix so that
// protection is idempotent and unprotected legacy values pass through reads
// unchanged.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// Marker prefixes every protected value. Values without the marker are
// treated as cleartext.
const Marker = "secret:"

const nonceSize = 24

var ErrDecrypt = errors.New("unable to decrypt protected value")

// Codec encrypts and reveals identity strings. A Codec with no key is valid
// and leaves values untouched, matching deployments that have not configured
// a secret key yet.
type Codec struct {
	key     [32]byte
	enabled bool
}

// NewCodec derives a codec from the configured secret key. An empty key
// yields a pass-through codec.
func NewCodec(secretKey string) *Codec {
	codec := &Codec{}

	if secretKey != "" {
		codec.key = sha256.Sum256([]byte(secretKey))
		codec.enabled = true
	}

	return codec
}

// Enabled reports whether a secret key is configured.
func (c *Codec) Enabled() bool {
	return c.enabled
}

// IsProtected reports whether the value carries the protection marker.
func IsProtected(value string) bool {
	return len(value) >= len(Marker) && value[:len(Marker)] == Marker
}

// Protect encrypts a cleartext value. Already-protected values are returned
// unchanged, so Protect(Protect(x)) == Protect(x).
func (c *Codec) Protect(value string) (string, error) {
	if !c.enabled || IsProtected(value) {
		return value, nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &c.key)

	return Marker + base64.StdEncoding.EncodeToString(sealed), nil
}

// Reveal decrypts a protected value. Unmarked values are returned as-is,
// since comparisons must always occur on cleartext.
func (c *Codec) Reveal(value string) (string, error) {
	if !IsProtected(value) {
		return value, nil
	}

	if !c.enabled {
		return "", errors.Wrap(ErrDecrypt, "no secret key configured")
	}

	sealed, err := base64.StdEncoding.DecodeString(value[len(Marker):])
	if err != nil {
		return "", errors.Wrap(ErrDecrypt, err.Error())
	}

	if len(sealed) < nonceSize {
		return "", errors.Wrap(ErrDecrypt, "ciphertext too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	opened, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}

	return string(opened), nil
}

// LookupHash returns a stable, deterministic digest of the revealed value.
// It exists so that rows can be pre-filtered by index without paying the
// decryption cost per row.
func (c *Codec) LookupHash(value string) (string, error) {
	revealed, err := c.Reveal(value)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256([]byte(revealed))

	return hex.EncodeToString(digest[:]), nil
}
