// Package owntracks builds OwnTracks location reports from vehicle state and
// optionally encrypts them for end-to-end protected transports.
package owntracks

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/volvooncall/voc/pkg/voc"
)

const (
	// KeySize is the secretbox key length.
	KeySize   = 32
	nonceSize = 24

	trackerID  = "volvo"
	reportType = "p" // ping
)

// ErrCryptoUnavailable indicates encryption was requested but no encrypter
// capability was provided. Reports are never silently sent in plaintext.
var ErrCryptoUnavailable = errors.New("cryptographic support unavailable")

// NormalizeKey derives a fixed-length secretbox key from an arbitrary
// passphrase: truncated if longer than KeySize, right-padded with zero bytes
// if shorter. This mirrors what OwnTracks clients do with the shared
// passphrase; it is deliberately not a KDF, so passphrases should be strong.
func NormalizeKey(passphrase string) *[KeySize]byte {
	var key [KeySize]byte
	copy(key[:], passphrase)
	return &key
}

// An Encrypter seals a plaintext into a transport-safe string. It is an
// optional capability: callers hold a nil Encrypter when no cryptographic
// backend is available.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// SecretboxEncrypter implements Encrypter with NaCl secretbox. A fresh
// random nonce is generated per call and prepended to the ciphertext.
type SecretboxEncrypter struct {
	key *[KeySize]byte
}

func NewEncrypter(passphrase string) *SecretboxEncrypter {
	return &SecretboxEncrypter{key: NormalizeKey(passphrase)}
}

func (e *SecretboxEncrypter) Encrypt(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, e.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses SecretboxEncrypter.Encrypt with the same passphrase. It is
// what a receiving relay does with the "data" field of an encrypted report.
func Decrypt(encoded, passphrase string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, NormalizeKey(passphrase))
	if !ok {
		return nil, errors.New("ciphertext authentication failed")
	}
	return plaintext, nil
}

// NewReport builds an OwnTracks location message for the given position and
// timestamp, with the vehicle's full attribute snapshot flattened in.
// Attribute names are snake_case and cannot collide with the short reserved
// keys. Serialization sorts keys, so output is deterministic.
func NewReport(lat, lon float64, timestamp int64, attributes *voc.Document) map[string]any {
	report := map[string]any{
		"_type": "location",
		"tid":   trackerID,
		"t":     reportType,
		"acc":   1,
		"lat":   lat,
		"lon":   lon,
		"tst":   timestamp,
	}
	for _, key := range attributes.Keys() {
		if _, reserved := report[key]; reserved {
			continue
		}
		value, _ := attributes.Get(key)
		report[key] = value
	}
	return report
}

// EncodePlain serializes a report as-is.
func EncodePlain(report map[string]any) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// EncodeEncrypted serializes a report and wraps it in an encrypted envelope.
// A nil encrypter fails with ErrCryptoUnavailable before touching the
// payload.
func EncodeEncrypted(report map[string]any, encrypter Encrypter) (string, error) {
	if encrypter == nil {
		return "", ErrCryptoUnavailable
	}
	plaintext, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	data, err := encrypter.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"_type": "encrypted",
		"data":  data,
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
