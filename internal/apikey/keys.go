package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// Prefix marks every issued key so malformed credentials can be rejected
	// before any store lookup.
	Prefix = "ak_"

	keyBodyBytes = 32
	rawKeyLength = len(Prefix) + keyBodyBytes*2
	maskedStars  = 56
)

// Generated is the result of issuing a new key. Raw is returned to the caller
// exactly once and never persisted; only Hash and DisplayPrefix are stored.
type Generated struct {
	Raw           string
	Hash          string
	DisplayPrefix string
}

// Generate creates a new random API key.
func Generate() (Generated, error) {
	body := make([]byte, keyBodyBytes)
	if _, err := rand.Read(body); err != nil {
		return Generated{}, fmt.Errorf("generate key body: %w", err)
	}
	raw := Prefix + hex.EncodeToString(body)
	return Generated{
		Raw:           raw,
		Hash:          Hash(raw),
		DisplayPrefix: raw[:len(Prefix)+8],
	}, nil
}

// Hash returns the hex sha256 digest of a raw key. Raw keys are never stored
// or compared directly.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether raw has the shape of an issued key.
func WellFormed(raw string) bool {
	if len(raw) != rawKeyLength || !strings.HasPrefix(raw, Prefix) {
		return false
	}
	_, err := hex.DecodeString(raw[len(Prefix):])
	return err == nil
}

// Masked renders a key for display without revealing it.
func Masked(displayPrefix string) string {
	return displayPrefix + strings.Repeat("*", maskedStars)
}
