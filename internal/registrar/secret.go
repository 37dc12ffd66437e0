package registrar

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/virt/internal/apperr"
)

// SecretPrefix marks registrar-issued secrets so they are recognisable
// when pasted into the wrong place.
const SecretPrefix = "virt_"

const secretBytes = 24

// newSecret returns a fresh random secret token.
func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("registrar: generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

func hashSecret(secret string, cost int) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("registrar: hash secret: %w", err)
	}
	return string(digest), nil
}

// verifySecret returns apperr.ErrUnauthorized unless secret matches digest.
func verifySecret(digest, secret string) error {
	if secret == "" || digest == "" {
		return apperr.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)); err != nil {
		return apperr.ErrUnauthorized
	}
	return nil
}
