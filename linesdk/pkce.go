package linesdk

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE holds a proof key pair for one authorization request.
type PKCE struct {
	Verifier        string
	Challenge       string
	ChallengeMethod string
}

// NewPKCE generates a 43-character verifier from 32 random bytes and its
// S256 challenge.
func NewPKCE() (*PKCE, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)

	return &PKCE{
		Verifier:        verifier,
		Challenge:       s256Challenge(verifier),
		ChallengeMethod: "S256",
	}, nil
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomToken returns n random bytes as unpadded base64url, for nonce
// values.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
