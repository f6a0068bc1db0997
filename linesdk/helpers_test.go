package linesdk

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testChannelID = "1234567890"
	testIssuer    = "https://access.line.me"
	testNonce     = "nonce-abc"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
)

// testRSAKey returns a shared 2048-bit key; generating one per test is slow.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	rsaKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		rsaKey = k
	})

	return rsaKey
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freezeNow pins the decode-time clock for the duration of the test.
func freezeNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func testIDTokenClaims() IDTokenPayload {
	return IDTokenPayload{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "U1234",
			Audience:  jwt.ClaimStrings{testChannelID},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		Nonce: testNonce,
		Name:  "Taro",
	}
}

func signIDToken(t *testing.T, kid string, claims IDTokenPayload) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(testRSAKey(t))
	require.NoError(t, err)
	return raw
}

func jwksDocument(t *testing.T, kid string) []byte {
	t.Helper()
	pub := testRSAKey(t).PublicKey
	b64 := base64.RawURLEncoding

	doc, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{
			{"kty": "RSA", "kid": "unrelated", "alg": "RS256", "n": "AQAB", "e": "AQAB"},
			{"kty": "oct", "kid": "symmetric", "k": "c2VjcmV0"},
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   b64.EncodeToString(pub.N.Bytes()),
				"e":   b64.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
	require.NoError(t, err)

	return doc
}

// newTestSession creates a Session pointed at the given httptest server.
func newTestSession(srv *httptest.Server) *Session {
	return &Session{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		logger:     discardLogger(),
	}
}

// memoryStorage is an in-memory SecureStorage that counts writes.
type memoryStorage struct {
	mu      sync.Mutex
	items   map[string][]byte
	sets    int
	removes int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{items: map[string][]byte{}}
}

func (m *memoryStorage) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memoryStorage) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryStorage) Contains(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok, nil
}

func (m *memoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	delete(m.items, key)
	return nil
}

func testToken(value, refresh string) *AccessToken {
	return &AccessToken{
		Value:        value,
		ExpiresIn:    30 * 24 * time.Hour,
		CreatedAt:    testNow,
		Permissions:  []LoginPermission{PermissionProfile, PermissionOpenID},
		TokenType:    "Bearer",
		refreshToken: refresh,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
