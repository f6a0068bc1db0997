package e2e_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/linesdk-go/internal/state"
	"github.com/alexjbarnes/linesdk-go/linesdk"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testChannelID = "1656000000"
	testBundleID  = "com.example.e2e"
	testSecret    = "e2e-storage-secret-value"
	testKeyID     = "e2e-key"
	redirectURI   = "http://127.0.0.1:19876/callback"
	authCode      = "e2e-authorization-code"
)

// platform is a fake LINE Login server: token, revoke and verify endpoints
// plus the discovery document and key set used to check identity tokens.
type platform struct {
	t   *testing.T
	key *rsa.PrivateKey
	srv *httptest.Server

	mu        sync.Mutex
	serial    int
	challenge string
	nonce     string
	active    map[string]bool // access tokens
	refresh   map[string]bool
	revokes   int
}

func newPlatform(t *testing.T) *platform {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &platform{
		t:       t,
		key:     key,
		active:  map[string]bool{},
		refresh: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/v2.1/token", p.handleToken)
	mux.HandleFunc("POST /oauth2/v2.1/revoke", p.handleRevoke)
	mux.HandleFunc("GET /oauth2/v2.1/verify", p.handleVerify)
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"issuer":   p.issuer(),
			"jwks_uri": p.srv.URL + "/oauth2/v2.1/certs",
		})
	})
	mux.HandleFunc("GET /oauth2/v2.1/certs", p.handleCerts)

	p.srv = httptest.NewTLSServer(mux)
	t.Cleanup(p.srv.Close)

	return p
}

func (p *platform) issuer() string {
	return p.srv.URL
}

func (p *platform) host() string {
	return strings.TrimPrefix(p.srv.URL, "https://")
}

// expectAuthorization records the PKCE challenge and nonce the next code
// exchange must match, as the real authorization page would.
func (p *platform) expectAuthorization(t *testing.T, authorizationURL string) {
	t.Helper()

	u, err := url.Parse(authorizationURL)
	require.NoError(t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.challenge = u.Query().Get("code_challenge")
	p.nonce = u.Query().Get("nonce")
}

func (p *platform) revokeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revokes
}

func (p *platform) issue(withIDToken bool) map[string]interface{} {
	p.serial++
	at := fmt.Sprintf("at-%d", p.serial)
	rt := fmt.Sprintf("rt-%d", p.serial)
	p.active[at] = true
	p.refresh[rt] = true

	body := map[string]interface{}{
		"access_token":  at,
		"expires_in":    2592000,
		"refresh_token": rt,
		"scope":         "profile openid",
		"token_type":    "Bearer",
	}

	if withIDToken {
		body["id_token"] = p.signIDToken()
	}

	return body
}

func (p *platform) signIDToken() string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   p.issuer(),
		"sub":   "U4af4980629",
		"aud":   testChannelID,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"nonce": p.nonce,
		"name":  "Taro Line",
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID

	raw, err := tok.SignedString(p.key)
	require.NoError(p.t, err)

	return raw
}

func (p *platform) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	if r.PostForm.Get("client_id") != testChannelID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if r.PostForm.Get("code") != authCode ||
			base64.RawURLEncoding.EncodeToString(sum[:]) != p.challenge ||
			r.PostForm.Get("id_token_key_type") != "JWK" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "authorization code or verifier mismatch",
			})

			return
		}

		writeJSON(w, http.StatusOK, p.issue(true))
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if !p.refresh[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "invalid refresh token",
			})

			return
		}

		delete(p.refresh, rt)
		writeJSON(w, http.StatusOK, p.issue(false))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *platform) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokes++

	if at := r.PostForm.Get("access_token"); at != "" {
		if !p.active[at] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
			return
		}

		delete(p.active, at)
	}

	if rt := r.PostForm.Get("refresh_token"); rt != "" {
		if !p.refresh[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
			return
		}

		delete(p.refresh, rt)
		p.active = map[string]bool{}
	}

	w.WriteHeader(http.StatusOK)
}

func (p *platform) handleVerify(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active[r.URL.Query().Get("access_token")] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "access token expired",
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":      "profile openid",
		"client_id":  testChannelID,
		"expires_in": 2591000,
	})
}

func (p *platform) handleCerts(w http.ResponseWriter, r *http.Request) {
	pub := p.key.PublicKey
	b64 := base64.RawURLEncoding

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": testKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   b64.EncodeToString(pub.N.Bytes()),
				"e":   b64.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// harness is an SDK backed by a sealed state file and pointed at a fake
// platform.
type harness struct {
	Platform  *platform
	StatePath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return &harness{
		Platform:  newPlatform(t),
		StatePath: filepath.Join(t.TempDir(), "state.db"),
	}
}

// open sets up an SDK over the harness state file. bbolt holds an
// exclusive lock, so call the returned close func before opening again.
func (h *harness) open(t *testing.T) (*linesdk.SDK, func()) {
	t.Helper()

	kc, err := state.OpenAt(h.StatePath, testSecret)
	require.NoError(t, err)

	var once sync.Once
	closeFn := func() { once.Do(func() { kc.Close() }) }
	t.Cleanup(closeFn)

	sdk, err := linesdk.Setup(linesdk.Options{
		ChannelID:          testChannelID,
		APIHost:            h.Platform.host(),
		OpenIDDiscoveryURL: h.Platform.srv.URL + "/.well-known/openid-configuration",
		IDTokenLeeway:      time.Minute,
		Storage:            kc.Service(linesdk.CurrentVersion.ServiceName(testBundleID)),
		HTTPClient:         h.Platform.srv.Client(),
		Logger:             slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	return sdk, closeFn
}

// login runs the web login against the platform, standing in for the
// browser by building the redirect URL directly.
func (h *harness) login(t *testing.T, sdk *linesdk.SDK) *linesdk.LoginResult {
	t.Helper()

	req, err := sdk.Login.AuthorizationURL(redirectURI, nil)
	require.NoError(t, err)
	h.Platform.expectAuthorization(t, req.URL)

	code, err := req.ParseCallback(redirectURI + "?code=" + authCode + "&state=" + url.QueryEscape(req.State))
	require.NoError(t, err)

	res, err := sdk.Login.CompleteLogin(t.Context(), req.Parameters(code))
	require.NoError(t, err)

	return res
}
