package linesdk

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/alexjbarnes/linesdk-go/internal/jose"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultAuthorizeEndpoint is the LINE Login web authorization page.
const DefaultAuthorizeEndpoint = "https://access.line.me/oauth2/v2.1/authorize"

// AuthorizationRequest is one pending web login. Keep it until the
// redirect comes back; its State, Nonce and PKCE verifier are needed to
// complete the login.
type AuthorizationRequest struct {
	URL         string
	State       string
	Nonce       string
	PKCE        *PKCE
	RedirectURI string
	Permissions []LoginPermission
}

// LoginParameters are the inputs to CompleteLogin.
type LoginParameters struct {
	Code                string
	CodeVerifier        string
	RedirectURI         string
	OptionalRedirectURI string
	Permissions         []LoginPermission

	// Nonce is compared to the identity token's nonce claim when set.
	Nonce string
}

// LoginResult is the outcome of a completed login.
type LoginResult struct {
	AccessToken *AccessToken
	Permissions []LoginPermission
}

// Login drives the authorization code flow: it builds the authorization
// URL, validates the redirect, exchanges the code and verifies the identity
// token before storing the credential.
type Login struct {
	channelID         string
	authorizeEndpoint string
	discoveryURL      string
	leeway            time.Duration

	api     *AuthAPI
	session *Session
	store   *AccessTokenStore
	logger  *slog.Logger

	keys singleflight.Group
	now  func() time.Time
}

// LoginOptions configures NewLogin.
type LoginOptions struct {
	ChannelID         string
	AuthorizeEndpoint string
	DiscoveryURL      string
	Leeway            time.Duration
}

// NewLogin creates a login flow bound to api's channel and store.
func NewLogin(opts LoginOptions, api *AuthAPI, session *Session, store *AccessTokenStore, logger *slog.Logger) *Login {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.AuthorizeEndpoint == "" {
		opts.AuthorizeEndpoint = DefaultAuthorizeEndpoint
	}

	return &Login{
		channelID:         opts.ChannelID,
		authorizeEndpoint: opts.AuthorizeEndpoint,
		discoveryURL:      opts.DiscoveryURL,
		leeway:            opts.Leeway,
		api:               api,
		session:           session,
		store:             store,
		logger:            logger,
		now:               time.Now,
	}
}

// AuthorizationURL starts a login. The returned request carries fresh
// state, nonce and PKCE values.
func (l *Login) AuthorizationURL(redirectURI string, permissions []LoginPermission) (*AuthorizationRequest, error) {
	if redirectURI == "" {
		return nil, newError(ReasonParameterError, "redirect URI is required", nil)
	}

	if len(permissions) == 0 {
		permissions = []LoginPermission{PermissionProfile, PermissionOpenID}
	}

	pkce, err := NewPKCE()
	if err != nil {
		return nil, newError(ReasonConversionError, "", err)
	}

	state := uuid.NewString()

	nonce, err := randomToken(16)
	if err != nil {
		return nil, newError(ReasonConversionError, "generating nonce", err)
	}

	u, err := url.Parse(l.authorizeEndpoint)
	if err != nil {
		return nil, newError(ReasonMissingURL, l.authorizeEndpoint, err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", l.channelID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", joinPermissions(permissions))
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", pkce.ChallengeMethod)

	if slices.Contains(permissions, PermissionOpenID) {
		q.Set("nonce", nonce)
	} else {
		nonce = ""
	}

	u.RawQuery = q.Encode()

	return &AuthorizationRequest{
		URL:         u.String(),
		State:       state,
		Nonce:       nonce,
		PKCE:        pkce,
		RedirectURI: redirectURI,
		Permissions: permissions,
	}, nil
}

// ParseCallback extracts the authorization code from the redirect URL the
// browser returned to.
func (r *AuthorizationRequest) ParseCallback(callbackURL string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", newError(ReasonMalformedRedirectURL, "", err)
	}

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", newError(ReasonMalformedRedirectURL, "", err)
	}

	if e := q.Get("error"); e != "" {
		detail := e
		if d := q.Get("error_description"); d != "" {
			detail += ": " + d
		}

		if e == "access_denied" {
			return "", newError(ReasonUserCancelled, detail, nil)
		}

		return "", newError(ReasonWebLoginError, detail, nil)
	}

	if q.Get("state") != r.State {
		return "", newError(ReasonResponseStateValueNotMatching, "", nil)
	}

	code := q.Get("code")
	if code == "" {
		return "", newError(ReasonLackOfAuthorizationCode, "", nil)
	}

	return code, nil
}

// Parameters returns the LoginParameters for completing r with code.
func (r *AuthorizationRequest) Parameters(code string) LoginParameters {
	return LoginParameters{
		Code:         code,
		CodeVerifier: r.PKCE.Verifier,
		RedirectURI:  r.RedirectURI,
		Permissions:  r.Permissions,
		Nonce:        r.Nonce,
	}
}

// CompleteLogin exchanges the code, verifies the identity token when one
// was requested, and stores the credential.
func (l *Login) CompleteLogin(ctx context.Context, params LoginParameters) (*LoginResult, error) {
	token, err := l.api.ExchangeToken(ctx, params.Code, params.CodeVerifier, params.RedirectURI, params.OptionalRedirectURI)
	if err != nil {
		return nil, err
	}

	if slices.Contains(params.Permissions, PermissionOpenID) {
		if token.IDTokenRaw == "" {
			return nil, newError(ReasonLackOfIDToken, "", nil)
		}

		verified, err := l.verifyIDToken(ctx, token.IDTokenRaw, params.Nonce)
		if err != nil {
			return nil, err
		}

		token.IDToken = verified
	}

	if err := l.store.SetCurrentToken(token); err != nil {
		return nil, err
	}

	l.logger.Info("login completed",
		slog.String("channel_id", l.channelID),
		slog.Int("permissions", len(token.Permissions)),
	)

	return &LoginResult{AccessToken: token, Permissions: token.Permissions}, nil
}

// Logout revokes the current refresh token, which also invalidates its
// access tokens, and removes the stored credential. With no stored token it
// does nothing.
func (l *Login) Logout(ctx context.Context) error {
	current := l.store.Current()
	if current == nil {
		return nil
	}

	if current.refreshToken != "" {
		return l.api.RevokeRefreshToken(ctx, "")
	}

	return l.api.RevokeAccessToken(ctx, "")
}

type keySetResult struct {
	issuer string
	keys   *jose.JWKSet
}

// keySet fetches the discovery document and its JWKS. Concurrent callers
// share one in-flight fetch. The fetch is detached from the caller that
// started it and bounded by the HTTP client timeout; each caller stops
// waiting when its own ctx ends.
func (l *Login) keySet(ctx context.Context) (*keySetResult, error) {
	fetchCtx := context.WithoutCancel(ctx)

	ch := l.keys.DoChan(l.discoveryURL, func() (interface{}, error) {
		var doc DiscoveryDocument
		if err := l.session.Send(fetchCtx, GetOpenIDDiscoveryDocumentRequest{DiscoveryURL: l.discoveryURL}, &doc); err != nil {
			return nil, err
		}

		if doc.JWKSURI == "" {
			return nil, newError(ReasonMissingURL, "discovery document has no jwks_uri", nil)
		}

		var raw json.RawMessage
		if err := l.session.Send(fetchCtx, GetJWKSetRequest{JWKSURI: doc.JWKSURI}, &raw); err != nil {
			return nil, err
		}

		keys, err := jose.ParseJWKSet(raw, l.logger)
		if err != nil {
			return nil, fromCrypto(err)
		}

		return &keySetResult{issuer: doc.Issuer, keys: keys}, nil
	})

	select {
	case <-ctx.Done():
		return nil, newError(ReasonURLSessionError, "waiting for key set", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		if res.Shared {
			l.logger.Debug("shared in-flight key set fetch")
		}

		return res.Val.(*keySetResult), nil
	}
}

func (l *Login) verifyIDToken(ctx context.Context, raw, nonce string) (*IDToken, error) {
	ks, err := l.keySet(ctx)
	if err != nil {
		return nil, err
	}

	verified, err := jose.VerifyIDToken(raw, ks.keys, jose.Expectations{
		Issuer:    ks.issuer,
		ChannelID: l.channelID,
		Nonce:     nonce,
		Leeway:    l.leeway,
		Now:       l.now,
	})
	if err != nil {
		return nil, fromCrypto(err)
	}

	return verified, nil
}
