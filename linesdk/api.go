package linesdk

import (
	"context"
	"log/slog"
)

// AuthAPI performs the token endpoint operations for one channel.
type AuthAPI struct {
	channelID string
	session   *Session
	store     *AccessTokenStore
	logger    *slog.Logger
}

// NewAuthAPI wires the API to a session and the store it keeps current.
func NewAuthAPI(channelID string, session *Session, store *AccessTokenStore, logger *slog.Logger) *AuthAPI {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthAPI{
		channelID: channelID,
		session:   session,
		store:     store,
		logger:    logger,
	}
}

// ExchangeToken trades an authorization code for a token. The result is
// not stored; CompleteLogin stores it after verifying its identity token.
func (a *AuthAPI) ExchangeToken(ctx context.Context, code, codeVerifier, redirectURI, optionalRedirectURI string) (*AccessToken, error) {
	req := PostExchangeTokenRequest{
		ChannelID:           a.channelID,
		Code:                code,
		CodeVerifier:        codeVerifier,
		RedirectURI:         redirectURI,
		OptionalRedirectURI: optionalRedirectURI,
	}

	var token AccessToken
	if err := a.session.Send(ctx, req, &token); err != nil {
		return nil, err
	}

	return &token, nil
}

// RefreshAccessToken obtains a new access token with the current refresh
// token and stores it. A refresh response without an identity token keeps
// the previous one.
func (a *AuthAPI) RefreshAccessToken(ctx context.Context) (*AccessToken, error) {
	current := a.store.Current()
	if current == nil || current.refreshToken == "" {
		return nil, newError(ReasonLackOfAccessToken, "no refresh token stored", nil)
	}

	req := PostRefreshTokenRequest{
		ChannelID:    a.channelID,
		RefreshToken: current.refreshToken,
	}

	var refreshed AccessToken
	if err := a.session.Send(ctx, req, &refreshed); err != nil {
		return nil, err
	}

	token := refreshed.withPreviousIDToken(current)
	if err := a.store.SetCurrentToken(token); err != nil {
		return nil, err
	}

	a.logger.Info("access token refreshed", slog.Time("expires_at", token.ExpiresAt()))

	return token, nil
}

// RevokeAccessToken invalidates token, or the current token when token is
// empty. Revoking the current token also removes it from the store.
func (a *AuthAPI) RevokeAccessToken(ctx context.Context, token string) error {
	current := a.store.Current()
	if token == "" {
		if current == nil {
			return newError(ReasonLackOfAccessToken, "no access token to revoke", nil)
		}

		token = current.Value
	}

	var out struct{}

	req := PostRevokeTokenRequest{ChannelID: a.channelID, AccessToken: token}
	if err := a.session.Send(ctx, req, &out); err != nil {
		return err
	}

	if current != nil && current.Value == token {
		return a.store.RemoveCurrentAccessToken()
	}

	return nil
}

// RevokeRefreshToken invalidates refreshToken, or the current refresh token
// when refreshToken is empty. The server also invalidates every access
// token issued from it, so revoking the current refresh token removes the
// stored token.
func (a *AuthAPI) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	current := a.store.Current()
	if refreshToken == "" {
		if current == nil || current.refreshToken == "" {
			return newError(ReasonLackOfAccessToken, "no refresh token to revoke", nil)
		}

		refreshToken = current.refreshToken
	}

	var out struct{}

	req := PostRevokeRefreshTokenRequest{ChannelID: a.channelID, RefreshToken: refreshToken}
	if err := a.session.Send(ctx, req, &out); err != nil {
		return err
	}

	if current != nil && current.refreshToken == refreshToken {
		return a.store.RemoveCurrentAccessToken()
	}

	return nil
}

// VerifyAccessToken asks the server whether token is valid, or the current
// token when token is empty.
func (a *AuthAPI) VerifyAccessToken(ctx context.Context, token string) (*AccessTokenVerifyResult, error) {
	if token == "" {
		current := a.store.Current()
		if current == nil {
			return nil, newError(ReasonLackOfAccessToken, "no access token to verify", nil)
		}

		token = current.Value
	}

	var result AccessTokenVerifyResult
	if err := a.session.Send(ctx, GetVerifyTokenRequest{AccessToken: token}, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
