package linesdk

import (
	"log/slog"
	"net/http"
	"time"
)

// Options configures Setup.
type Options struct {
	ChannelID          string
	APIHost            string
	AuthorizeEndpoint  string
	OpenIDDiscoveryURL string
	IDTokenLeeway      time.Duration

	// Storage holds the credential; use a state.Service opened under
	// CurrentVersion.ServiceName(bundleID).
	Storage SecureStorage

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SDK bundles the components for one channel.
type SDK struct {
	Events  *Events
	Store   *AccessTokenStore
	Session *Session
	Auth    *AuthAPI
	Login   *Login
}

// Setup creates the SDK for opts.ChannelID and loads any stored token.
func Setup(opts Options) (*SDK, error) {
	if opts.ChannelID == "" {
		return nil, newError(ReasonParameterError, "channel ID is required", nil)
	}

	if opts.Storage == nil {
		return nil, newError(ReasonParameterError, "storage is required", nil)
	}

	if opts.APIHost == "" {
		opts.APIHost = "api.line.me"
	}

	if opts.OpenIDDiscoveryURL == "" {
		opts.OpenIDDiscoveryURL = "https://access.line.me/.well-known/openid-configuration"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events := NewEvents()
	store := NewAccessTokenStore(opts.ChannelID, opts.Storage, events, logger)

	session := NewSession(opts.APIHost, opts.HTTPClient, logger)
	session.token = store.Current

	api := NewAuthAPI(opts.ChannelID, session, store, logger)
	login := NewLogin(LoginOptions{
		ChannelID:         opts.ChannelID,
		AuthorizeEndpoint: opts.AuthorizeEndpoint,
		DiscoveryURL:      opts.OpenIDDiscoveryURL,
		Leeway:            opts.IDTokenLeeway,
	}, api, session, store, logger)

	return &SDK{
		Events:  events,
		Store:   store,
		Session: session,
		Auth:    api,
		Login:   login,
	}, nil
}
