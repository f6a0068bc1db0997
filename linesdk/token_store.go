package linesdk

import (
	"log/slog"
	"sync"
)

// AccessTokenStore owns the current credential. It is the only writer of
// the stored token and publishes a change event after every successful
// mutation.
type AccessTokenStore struct {
	mu sync.Mutex

	channelID string
	version   Version
	storage   SecureStorage
	events    *Events
	logger    *slog.Logger

	current *AccessToken
}

// NewAccessTokenStore creates a store and loads any token previously saved
// for channelID. A storage read or decode failure is logged and leaves the
// store empty: an unreadable credential means the user is not logged in.
func NewAccessTokenStore(channelID string, storage SecureStorage, events *Events, logger *slog.Logger) *AccessTokenStore {
	if logger == nil {
		logger = slog.Default()
	}

	if events == nil {
		events = NewEvents()
	}

	s := &AccessTokenStore{
		channelID: channelID,
		version:   CurrentVersion,
		storage:   storage,
		events:    events,
		logger:    logger,
	}
	s.hydrate()

	return s
}

func (s *AccessTokenStore) key() string {
	return s.version.StorageKey(s.channelID)
}

func (s *AccessTokenStore) hydrate() {
	data, err := s.storage.Get(s.key())
	if err != nil {
		s.logger.Warn("reading stored access token failed, treating as logged out",
			slog.String("key", s.key()),
			slog.String("error", err.Error()),
		)

		return
	}

	if data == nil {
		s.logger.Debug("no stored access token", slog.String("key", s.key()))
		return
	}

	token, err := s.version.decode(data)
	if err != nil {
		s.logger.Warn("stored access token is corrupt, treating as logged out",
			slog.String("key", s.key()),
			slog.String("error", err.Error()),
		)

		return
	}

	s.current = token
	s.logger.Debug("loaded stored access token",
		slog.String("key", s.key()),
		slog.Time("expires_at", token.ExpiresAt()),
	)
}

// Current returns the current token, or nil when logged out.
func (s *AccessTokenStore) Current() *AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Events returns the registry this store publishes to.
func (s *AccessTokenStore) Events() *Events {
	return s.events
}

// SetCurrentToken persists token and makes it current. Storing a token
// equal to the current one does nothing. The token is written to storage
// before memory is updated, so observers never see a token that failed to
// save.
func (s *AccessTokenStore) SetCurrentToken(token *AccessToken) error {
	if token == nil {
		return newError(ReasonParameterError, "token must not be nil", nil)
	}

	s.mu.Lock()

	if token.Equal(s.current) {
		s.mu.Unlock()
		return nil
	}

	data, err := s.version.encode(token)
	if err != nil {
		s.mu.Unlock()
		return newError(ReasonJSONEncodingFailed, "encoding access token", err)
	}

	if err := s.storage.Set(s.key(), data); err != nil {
		s.mu.Unlock()
		return newError(ReasonKeychainOperation, "saving access token", err)
	}

	old := s.current
	s.current = token
	s.mu.Unlock()

	s.logger.Info("access token updated",
		slog.String("channel_id", s.channelID),
		slog.Time("expires_at", token.ExpiresAt()),
	)
	s.events.publishUpdated(TokenUpdated{New: token, Old: old})

	return nil
}

// RemoveCurrentAccessToken deletes the stored token. It does nothing when
// storage holds no token. In-memory state is cleared only after the delete
// succeeds; on failure the token stays current and a later call retries.
func (s *AccessTokenStore) RemoveCurrentAccessToken() error {
	s.mu.Lock()

	exists, err := s.storage.Contains(s.key())
	if err != nil {
		s.mu.Unlock()
		return newError(ReasonKeychainOperation, "checking stored access token", err)
	}

	if !exists {
		s.mu.Unlock()
		return nil
	}

	if err := s.storage.Remove(s.key()); err != nil {
		s.mu.Unlock()
		return newError(ReasonKeychainOperation, "removing access token", err)
	}

	removed := s.current
	s.current = nil
	s.mu.Unlock()

	s.logger.Info("access token removed", slog.String("channel_id", s.channelID))

	if removed != nil {
		s.events.publishRemoved(TokenRemoved{Token: removed})
	}

	return nil
}
