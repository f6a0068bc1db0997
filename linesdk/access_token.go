package linesdk

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/alexjbarnes/linesdk-go/internal/jose"
)

// IDToken is a decoded identity token.
type IDToken = jose.IDToken

// IDTokenPayload holds the identity token's claims.
type IDTokenPayload = jose.IDTokenPayload

// LoginPermission is an OAuth scope granted to an access token.
type LoginPermission string

const (
	PermissionOpenID          LoginPermission = "openid"
	PermissionProfile         LoginPermission = "profile"
	PermissionEmail           LoginPermission = "email"
	PermissionFriends         LoginPermission = "friends"
	PermissionGroups          LoginPermission = "groups"
	PermissionMessageWrite    LoginPermission = "message.write"
	PermissionOneTimeShare    LoginPermission = "onetime.share"
	PermissionOpenChatInfo    LoginPermission = "openchat.info"
	PermissionOpenChatCreate  LoginPermission = "openchat.create.join"
	PermissionOpenChatTermAgr LoginPermission = "openchat.term.agreement.status"
)

func parsePermissions(scope string) []LoginPermission {
	fields := strings.Fields(scope)
	perms := make([]LoginPermission, 0, len(fields))

	for _, f := range fields {
		perms = append(perms, LoginPermission(f))
	}

	return perms
}

func joinPermissions(perms []LoginPermission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}

	return strings.Join(parts, " ")
}

// now is replaced in tests.
var now = time.Now

// AccessToken is an issued credential and the identity claims that came
// with it.
type AccessToken struct {
	Value     string
	ExpiresIn time.Duration
	CreatedAt time.Time

	// IDToken is parsed from IDTokenRaw; it is nil when no identity token
	// was issued.
	IDToken    *IDToken
	IDTokenRaw string

	Permissions []LoginPermission
	TokenType   string

	refreshToken string
}

// ExpiresAt is CreatedAt plus ExpiresIn.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.ExpiresIn)
}

// Expired reports whether the token's lifetime has passed at instant at.
func (t *AccessToken) Expired(at time.Time) bool {
	return !at.Before(t.ExpiresAt())
}

// HasPermission reports whether p was granted.
func (t *AccessToken) HasPermission(p LoginPermission) bool {
	return slices.Contains(t.Permissions, p)
}

// Equal reports full structural equality, including the refresh token.
func (t *AccessToken) Equal(other *AccessToken) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.Value == other.Value &&
		t.ExpiresIn == other.ExpiresIn &&
		t.CreatedAt.Equal(other.CreatedAt) &&
		t.IDTokenRaw == other.IDTokenRaw &&
		t.refreshToken == other.refreshToken &&
		slices.Equal(t.Permissions, other.Permissions) &&
		t.TokenType == other.TokenType
}

// withPreviousIDToken returns t, or a copy of t carrying previous's identity
// token when the refresh response did not include one. Until the next full
// login the earlier identity claims stay authoritative.
func (t *AccessToken) withPreviousIDToken(previous *AccessToken) *AccessToken {
	if t.IDTokenRaw != "" || previous == nil || previous.IDTokenRaw == "" {
		return t
	}

	refreshed := *t
	refreshed.IDTokenRaw = previous.IDTokenRaw
	refreshed.IDToken = previous.IDToken

	return &refreshed
}

// accessTokenJSON is both the token endpoint response and the stored form.
// Server responses never carry created_at.
type accessTokenJSON struct {
	AccessToken  string     `json:"access_token"`
	ExpiresIn    int64      `json:"expires_in"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	IDToken      string     `json:"id_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope"`
	TokenType    string     `json:"token_type"`
}

// UnmarshalJSON stamps CreatedAt with the current time when the payload has
// none (a fresh server response) and preserves it otherwise (a reload).
func (t *AccessToken) UnmarshalJSON(data []byte) error {
	var raw accessTokenJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded := AccessToken{
		Value:        raw.AccessToken,
		ExpiresIn:    time.Duration(raw.ExpiresIn) * time.Second,
		IDTokenRaw:   raw.IDToken,
		Permissions:  parsePermissions(raw.Scope),
		TokenType:    raw.TokenType,
		refreshToken: raw.RefreshToken,
	}

	if raw.CreatedAt != nil {
		decoded.CreatedAt = *raw.CreatedAt
	} else {
		decoded.CreatedAt = now()
	}

	if raw.IDToken != "" {
		idToken, err := jose.ParseIDToken(raw.IDToken)
		if err != nil {
			return err
		}

		decoded.IDToken = idToken
	}

	*t = decoded

	return nil
}

// MarshalJSON writes the token in the token-endpoint shape with created_at
// added. The refresh token is left out; only the store codec persists it.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toJSON(false))
}

func (t *AccessToken) toJSON(withRefreshToken bool) accessTokenJSON {
	created := t.CreatedAt

	out := accessTokenJSON{
		AccessToken: t.Value,
		ExpiresIn:   int64(t.ExpiresIn / time.Second),
		CreatedAt:   &created,
		IDToken:     t.IDTokenRaw,
		Scope:       joinPermissions(t.Permissions),
		TokenType:   t.TokenType,
	}
	if withRefreshToken {
		out.RefreshToken = t.refreshToken
	}

	return out
}
