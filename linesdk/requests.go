package linesdk

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// SDKVersion is reported to the token endpoint as client_version.
const SDKVersion = "5.11.0"

const (
	pathToken  = "/oauth2/v2.1/token"
	pathRevoke = "/oauth2/v2.1/revoke"
	pathVerify = "/oauth2/v2.1/verify"
)

// Authentication says what credential a request carries.
type Authentication int

const (
	// AuthNone sends the request without an Authorization header.
	AuthNone Authentication = iota
	// AuthToken adds the current access token as a bearer credential.
	AuthToken
)

// Request describes one API call. The session turns it into an HTTP
// request, sends it and decodes the response.
type Request interface {
	Method() string
	Path() string
	Authentication() Authentication
	Parameters() map[string]string
}

// AbsoluteURLRequest is a Request whose target is a full URL rather than a
// path on the API host.
type AbsoluteURLRequest interface {
	Request
	URL() string
}

// ResponseTransformer rewrites a successful response body before it is
// decoded.
type ResponseTransformer interface {
	TransformResponse(body []byte) []byte
}

// StatusAcceptor lets a request treat non-2xx statuses as success.
type StatusAcceptor interface {
	AcceptStatus(code int) bool
}

// emptyBodyAsJSON rewrites an empty body to "{}". The revoke endpoint
// signals success with no content at all.
type emptyBodyAsJSON struct{}

func (emptyBodyAsJSON) TransformResponse(body []byte) []byte {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}")
	}

	return body
}

// acceptBadRequest treats 400 as success. Revoking a token the server
// already considers invalid leaves the caller in the state it asked for.
type acceptBadRequest struct{}

func (acceptBadRequest) AcceptStatus(code int) bool {
	return code == http.StatusBadRequest
}

// PostExchangeTokenRequest trades an authorization code for a token.
type PostExchangeTokenRequest struct {
	ChannelID           string
	Code                string
	CodeVerifier        string
	RedirectURI         string
	OptionalRedirectURI string
}

func (PostExchangeTokenRequest) Method() string                 { return http.MethodPost }
func (PostExchangeTokenRequest) Path() string                   { return pathToken }
func (PostExchangeTokenRequest) Authentication() Authentication { return AuthNone }

func (r PostExchangeTokenRequest) Parameters() map[string]string {
	p := map[string]string{
		"client_id":         r.ChannelID,
		"grant_type":        "authorization_code",
		"code":              r.Code,
		"code_verifier":     r.CodeVerifier,
		"redirect_uri":      r.RedirectURI,
		"client_version":    "LINE SDK Go v" + SDKVersion,
		"id_token_key_type": "JWK",
	}
	if r.OptionalRedirectURI != "" {
		p["optional_redirect_uri"] = r.OptionalRedirectURI
	}

	return p
}

// PostRefreshTokenRequest exchanges a refresh token for a new access token.
type PostRefreshTokenRequest struct {
	ChannelID    string
	RefreshToken string
}

func (PostRefreshTokenRequest) Method() string                 { return http.MethodPost }
func (PostRefreshTokenRequest) Path() string                   { return pathToken }
func (PostRefreshTokenRequest) Authentication() Authentication { return AuthNone }

func (r PostRefreshTokenRequest) Parameters() map[string]string {
	return map[string]string{
		"client_id":     r.ChannelID,
		"grant_type":    "refresh_token",
		"refresh_token": r.RefreshToken,
	}
}

// PostRevokeTokenRequest invalidates an access token.
type PostRevokeTokenRequest struct {
	emptyBodyAsJSON
	acceptBadRequest

	ChannelID   string
	AccessToken string
}

func (PostRevokeTokenRequest) Method() string                 { return http.MethodPost }
func (PostRevokeTokenRequest) Path() string                   { return pathRevoke }
func (PostRevokeTokenRequest) Authentication() Authentication { return AuthNone }

func (r PostRevokeTokenRequest) Parameters() map[string]string {
	return map[string]string{
		"client_id":    r.ChannelID,
		"access_token": r.AccessToken,
	}
}

// PostRevokeRefreshTokenRequest invalidates a refresh token and every access
// token issued from it.
type PostRevokeRefreshTokenRequest struct {
	emptyBodyAsJSON
	acceptBadRequest

	ChannelID    string
	RefreshToken string
}

func (PostRevokeRefreshTokenRequest) Method() string                 { return http.MethodPost }
func (PostRevokeRefreshTokenRequest) Path() string                   { return pathRevoke }
func (PostRevokeRefreshTokenRequest) Authentication() Authentication { return AuthNone }

func (r PostRevokeRefreshTokenRequest) Parameters() map[string]string {
	return map[string]string{
		"client_id":     r.ChannelID,
		"refresh_token": r.RefreshToken,
	}
}

// GetVerifyTokenRequest asks the server about a token's validity. The token
// travels as a query parameter, not as an Authorization header.
type GetVerifyTokenRequest struct {
	AccessToken string
}

func (GetVerifyTokenRequest) Method() string                 { return http.MethodGet }
func (GetVerifyTokenRequest) Path() string                   { return pathVerify }
func (GetVerifyTokenRequest) Authentication() Authentication { return AuthNone }

func (r GetVerifyTokenRequest) Parameters() map[string]string {
	return map[string]string{"access_token": r.AccessToken}
}

// AccessTokenVerifyResult is the verify endpoint's answer.
type AccessTokenVerifyResult struct {
	ChannelID   string            `json:"client_id" yaml:"channel_id"`
	ExpiresIn   time.Duration     `json:"-" yaml:"expires_in"`
	Permissions []LoginPermission `json:"-" yaml:"permissions"`
}

func (v *AccessTokenVerifyResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		ClientID  string `json:"client_id"`
		ExpiresIn int64  `json:"expires_in"`
		Scope     string `json:"scope"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.ChannelID = raw.ClientID
	v.ExpiresIn = time.Duration(raw.ExpiresIn) * time.Second
	v.Permissions = parsePermissions(raw.Scope)

	return nil
}

// GetOpenIDDiscoveryDocumentRequest fetches the provider configuration.
type GetOpenIDDiscoveryDocumentRequest struct {
	DiscoveryURL string
}

func (GetOpenIDDiscoveryDocumentRequest) Method() string                 { return http.MethodGet }
func (GetOpenIDDiscoveryDocumentRequest) Path() string                   { return "" }
func (GetOpenIDDiscoveryDocumentRequest) Authentication() Authentication { return AuthNone }
func (GetOpenIDDiscoveryDocumentRequest) Parameters() map[string]string  { return nil }
func (r GetOpenIDDiscoveryDocumentRequest) URL() string                  { return r.DiscoveryURL }

// DiscoveryDocument is the subset of the OpenID provider configuration the
// SDK reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// GetJWKSetRequest fetches the key set that signs identity tokens.
type GetJWKSetRequest struct {
	JWKSURI string
}

func (GetJWKSetRequest) Method() string                 { return http.MethodGet }
func (GetJWKSetRequest) Path() string                   { return "" }
func (GetJWKSetRequest) Authentication() Authentication { return AuthNone }
func (GetJWKSetRequest) Parameters() map[string]string  { return nil }
func (r GetJWKSetRequest) URL() string                  { return r.JWKSURI }
