package linesdk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverTokenResponse = `{
	"access_token": "eyJhbGciOiJIUzI1NiJ9.at",
	"expires_in": 2592000,
	"refresh_token": "rt-1",
	"scope": "profile openid",
	"token_type": "Bearer"
}`

func TestAccessToken_DecodeStampsCreatedAt(t *testing.T) {
	freezeNow(t, testNow)

	var tok AccessToken
	require.NoError(t, json.Unmarshal([]byte(serverTokenResponse), &tok))

	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.at", tok.Value)
	assert.Equal(t, 30*24*time.Hour, tok.ExpiresIn)
	assert.True(t, testNow.Equal(tok.CreatedAt))
	assert.Equal(t, testNow.Add(30*24*time.Hour), tok.ExpiresAt())
	assert.Equal(t, []LoginPermission{PermissionProfile, PermissionOpenID}, tok.Permissions)
	assert.Equal(t, "rt-1", tok.refreshToken)
	assert.Nil(t, tok.IDToken)
}

func TestAccessToken_DecodePreservesCreatedAt(t *testing.T) {
	freezeNow(t, testNow)

	stored := `{"access_token":"a","expires_in":60,"created_at":"2025-12-24T08:00:00Z","scope":"","token_type":"Bearer"}`

	var tok AccessToken
	require.NoError(t, json.Unmarshal([]byte(stored), &tok))

	want := time.Date(2025, 12, 24, 8, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(tok.CreatedAt))
	assert.Empty(t, tok.Permissions)
}

func TestAccessToken_DecodeParsesIDToken(t *testing.T) {
	raw := signIDToken(t, "k1", testIDTokenClaims())
	body := `{"access_token":"a","expires_in":60,"id_token":"` + raw + `","scope":"openid","token_type":"Bearer"}`

	var tok AccessToken
	require.NoError(t, json.Unmarshal([]byte(body), &tok))
	require.NotNil(t, tok.IDToken)
	assert.Equal(t, raw, tok.IDTokenRaw)
	assert.Equal(t, "U1234", tok.IDToken.Payload.Subject)
	assert.Equal(t, "k1", tok.IDToken.Header.KeyID)
}

func TestAccessToken_DecodeRejectsMalformedIDToken(t *testing.T) {
	body := `{"access_token":"a","expires_in":60,"id_token":"not-a-jwt","scope":"openid","token_type":"Bearer"}`

	var tok AccessToken
	assert.Error(t, json.Unmarshal([]byte(body), &tok))
}

func TestAccessToken_MarshalOmitsRefreshToken(t *testing.T) {
	data, err := json.Marshal(testToken("a", "secret-refresh"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-refresh")
	assert.Contains(t, string(data), `"created_at"`)
}

func TestAccessToken_StoreCodecRoundTrip(t *testing.T) {
	orig := testToken("a", "rt-9")
	orig.IDTokenRaw = signIDToken(t, "k1", testIDTokenClaims())

	data, err := CurrentVersion.encode(orig)
	require.NoError(t, err)

	freezeNow(t, testNow.Add(48*time.Hour))

	decoded, err := CurrentVersion.decode(data)
	require.NoError(t, err)
	assert.True(t, orig.Equal(decoded))
	assert.Equal(t, "rt-9", decoded.refreshToken)
	assert.True(t, testNow.Equal(decoded.CreatedAt), "reload must keep the original issue time")
	require.NotNil(t, decoded.IDToken)
	assert.Equal(t, "Taro", decoded.IDToken.Payload.Name)
}

func TestAccessToken_Expired(t *testing.T) {
	tok := testToken("a", "")
	tok.ExpiresIn = time.Hour

	assert.False(t, tok.Expired(testNow.Add(59*time.Minute)))
	assert.True(t, tok.Expired(testNow.Add(time.Hour)))
}

func TestAccessToken_Equal(t *testing.T) {
	a := testToken("a", "r")
	b := testToken("a", "r")
	assert.True(t, a.Equal(b))

	b.refreshToken = "other"
	assert.False(t, a.Equal(b))

	c := testToken("a", "r")
	c.CreatedAt = testNow.In(time.FixedZone("JST", 9*3600))
	assert.True(t, a.Equal(c), "same instant in another zone")

	var nilToken *AccessToken
	assert.False(t, a.Equal(nil))
	assert.True(t, nilToken.Equal(nil))
}

func TestAccessToken_HasPermission(t *testing.T) {
	tok := testToken("a", "")
	assert.True(t, tok.HasPermission(PermissionOpenID))
	assert.False(t, tok.HasPermission(PermissionEmail))
}

func TestAccessToken_WithPreviousIDToken(t *testing.T) {
	raw := signIDToken(t, "k1", testIDTokenClaims())

	previous := testToken("old", "r")
	previous.IDTokenRaw = raw

	refreshed := testToken("new", "r2")
	carried := refreshed.withPreviousIDToken(previous)

	assert.Equal(t, "new", carried.Value)
	assert.Equal(t, raw, carried.IDTokenRaw)
	assert.Empty(t, refreshed.IDTokenRaw, "input must not be modified")

	withOwn := testToken("new", "r2")
	withOwn.IDTokenRaw = "own"
	assert.Same(t, withOwn, withOwn.withPreviousIDToken(previous))
	assert.Same(t, refreshed, refreshed.withPreviousIDToken(nil))
}
