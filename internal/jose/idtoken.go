package jose

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// IDTokenHeader is the JOSE header of an identity token.
type IDTokenHeader struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// IDTokenPayload holds the OpenID Connect claims issued by the login server.
type IDTokenPayload struct {
	jwt.RegisteredClaims

	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce    string           `json:"nonce,omitempty"`
	AMR      []string         `json:"amr,omitempty"`
	Name     string           `json:"name,omitempty"`
	Picture  string           `json:"picture,omitempty"`
	Email    string           `json:"email,omitempty"`
}

// IDToken is a decoded, not necessarily verified, identity token.
type IDToken struct {
	Header  IDTokenHeader
	Payload IDTokenPayload
	Raw     string
}

// ParseIDToken decodes raw without checking its signature.
func ParseIDToken(raw string) (*IDToken, error) {
	var payload IDTokenPayload

	tok, _, err := jwt.NewParser().ParseUnverified(raw, &payload)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.ErrMalformedJWT, "id token", err)
	}

	return &IDToken{
		Header:  headerFrom(tok.Header),
		Payload: payload,
		Raw:     raw,
	}, nil
}

func headerFrom(h map[string]interface{}) IDTokenHeader {
	str := func(k string) string {
		s, _ := h[k].(string)
		return s
	}

	return IDTokenHeader{Algorithm: str("alg"), KeyID: str("kid"), Type: str("typ")}
}

// Expectations are the claim values an identity token must carry.
type Expectations struct {
	Issuer    string
	ChannelID string

	// UserID and Nonce are checked only when non-empty.
	UserID string
	Nonce  string

	Leeway time.Duration
	Now    func() time.Time
}

// VerifyIDToken checks raw's signature against the key named by its "kid"
// header and then validates its claims.
func VerifyIDToken(raw string, keys *JWKSet, want Expectations) (*IDToken, error) {
	token, err := ParseIDToken(raw)
	if err != nil {
		return nil, err
	}

	alg, err := ParseAlgorithm(token.Header.Algorithm)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.ErrUnsupportedHeaderAlgorithm, token.Header.Algorithm, err)
	}

	key := keys.KeyByID(token.Header.KeyID)
	if key == nil {
		return nil, cryptoerr.New(cryptoerr.ErrKeyNotFound, fmt.Sprintf("kid=%q", token.Header.KeyID))
	}

	if key.KeyType != alg.KeyType() {
		return nil, cryptoerr.New(cryptoerr.ErrUnsupportedHeaderAlgorithm,
			fmt.Sprintf("alg %s cannot be verified with a %s key", alg, key.KeyType))
	}

	if params, ok := key.AsRSA(); ok && params.Algorithm != alg {
		return nil, cryptoerr.New(cryptoerr.ErrUnsupportedHeaderAlgorithm,
			fmt.Sprintf("alg %s does not match key %q declared for %s", alg, key.KeyID, params.Algorithm))
	}

	pub, err := key.PublicKey()
	if err != nil {
		return nil, err
	}

	now := want.Now
	if now == nil {
		now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg.SigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(want.Leeway),
		jwt.WithTimeFunc(now),
	}
	if want.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(want.Issuer))
	}

	if want.ChannelID != "" {
		opts = append(opts, jwt.WithAudience(want.ChannelID))
	}

	if want.UserID != "" {
		opts = append(opts, jwt.WithSubject(want.UserID))
	}

	var payload IDTokenPayload

	_, err = jwt.NewParser(opts...).ParseWithClaims(raw, &payload, func(t *jwt.Token) (interface{}, error) {
		switch k := pub.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unexpected key type %T", pub)
		}
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenInvalidClaims) {
			return nil, cryptoerr.Wrap(cryptoerr.ErrClaimVerifyingFailed, "", err)
		}

		return nil, cryptoerr.Wrap(cryptoerr.ErrVerifyingFailed, "", err)
	}

	if want.Nonce != "" && payload.Nonce != want.Nonce {
		return nil, cryptoerr.New(cryptoerr.ErrClaimVerifyingFailed, "nonce does not match")
	}

	token.Payload = payload

	return token, nil
}
