package jose

import (
	"crypto"
	"crypto/elliptic"
	"encoding/json"
	"fmt"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// KeyType is the JWK "kty" value.
type KeyType string

const (
	KeyTypeRSA KeyType = "RSA"
	KeyTypeEC  KeyType = "EC"
)

// Algorithm is a JWA signature algorithm. Only the six asymmetric
// algorithms the login server may use are accepted.
type Algorithm string

const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

type algorithmSpec struct {
	hash    crypto.Hash
	keyType KeyType
	method  jwt.SigningMethod
}

var algorithms = map[Algorithm]algorithmSpec{
	RS256: {crypto.SHA256, KeyTypeRSA, jwt.SigningMethodRS256},
	RS384: {crypto.SHA384, KeyTypeRSA, jwt.SigningMethodRS384},
	RS512: {crypto.SHA512, KeyTypeRSA, jwt.SigningMethodRS512},
	ES256: {crypto.SHA256, KeyTypeEC, jwt.SigningMethodES256},
	ES384: {crypto.SHA384, KeyTypeEC, jwt.SigningMethodES384},
	ES512: {crypto.SHA512, KeyTypeEC, jwt.SigningMethodES512},
}

// ParseAlgorithm validates s against the supported set.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(s)
	if _, ok := algorithms[a]; !ok {
		return "", cryptoerr.New(cryptoerr.ErrUnsupportedAlgorithm, fmt.Sprintf("alg=%q", s))
	}

	return a, nil
}

// Hash returns the digest function the algorithm signs over.
func (a Algorithm) Hash() crypto.Hash { return algorithms[a].hash }

// KeyType returns the key family that can verify this algorithm.
func (a Algorithm) KeyType() KeyType { return algorithms[a].keyType }

// SigningMethod returns the jwt signing method used to verify signatures.
func (a Algorithm) SigningMethod() jwt.SigningMethod { return algorithms[a].method }

func (a *Algorithm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return cryptoerr.Wrap(cryptoerr.ErrDecodingFailed, "alg", err)
	}

	parsed, err := ParseAlgorithm(s)
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// Curve is a JWK "crv" value.
type Curve string

const (
	P256 Curve = "P-256"
	P384 Curve = "P-384"
	P521 Curve = "P-521"
)

// ParseCurve validates s against the supported curves.
func ParseCurve(s string) (Curve, error) {
	switch c := Curve(s); c {
	case P256, P384, P521:
		return c, nil
	default:
		return "", cryptoerr.New(cryptoerr.ErrUnsupportedCurve, fmt.Sprintf("crv=%q", s))
	}
}

// CoordinateOctetLength is the fixed byte length of an x or y coordinate.
func (c Curve) CoordinateOctetLength() int {
	switch c {
	case P256:
		return 32
	case P384:
		return 48
	case P521:
		return 66
	default:
		return 0
	}
}

func (c Curve) elliptic() elliptic.Curve {
	switch c {
	case P256:
		return elliptic.P256()
	case P384:
		return elliptic.P384()
	case P521:
		return elliptic.P521()
	default:
		return nil
	}
}
