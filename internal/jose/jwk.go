package jose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"fmt"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
)

// Parameters holds the type-specific fields of a JWK. Exactly one of
// *RSAParameters or *ECDSAParameters backs a decoded key.
type Parameters interface {
	// KeyData returns the bytes a public-key constructor consumes.
	KeyData() ([]byte, error)

	// PublicKey reconstructs the verifier key from KeyData.
	PublicKey() (crypto.PublicKey, error)
}

// JWK is a single JSON Web Key.
type JWK struct {
	KeyType    KeyType
	KeyUse     string
	KeyID      string
	Parameters Parameters
}

// AsRSA returns the RSA parameters, or false for any other key type.
func (k JWK) AsRSA() (*RSAParameters, bool) {
	p, ok := k.Parameters.(*RSAParameters)
	return p, ok
}

// AsEC returns the EC parameters, or false for any other key type.
func (k JWK) AsEC() (*ECDSAParameters, bool) {
	p, ok := k.Parameters.(*ECDSAParameters)
	return p, ok
}

// PublicKey reconstructs the key described by the JWK.
func (k JWK) PublicKey() (crypto.PublicKey, error) {
	if k.Parameters == nil {
		return nil, cryptoerr.New(cryptoerr.ErrMissingParameter, "no key parameters")
	}

	return k.Parameters.PublicKey()
}

type rawJWK struct {
	KeyType   string `json:"kty"`
	Use       string `json:"use,omitempty"`
	KeyID     string `json:"kid,omitempty"`
	Algorithm string `json:"alg,omitempty"`
	N         string `json:"n,omitempty"`
	E         string `json:"e,omitempty"`
	Curve     string `json:"crv,omitempty"`
	X         string `json:"x,omitempty"`
	Y         string `json:"y,omitempty"`
}

// UnmarshalJSON dispatches on "kty". RSA and EC are supported; any other
// type fails with ErrUnsupportedKeyType.
func (k *JWK) UnmarshalJSON(data []byte) error {
	var raw rawJWK
	if err := json.Unmarshal(data, &raw); err != nil {
		return cryptoerr.Wrap(cryptoerr.ErrDecodingFailed, "jwk", err)
	}

	decoded := JWK{
		KeyType: KeyType(raw.KeyType),
		KeyUse:  raw.Use,
		KeyID:   raw.KeyID,
	}

	switch decoded.KeyType {
	case KeyTypeRSA:
		if raw.N == "" || raw.E == "" {
			return cryptoerr.New(cryptoerr.ErrMissingParameter, "RSA key requires n and e")
		}

		alg, err := ParseAlgorithm(raw.Algorithm)
		if err != nil {
			return err
		}

		decoded.Parameters = &RSAParameters{Modulus: raw.N, Exponent: raw.E, Algorithm: alg}
	case KeyTypeEC:
		if raw.X == "" || raw.Y == "" {
			return cryptoerr.New(cryptoerr.ErrMissingParameter, "EC key requires x and y")
		}

		crv, err := ParseCurve(raw.Curve)
		if err != nil {
			return err
		}

		decoded.Parameters = &ECDSAParameters{X: raw.X, Y: raw.Y, Curve: crv}
	default:
		return cryptoerr.New(cryptoerr.ErrUnsupportedKeyType, fmt.Sprintf("kty=%q", raw.KeyType))
	}

	*k = decoded

	return nil
}

// MarshalJSON writes the key back in JWK form.
func (k JWK) MarshalJSON() ([]byte, error) {
	raw := rawJWK{KeyType: string(k.KeyType), Use: k.KeyUse, KeyID: k.KeyID}

	switch p := k.Parameters.(type) {
	case *RSAParameters:
		raw.N, raw.E, raw.Algorithm = p.Modulus, p.Exponent, string(p.Algorithm)
	case *ECDSAParameters:
		raw.X, raw.Y, raw.Curve = p.X, p.Y, string(p.Curve)
	}

	return json.Marshal(raw)
}

// RSAParameters are the base64url modulus and exponent of an RSA key.
type RSAParameters struct {
	Modulus   string
	Exponent  string
	Algorithm Algorithm
}

// KeyData returns the PKCS#1 RSAPublicKey DER: a SEQUENCE of the modulus
// and exponent INTEGERs.
func (p *RSAParameters) KeyData() ([]byte, error) {
	n, err := decodeBase64URL("modulus", p.Modulus)
	if err != nil {
		return nil, err
	}

	e, err := decodeBase64URL("exponent", p.Exponent)
	if err != nil {
		return nil, err
	}

	return EncodeSequence(EncodeInteger(n), EncodeInteger(e)), nil
}

func (p *RSAParameters) PublicKey() (crypto.PublicKey, error) {
	der, err := p.KeyData()
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.ErrCreateKeyFailed, "rsa", err)
	}

	return key, nil
}

// ECDSAParameters are the base64url affine coordinates of an EC key.
type ECDSAParameters struct {
	X     string
	Y     string
	Curve Curve
}

// KeyData returns the X9.62 uncompressed point 0x04 || x || y. Its length
// is always 1 + 2*Curve.CoordinateOctetLength().
func (p *ECDSAParameters) KeyData() ([]byte, error) {
	size := p.Curve.CoordinateOctetLength()
	if size == 0 {
		return nil, cryptoerr.New(cryptoerr.ErrUnsupportedCurve, string(p.Curve))
	}

	x, err := decodeBase64URL("x", p.X)
	if err != nil {
		return nil, err
	}

	y, err := decodeBase64URL("y", p.Y)
	if err != nil {
		return nil, err
	}

	if x, err = fitCoordinate("x", x, size); err != nil {
		return nil, err
	}

	if y, err = fitCoordinate("y", y, size); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+2*size)
	out = append(out, 0x04)
	out = append(out, x...)

	return append(out, y...), nil
}

func (p *ECDSAParameters) PublicKey() (crypto.PublicKey, error) {
	point, err := p.KeyData()
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.ParseUncompressedPublicKey(p.Curve.elliptic(), point)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.ErrCreateKeyFailed, "ec", err)
	}

	return key, nil
}

// fitCoordinate strips a single leading 0x00 sign byte from an oversized
// coordinate. Any other length mismatch is an error.
func fitCoordinate(name string, b []byte, size int) ([]byte, error) {
	switch {
	case len(b) == size:
		return b, nil
	case len(b) == size+1 && b[0] == 0x00:
		return b[1:], nil
	default:
		return nil, cryptoerr.New(cryptoerr.ErrInvalidDERKey,
			fmt.Sprintf("%s coordinate is %d bytes, want %d", name, len(b), size))
	}
}
