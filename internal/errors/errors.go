// Package errors defines the failures raised by key reconstruction and
// identity token verification. These never leave the SDK core: the public
// linesdk package wraps every CryptoError into an authorize failure.
package errors

import (
	"errors"
	"fmt"
)

// Family groups crypto failure reasons.
type Family string

const (
	FamilyAlgorithms Family = "algorithms"
	FamilyJWT        Family = "jwt"
	FamilyJWK        Family = "jwk"
	FamilyGeneral    Family = "general"
)

// Algorithm errors.
var (
	ErrInvalidDERKey        = errors.New("invalid DER key data")
	ErrCreateKeyFailed      = errors.New("creating public key failed")
	ErrVerifyingFailed      = errors.New("signature verification failed")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// JWT errors.
var (
	ErrMalformedJWT               = errors.New("malformed JWT")
	ErrUnsupportedHeaderAlgorithm = errors.New("unsupported JWT header algorithm")
	ErrClaimVerifyingFailed       = errors.New("JWT claim verification failed")
	ErrKeyNotFound                = errors.New("no public key matches the JWT key ID")
)

// JWK errors.
var (
	ErrUnsupportedKeyType = errors.New("unsupported JWK key type")
	ErrUnsupportedCurve   = errors.New("unsupported elliptic curve")
	ErrMissingParameter   = errors.New("missing JWK parameter")
)

// General errors.
var (
	ErrBase64ConversionFailed = errors.New("base64url conversion failed")
	ErrDecodingFailed         = errors.New("decoding failed")
)

var families = map[error]Family{
	ErrInvalidDERKey:              FamilyAlgorithms,
	ErrCreateKeyFailed:            FamilyAlgorithms,
	ErrVerifyingFailed:            FamilyAlgorithms,
	ErrUnsupportedAlgorithm:       FamilyAlgorithms,
	ErrMalformedJWT:               FamilyJWT,
	ErrUnsupportedHeaderAlgorithm: FamilyJWT,
	ErrClaimVerifyingFailed:       FamilyJWT,
	ErrKeyNotFound:                FamilyJWT,
	ErrUnsupportedKeyType:         FamilyJWK,
	ErrUnsupportedCurve:           FamilyJWK,
	ErrMissingParameter:           FamilyJWK,
	ErrBase64ConversionFailed:     FamilyGeneral,
	ErrDecodingFailed:             FamilyGeneral,
}

// CryptoError carries one of the sentinel reasons above, an optional
// detail, and the underlying cause if there is one.
type CryptoError struct {
	Reason error
	Detail string
	Err    error
}

// New returns a CryptoError for reason with a detail message.
func New(reason error, detail string) *CryptoError {
	return &CryptoError{Reason: reason, Detail: detail}
}

// Wrap returns a CryptoError for reason caused by err.
func Wrap(reason error, detail string, err error) *CryptoError {
	return &CryptoError{Reason: reason, Detail: detail, Err: err}
}

func (e *CryptoError) Error() string {
	msg := fmt.Sprintf("crypto %s: %v", e.Family(), e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the reason sentinel and the cause to errors.Is.
func (e *CryptoError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}

	return []error{e.Reason, e.Err}
}

// Family reports which group the reason belongs to.
func (e *CryptoError) Family() Family {
	if f, ok := families[e.Reason]; ok {
		return f
	}

	return FamilyGeneral
}

// AsCrypto returns the first CryptoError in err's chain.
func AsCrypto(err error) (*CryptoError, bool) {
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce, true
	}

	return nil, false
}
