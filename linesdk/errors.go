package linesdk

import (
	"errors"
	"fmt"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
)

// Family is the top-level category of an SDKError.
type Family string

const (
	RequestFailed   Family = "requestFailed"
	ResponseFailed  Family = "responseFailed"
	AuthorizeFailed Family = "authorizeFailed"
	GeneralError    Family = "generalError"
)

// Reason identifies a specific failure within a family.
type Reason string

// Request construction failures.
const (
	ReasonMissingURL         Reason = "missingURL"
	ReasonLackOfAccessToken  Reason = "lackOfAccessToken"
	ReasonJSONEncodingFailed Reason = "jsonEncodingFailed"
)

// Response and transport failures.
const (
	ReasonURLSessionError           Reason = "urlSessionError"
	ReasonNonHTTPURLResponse        Reason = "nonHTTPURLResponse"
	ReasonDataParsingFailed         Reason = "dataParsingFailed"
	ReasonInvalidHTTPStatusAPIError Reason = "invalidHTTPStatusAPIError"
)

// Login and credential failures.
const (
	ReasonExhaustedLoginFlow            Reason = "exhaustedLoginFlow"
	ReasonMalformedHierarchy            Reason = "malformedHierarchy"
	ReasonUserCancelled                 Reason = "userCancelled"
	ReasonForceStopped                  Reason = "forceStopped"
	ReasonCallbackURLSchemeNotMatching  Reason = "callbackURLSchemeNotMatching"
	ReasonInvalidSourceApplication      Reason = "invalidSourceApplication"
	ReasonMalformedRedirectURL          Reason = "malformedRedirectURL"
	ReasonInvalidLineURLResultCode      Reason = "invalidLineURLResultCode"
	ReasonLackOfAuthorizationCode       Reason = "lackOfAuthorizationCode"
	ReasonResponseStateValueNotMatching Reason = "responseStateValueNotMatching"
	ReasonWebLoginError                 Reason = "webLoginError"
	ReasonKeychainOperation             Reason = "keychainOperation"
	ReasonInvalidDataInKeychain         Reason = "invalidDataInKeychain"
	ReasonLackOfIDToken                 Reason = "lackOfIDToken"
	ReasonJWTPublicKeyNotFound          Reason = "JWTPublicKeyNotFound"
	ReasonCryptoError                   Reason = "cryptoError"
)

// General failures.
const (
	ReasonConversionError Reason = "conversionError"
	ReasonParameterError  Reason = "parameterError"
)

type reasonEntry struct {
	family Family
	code   int
}

// reasonTable is the public error code contract. Codes are assigned here
// explicitly and must never be renumbered.
var reasonTable = map[Reason]reasonEntry{
	ReasonMissingURL:         {RequestFailed, 1001},
	ReasonLackOfAccessToken:  {RequestFailed, 1002},
	ReasonJSONEncodingFailed: {RequestFailed, 1003},

	ReasonURLSessionError:           {ResponseFailed, 2001},
	ReasonNonHTTPURLResponse:        {ResponseFailed, 2002},
	ReasonDataParsingFailed:         {ResponseFailed, 2003},
	ReasonInvalidHTTPStatusAPIError: {ResponseFailed, 2004},

	ReasonExhaustedLoginFlow:            {AuthorizeFailed, 3001},
	ReasonMalformedHierarchy:            {AuthorizeFailed, 3002},
	ReasonUserCancelled:                 {AuthorizeFailed, 3003},
	ReasonForceStopped:                  {AuthorizeFailed, 3004},
	ReasonCallbackURLSchemeNotMatching:  {AuthorizeFailed, 3005},
	ReasonInvalidSourceApplication:      {AuthorizeFailed, 3006},
	ReasonMalformedRedirectURL:          {AuthorizeFailed, 3007},
	ReasonInvalidLineURLResultCode:      {AuthorizeFailed, 3008},
	ReasonLackOfAuthorizationCode:       {AuthorizeFailed, 3009},
	ReasonResponseStateValueNotMatching: {AuthorizeFailed, 3010},
	ReasonWebLoginError:                 {AuthorizeFailed, 3011},
	ReasonKeychainOperation:             {AuthorizeFailed, 3012},
	ReasonInvalidDataInKeychain:         {AuthorizeFailed, 3013},
	ReasonLackOfIDToken:                 {AuthorizeFailed, 3014},
	ReasonJWTPublicKeyNotFound:          {AuthorizeFailed, 3015},
	ReasonCryptoError:                   {AuthorizeFailed, 3016},

	ReasonConversionError: {GeneralError, 4001},
	ReasonParameterError:  {GeneralError, 4002},
}

// APIError is the error payload the platform returns with a non-2xx status.
// OAuth endpoints use Error/ErrorDescription; other APIs use Message.
type APIError struct {
	Error            string           `json:"error,omitempty"`
	ErrorDescription string           `json:"error_description,omitempty"`
	Message          string           `json:"message,omitempty"`
	Details          []APIErrorDetail `json:"details,omitempty"`
}

// APIErrorDetail is one entry of APIError.Details.
type APIErrorDetail struct {
	Message  string `json:"message"`
	Property string `json:"property,omitempty"`
}

func (e *APIError) summary() string {
	switch {
	case e.Error != "" && e.ErrorDescription != "":
		return e.Error + ": " + e.ErrorDescription
	case e.Error != "":
		return e.Error
	default:
		return e.Message
	}
}

// SDKError is the only error type the SDK returns to callers. Compare with
// errors.Is against another SDKError to match on reason, or read Code for
// the stable numeric code.
type SDKError struct {
	Reason Reason
	Detail string

	// StatusCode, APIError and Raw are set for ReasonInvalidHTTPStatusAPIError.
	// APIError is nil when the body was not a recognizable error payload.
	StatusCode int
	APIError   *APIError
	Raw        string

	Err error
}

// Family returns the top-level category of the error.
func (e *SDKError) Family() Family {
	return reasonTable[e.Reason].family
}

// Code returns the stable public error code.
func (e *SDKError) Code() int {
	return reasonTable[e.Reason].code
}

func (e *SDKError) Error() string {
	msg := fmt.Sprintf("linesdk %s(%d): %s", e.Family(), e.Code(), e.Reason)

	if e.Reason == ReasonInvalidHTTPStatusAPIError {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
		if e.APIError != nil {
			msg += ": " + e.APIError.summary()
		} else if e.Raw != "" {
			msg += ": " + e.Raw
		}
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *SDKError) Unwrap() error {
	return e.Err
}

// Is matches another *SDKError with the same reason. A target with a
// non-zero StatusCode also requires the status to match.
func (e *SDKError) Is(target error) bool {
	t, ok := target.(*SDKError)
	if !ok {
		return false
	}

	if t.Reason != e.Reason {
		return false
	}

	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Reason values usable as errors.Is targets.
var (
	ErrLackOfAccessToken     = &SDKError{Reason: ReasonLackOfAccessToken}
	ErrInvalidHTTPStatus     = &SDKError{Reason: ReasonInvalidHTTPStatusAPIError}
	ErrKeychainOperation     = &SDKError{Reason: ReasonKeychainOperation}
	ErrInvalidDataInKeychain = &SDKError{Reason: ReasonInvalidDataInKeychain}
	ErrLackOfIDToken         = &SDKError{Reason: ReasonLackOfIDToken}
	ErrJWTPublicKeyNotFound  = &SDKError{Reason: ReasonJWTPublicKeyNotFound}
	ErrCryptoError           = &SDKError{Reason: ReasonCryptoError}
)

// AsSDKError returns the first SDKError in err's chain.
func AsSDKError(err error) (*SDKError, bool) {
	var se *SDKError
	if errors.As(err, &se) {
		return se, true
	}

	return nil, false
}

func newError(reason Reason, detail string, err error) *SDKError {
	return &SDKError{Reason: reason, Detail: detail, Err: err}
}

func newStatusError(status int, apiErr *APIError, raw string) *SDKError {
	return &SDKError{
		Reason:     ReasonInvalidHTTPStatusAPIError,
		StatusCode: status,
		APIError:   apiErr,
		Raw:        raw,
	}
}

// fromCrypto converts an internal crypto failure into its public form. A
// missing JWKS key has its own reason; every other crypto failure becomes
// ReasonCryptoError carrying only the message, so the internal type never
// reaches callers. Errors that are already SDKErrors pass through.
func fromCrypto(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := AsSDKError(err); ok {
		return err
	}

	ce, ok := cryptoerr.AsCrypto(err)
	if !ok {
		return newError(ReasonCryptoError, "", err)
	}

	if errors.Is(ce, cryptoerr.ErrKeyNotFound) {
		return newError(ReasonJWTPublicKeyNotFound, ce.Detail, nil)
	}

	return newError(ReasonCryptoError, ce.Error(), nil)
}
