package jose

import (
	"encoding/base64"
	"strings"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
)

// decodeBase64URL decodes a base64url field, with or without padding.
func decodeBase64URL(field, s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.ErrBase64ConversionFailed, field, err)
	}

	return b, nil
}
