package jose

import (
	"encoding/json"
	"log/slog"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
	"github.com/tidwall/gjson"
)

// JWKSet is an ordered list of keys from a JWKS document.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// ParseJWKSet decodes a JWKS document. Entries that fail to decode are
// logged and skipped, so len(Keys) counts only usable keys. Only a document
// that is not JSON or has no "keys" array is an error.
func ParseJWKSet(data []byte, logger *slog.Logger) (*JWKSet, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if !gjson.ValidBytes(data) {
		return nil, cryptoerr.New(cryptoerr.ErrDecodingFailed, "JWKS document is not valid JSON")
	}

	keys := gjson.GetBytes(data, "keys")
	if !keys.IsArray() {
		return nil, cryptoerr.New(cryptoerr.ErrDecodingFailed, "JWKS document has no keys array")
	}

	set := &JWKSet{Keys: make([]JWK, 0, len(keys.Array()))}

	index := 0
	keys.ForEach(func(_, entry gjson.Result) bool {
		var k JWK
		if err := json.Unmarshal([]byte(entry.Raw), &k); err != nil {
			logger.Warn("skipping malformed JWK",
				slog.Int("index", index),
				slog.String("kid", entry.Get("kid").String()),
				slog.String("error", err.Error()),
			)
		} else {
			set.Keys = append(set.Keys, k)
		}

		index++

		return true
	})

	return set, nil
}

func (s *JWKSet) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJWKSet(data, nil)
	if err != nil {
		return err
	}

	*s = *parsed

	return nil
}

// KeyByID returns the first key whose ID equals id, or nil. Duplicate IDs
// are not rejected; the earliest entry wins.
func (s *JWKSet) KeyByID(id string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].KeyID == id {
			return &s.Keys[i]
		}
	}

	return nil
}
