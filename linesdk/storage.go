package linesdk

import (
	"encoding/json"

	"github.com/alexjbarnes/linesdk-go/internal/state"
)

//go:generate mockgen -source=storage.go -destination=mock_storage_test.go -package=linesdk

// SecureStorage is one namespace of a credential store. Get returns nil
// without error when the key is absent; Remove of a missing key succeeds.
type SecureStorage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Contains(key string) (bool, error)
	Remove(key string) error
}

var _ SecureStorage = (*state.Service)(nil)

// Version tags the stored credential format. It fixes the codec, the
// storage namespace and the item key, so a later version can find and
// migrate credentials written by an older one.
type Version string

// CurrentVersion is the format new credentials are written in.
const CurrentVersion Version = "auth2.1"

// ServiceName returns the storage namespace for bundleID.
func (v Version) ServiceName(bundleID string) string {
	return "com.linecorp.linesdk.tokenstore." + bundleID
}

// StorageKey returns the item key for channelID.
func (v Version) StorageKey(channelID string) string {
	return channelID + "@" + string(v)
}

func (v Version) encode(t *AccessToken) ([]byte, error) {
	return json.Marshal(t.toJSON(true))
}

func (v Version) decode(data []byte) (*AccessToken, error) {
	var t AccessToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	return &t, nil
}
