package jose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var b64 = base64.RawURLEncoding

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
)

// testRSAKey returns a shared 2048-bit key; generating one per test is slow.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	rsaKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		rsaKey = k
	})

	return rsaKey
}

func testECKey(t *testing.T, c elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(c, rand.Reader)
	require.NoError(t, err)
	return k
}

func rsaJWK(kid string, pub *rsa.PublicKey, alg Algorithm) JWK {
	return JWK{
		KeyType: KeyTypeRSA,
		KeyID:   kid,
		Parameters: &RSAParameters{
			Modulus:   b64.EncodeToString(pub.N.Bytes()),
			Exponent:  b64.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			Algorithm: alg,
		},
	}
}

func ecJWK(kid string, pub *ecdsa.PublicKey, crv Curve) JWK {
	size := crv.CoordinateOctetLength()
	return JWK{
		KeyType: KeyTypeEC,
		KeyID:   kid,
		Parameters: &ECDSAParameters{
			X:     b64.EncodeToString(pub.X.FillBytes(make([]byte, size))),
			Y:     b64.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
			Curve: crv,
		},
	}
}
