// Package state is the SDK's secure credential storage. Items live in a
// bbolt database, one bucket per service namespace, and every value is
// sealed with XChaCha20-Poly1305 under a key derived from a storage secret.
package state

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = chacha20poly1305.KeySize

	saltLen = 16
)

var (
	metaBucket = []byte("_meta")
	saltKey    = []byte("salt")
	canaryKey  = []byte("canary")

	canaryPlaintext = []byte("linesdk-keychain")
)

// ErrWrongSecret is returned when a database was created with a different
// storage secret.
var ErrWrongSecret = errors.New("storage secret does not match keychain")

// Keychain wraps a bbolt database holding sealed credential items.
type Keychain struct {
	db   *bolt.DB
	aead cipher.AEAD
}

// DefaultPath returns ~/.linesdk/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".linesdk", "state.db"), nil
}

// OpenAt opens the keychain at path, creating it if needed. The first open
// generates a random salt and records a sealed canary; later opens must use
// the same secret or fail with ErrWrongSecret.
func OpenAt(path, secret string) (*Keychain, error) {
	if secret == "" {
		return nil, fmt.Errorf("storage secret is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	kc := &Keychain{db: db}
	if err := kc.init(secret); err != nil {
		db.Close()
		return nil, err
	}

	return kc, nil
}

func (k *Keychain) init(secret string) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("initializing state db: %w", err)
		}

		salt := meta.Get(saltKey)
		fresh := salt == nil

		if fresh {
			salt = make([]byte, saltLen)
			if _, err := rand.Read(salt); err != nil {
				return fmt.Errorf("generating salt: %w", err)
			}

			if err := meta.Put(saltKey, salt); err != nil {
				return err
			}
		}

		key, err := scrypt.Key([]byte(norm.NFKC.String(secret)), salt, scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			return fmt.Errorf("deriving storage key: %w", err)
		}

		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("creating cipher: %w", err)
		}

		k.aead = aead

		if fresh {
			sealed, err := k.seal(metaBucket, canaryKey, canaryPlaintext)
			if err != nil {
				return err
			}

			return meta.Put(canaryKey, sealed)
		}

		plain, err := k.open(metaBucket, canaryKey, meta.Get(canaryKey))
		if err != nil || !bytes.Equal(plain, canaryPlaintext) {
			return ErrWrongSecret
		}

		return nil
	})
}

// Close closes the database.
func (k *Keychain) Close() error {
	return k.db.Close()
}

// Service returns the item namespace called name.
func (k *Keychain) Service(name string) *Service {
	return &Service{kc: k, bucket: []byte(name)}
}

// additionalData binds a ciphertext to the bucket and key it was written
// under so sealed values cannot be swapped between items.
func additionalData(bucket, key []byte) []byte {
	ad := make([]byte, 0, len(bucket)+1+len(key))
	ad = append(ad, bucket...)
	ad = append(ad, '/')

	return append(ad, key...)
}

func (k *Keychain) seal(bucket, key, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize(), k.aead.NonceSize()+len(plaintext)+k.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return k.aead.Seal(nonce, nonce, plaintext, additionalData(bucket, key)), nil
}

func (k *Keychain) open(bucket, key, sealed []byte) ([]byte, error) {
	ns := k.aead.NonceSize()
	if len(sealed) < ns+k.aead.Overhead() {
		return nil, fmt.Errorf("sealed value too short")
	}

	plain, err := k.aead.Open(nil, sealed[:ns], sealed[ns:], additionalData(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("opening sealed value: %w", err)
	}

	return plain, nil
}

// Service is one namespace of items inside a Keychain.
type Service struct {
	kc     *Keychain
	bucket []byte
}

// Name returns the namespace name.
func (s *Service) Name() string {
	return string(s.bucket)
}

// Get returns the item stored under key, or nil if there is none.
func (s *Service) Get(key string) ([]byte, error) {
	var value []byte

	err := s.kc.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		sealed := b.Get([]byte(key))
		if sealed == nil {
			return nil
		}

		plain, err := s.kc.open(s.bucket, []byte(key), sealed)
		if err != nil {
			return err
		}

		value = plain

		return nil
	})

	return value, err
}

// Set stores value under key, replacing any existing item.
func (s *Service) Set(key string, value []byte) error {
	sealed, err := s.kc.seal(s.bucket, []byte(key), value)
	if err != nil {
		return err
	}

	return s.kc.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), sealed)
	})
}

// Contains reports whether an item exists under key.
func (s *Service) Contains(key string) (bool, error) {
	found := false

	err := s.kc.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		found = b.Get([]byte(key)) != nil

		return nil
	})

	return found, err
}

// Remove deletes the item under key. Removing a missing item is not an error.
func (s *Service) Remove(key string) error {
	return s.kc.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		return b.Delete([]byte(key))
	})
}

// Keys returns the keys stored in this namespace.
func (s *Service) Keys() ([]string, error) {
	var keys []string

	err := s.kc.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})

	return keys, err
}
