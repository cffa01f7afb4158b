package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound indicates no verification key exists for the requested kid.
var ErrKeyNotFound = errors.New("key not found")

const ephemeralKID = "ephemeral"

// KeyProvider supplies the RSA material used to sign and verify session
// tokens.
type KeyProvider interface {
	SigningKey() (*rsa.PrivateKey, string, error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider loads PEM-encoded RSA keys from a directory. The first
// private key found becomes the signing key; its file name (sans extension)
// is the kid.
type FileKeyProvider struct {
	signingKey *rsa.PrivateKey
	signingKID string
	keys       map[string]*rsa.PublicKey
}

// NewFileKeyProvider reads every PEM file in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if key, err := parsePrivateKey(block.Bytes); err == nil {
			if provider.signingKey == nil {
				provider.signingKey = key
				provider.signingKID = kid
			}
			provider.keys[kid] = &key.PublicKey
			continue
		}

		if key, err := parsePublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return rsaKey, nil
}

func parsePublicKey(der []byte) (*rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaKey, nil
}

// SigningKey returns the private key and its kid.
func (p *FileKeyProvider) SigningKey() (*rsa.PrivateKey, string, error) {
	return p.signingKey, p.signingKID, nil
}

// VerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// EphemeralKeyProvider generates a process-local RSA key pair. Tokens signed
// with it do not survive a restart; it exists for development and tests.
type EphemeralKeyProvider struct {
	key *rsa.PrivateKey
}

// NewEphemeralKeyProvider generates a fresh 2048-bit key pair.
func NewEphemeralKeyProvider() (*EphemeralKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &EphemeralKeyProvider{key: key}, nil
}

// SigningKey returns the generated private key.
func (p *EphemeralKeyProvider) SigningKey() (*rsa.PrivateKey, string, error) {
	return p.key, ephemeralKID, nil
}

// VerificationKey returns the generated public key for the ephemeral kid.
func (p *EphemeralKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != ephemeralKID {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

// NewKeyProvider selects a provider based on environment. Production always
// requires provisioned keys; development falls back to an ephemeral pair
// when the key directory does not exist.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	if env == "production" {
		return NewFileKeyProvider(keyDir)
	}
	if _, err := os.Stat(keyDir); err != nil {
		return NewEphemeralKeyProvider()
	}
	return NewFileKeyProvider(keyDir)
}
