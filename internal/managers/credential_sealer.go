package managers

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/docuflow/docuflow/internal/domain"
)

const masterKeySize = 32

// credentialSealer seals credential payloads with ChaCha20-Poly1305 under a
// per-organization key derived from an explicitly passed master key. The
// organization id is bound into the key derivation, so a payload sealed for
// one organization cannot be opened for another.
type credentialSealer struct {
	masterKey []byte
}

// NewCredentialSealer expects the base64 encoding of a 32-byte master key.
func NewCredentialSealer(masterKeyBase64 string) (domain.CredentialSealer, error) {
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 master key: %w", err)
	}

	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("invalid master key length: expected %d bytes, got %d", masterKeySize, len(masterKey))
	}

	return &credentialSealer{masterKey: masterKey}, nil
}

func (s *credentialSealer) Seal(organizationID string, payload []byte) ([]byte, error) {
	aead, err := s.newAEAD(organizationID)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext
	return aead.Seal(nonce, nonce, payload, nil), nil
}

func (s *credentialSealer) Open(organizationID string, sealed []byte) ([]byte, error) {
	aead, err := s.newAEAD(organizationID)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	payload, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed credentials: %w", err)
	}

	return payload, nil
}

func (s *credentialSealer) newAEAD(organizationID string) (cipher.AEAD, error) {
	key, err := deriveOrganizationKey(s.masterKey, organizationID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return aead, nil
}

func deriveOrganizationKey(masterKey []byte, organizationID string) ([]byte, error) {
	salt := []byte("docuflow-storage-credentials")
	info := []byte("sealing-key-" + organizationID)

	kdf := hkdf.New(sha256.New, masterKey, salt, info)
	key := make([]byte, chacha20poly1305.KeySize)

	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	return key, nil
}
