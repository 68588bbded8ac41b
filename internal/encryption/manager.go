package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"trust-service/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Manager envelope-encrypts sensitive banking fields (card and sheba
// numbers). Each value gets a fresh AES-256-GCM data key; the data key is
// wrapped by KMS in production or kept in-process in development. The
// stored form is "v1:<wrapped-dek>:<nonce+ciphertext>", both base64.
type Manager struct {
	kmsClient *kms.Client
	cfg       *config.KMSConfig

	localKey     []byte
	localKeyOnce sync.Once
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		cfg:       &cfg.KMS,
	}
}

// EncryptField encrypts one plaintext field. Returns the encoded envelope
// and the id of the key that wrapped the data key.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) (encoded, keyID string, err error) {
	dek, wrapped, keyID, err := m.dataKey(ctx)
	if err != nil {
		return "", "", err
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	encoded = strings.Join([]string{
		"v1",
		base64.RawStdEncoding.EncodeToString(wrapped),
		base64.RawStdEncoding.EncodeToString(sealed),
	}, ":")
	return encoded, keyID, nil
}

// DecryptField reverses EncryptField.
func (m *Manager) DecryptField(ctx context.Context, encoded string) (string, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || parts[0] != "v1" {
		return "", ErrDecryptionFailed
	}

	wrapped, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptionFailed
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryptionFailed
	}

	dek, err := m.unwrap(ctx, wrapped)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (m *Manager) dataKey(ctx context.Context) (plain, wrapped []byte, keyID string, err error) {
	if !m.cfg.Enabled || m.kmsClient == nil {
		return m.localDataKey()
	}

	out, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.cfg.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate data key: %w", err)
	}
	return out.Plaintext, out.CiphertextBlob, m.cfg.KeyID, nil
}

func (m *Manager) unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if !m.cfg.Enabled || m.kmsClient == nil {
		return m.localUnwrap(wrapped)
	}

	out, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrapped})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}
	return out.Plaintext, nil
}

// Development fallback: a single in-process master key wraps data keys
// with AES-GCM. Restarting the process loses it, which is acceptable for
// dev and for the in-memory storage backend.
func (m *Manager) localDataKey() (plain, wrapped []byte, keyID string, err error) {
	master, err := m.masterKey()
	if err != nil {
		return nil, nil, "", err
	}

	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	block, _ := aes.NewCipher(master)
	gcm, _ := cipher.NewGCM(block)
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return dek, gcm.Seal(nonce, nonce, dek, nil), "local", nil
}

func (m *Manager) localUnwrap(wrapped []byte) ([]byte, error) {
	master, err := m.masterKey()
	if err != nil {
		return nil, err
	}

	block, _ := aes.NewCipher(master)
	gcm, _ := cipher.NewGCM(block)
	if len(wrapped) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	dek, err := gcm.Open(nil, wrapped[:gcm.NonceSize()], wrapped[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return dek, nil
}

func (m *Manager) masterKey() ([]byte, error) {
	var genErr error
	m.localKeyOnce.Do(func() {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			genErr = fmt.Errorf("failed to generate local master key: %w", err)
			return
		}
		m.localKey = key
	})
	if genErr != nil {
		return nil, genErr
	}
	return m.localKey, nil
}
