// Package vault encrypts session credential blobs at rest.
//
// Ciphertexts are AES-256-CBC with PKCS#7 padding and a random 16-byte IV per
// call, serialized as hex(iv) ":" hex(ciphertext).
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

const keySize = 32

// Vault is a stateless AES-256 cipher bound to one key
type Vault struct {
	block cipher.Block
}

var _ interfaces.Cipher = (*Vault)(nil)

// New builds a vault from key, given either as 32 raw bytes or 64 hex characters.
func New(key string) (*Vault, error) {
	raw, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: aes.NewCipher: %v", common.ErrCrypto, err)
	}
	return &Vault{block: block}, nil
}

func parseKey(key string) ([]byte, error) {
	switch {
	case key == "":
		return nil, fmt.Errorf("%w: encryption key is not configured", common.ErrCrypto)
	case len(key) == 2*keySize:
		raw, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("%w: encryption key is not valid hex: %v", common.ErrCrypto, err)
		}
		return raw, nil
	case len(key) == keySize:
		return []byte(key), nil
	default:
		return nil, fmt.Errorf("%w: encryption key must be %d bytes or %d hex chars; got %d",
			common.ErrCrypto, keySize, 2*keySize, len(key))
	}
}

// Encrypt returns hex(iv) ":" hex(ciphertext)
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: rand iv: %v", common.ErrCrypto, err)
	}

	padded := pad(plaintext)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(v.block, iv).CryptBlocks(ct, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt accepts output of Encrypt and returns the original plaintext.
func (v *Vault) Decrypt(ciphertext string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return nil, fmt.Errorf("%w: ciphertext is missing the iv separator", common.ErrCrypto)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: malformed iv", common.ErrCrypto)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext: %v", common.ErrCrypto, err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: truncated ciphertext (%d bytes)", common.ErrCrypto, len(ct))
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(v.block, iv).CryptBlocks(pt, ct)

	return unpad(pt)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", common.ErrCrypto)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", common.ErrCrypto)
		}
	}
	return b[:len(b)-n], nil
}
