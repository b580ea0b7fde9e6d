// Package secret encrypts the stored API credential with a key derived from
// the site secret. The format matches openssl_encrypt with AES-256-CBC,
// options 0 and an IV taken from the hex SHA-256 of the same secret, so
// credentials written by the original plugin stay readable.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const keySize = 32

// ErrNoSiteSecret is returned when the cipher is built without a secret.
var ErrNoSiteSecret = errors.New("site secret is empty")

// Cipher encrypts and decrypts credentials.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// New derives the key and IV from siteSecret.
func New(siteSecret string) (*Cipher, error) {
	if siteSecret == "" {
		return nil, ErrNoSiteSecret
	}
	// openssl pads short keys with NUL bytes and truncates long ones.
	key := make([]byte, keySize)
	copy(key, siteSecret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	sum := sha256.Sum256([]byte(siteSecret))
	iv := []byte(hex.EncodeToString(sum[:])[:aes.BlockSize])
	return &Cipher{block: block, iv: iv}, nil
}

// Encrypt returns the base64 ciphertext of plain. Empty input stays empty.
func (c *Cipher) Encrypt(plain string) string {
	if plain == "" {
		return ""
	}
	padded := pad([]byte(plain))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Empty input yields an empty credential.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("decrypt credential: ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	plain, err := unpad(out)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
