package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrDecrypt is returned for every record that fails authentication or
// decryption. Callers cannot distinguish a bad tag from bad padding.
var ErrDecrypt = errors.New("record decryption failed")

// SecureRecord is one encrypt-then-MAC protected message: the tag covers
// IV || Ciphertext.
type SecureRecord struct {
	IV         []byte
	Ciphertext []byte
	MAC        []byte
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}

// EncryptAndTag seals plaintext with AES-256-CBC under a fresh random IV and
// authenticates IV || ciphertext with HMAC-SHA256.
func EncryptAndTag(keys *SessionKeys, plaintext []byte) (*SecureRecord, error) {
	block, err := aes.NewCipher(keys.AESKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, keys.HMACKey)
	mac.Write(iv)
	mac.Write(ciphertext)

	return &SecureRecord{
		IV:         iv,
		Ciphertext: ciphertext,
		MAC:        mac.Sum(nil),
	}, nil
}

// DecryptAndVerify checks the tag in constant time before touching the
// ciphertext, then strips padding. Any failure yields ErrDecrypt.
func DecryptAndVerify(keys *SessionKeys, record *SecureRecord) ([]byte, error) {
	mac := hmac.New(sha256.New, keys.HMACKey)
	mac.Write(record.IV)
	mac.Write(record.Ciphertext)
	if !hmac.Equal(mac.Sum(nil), record.MAC) {
		return nil, ErrDecrypt
	}

	if len(record.IV) != aes.BlockSize ||
		len(record.Ciphertext) == 0 ||
		len(record.Ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecrypt
	}

	block, err := aes.NewCipher(keys.AESKey)
	if err != nil {
		return nil, ErrDecrypt
	}
	padded := make([]byte, len(record.Ciphertext))
	cipher.NewCBCDecrypter(block, record.IV).CryptBlocks(padded, record.Ciphertext)

	plaintext, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
