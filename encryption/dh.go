package encryption

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

// DHKeyPair is an ephemeral Diffie-Hellman key for one session. The exchange
// runs in the same subgroup as the election keys.
type DHKeyPair struct {
	Secret *big.Int // a in [1, q)
	Public *big.Int // g^a mod p
}

// GenerateDHKeyPair samples a fresh ephemeral key.
func GenerateDHKeyPair(group *GroupParams) (*DHKeyPair, error) {
	a, err := RandScalar(group.Q)
	if err != nil {
		return nil, fmt.Errorf("failed to generate DH key: %w", err)
	}
	return &DHKeyPair{
		Secret: a,
		Public: ModExp(group.G, a, group.P),
	}, nil
}

// SharedSecret computes peer^a mod p.
func (kp *DHKeyPair) SharedSecret(group *GroupParams, peer *big.Int) *big.Int {
	return ModExp(peer, kp.Secret, group.P)
}

// SessionKeys holds the two independent keys of one session: AES-256-CBC for
// confidentiality and HMAC-SHA256 for integrity.
type SessionKeys struct {
	AESKey  []byte
	HMACKey []byte
}

// DeriveSessionKeys expands the DH shared secret into the session keys via
// HKDF-SHA256 with distinct info labels.
func DeriveSessionKeys(secret *big.Int) (*SessionKeys, error) {
	keys := &SessionKeys{
		AESKey:  make([]byte, 32),
		HMACKey: make([]byte, 32),
	}
	master := secret.Bytes()
	for _, d := range []struct {
		label string
		out   []byte
	}{
		{"evoting aes key", keys.AESKey},
		{"evoting hmac key", keys.HMACKey},
	} {
		r := hkdf.New(sha256.New, master, nil, []byte(d.label))
		if _, err := io.ReadFull(r, d.out); err != nil {
			return nil, fmt.Errorf("failed to derive session key: %w", err)
		}
	}
	return keys, nil
}
