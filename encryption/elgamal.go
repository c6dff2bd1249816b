package encryption

import (
	"fmt"
	"math/big"
)

// ElGamalKeyPair is one arbiter's share of the election key. The election
// public key is the product of every arbiter's PublicKey mod p.
type ElGamalKeyPair struct {
	SecretKey *big.Int
	PublicKey *big.Int
}

// GenerateElGamalKeyPair samples sk in [1, q) and computes pk = g^sk mod p.
func GenerateElGamalKeyPair(group *GroupParams) (*ElGamalKeyPair, error) {
	sk, err := RandScalar(group.Q)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ElGamal key: %w", err)
	}
	return &ElGamalKeyPair{
		SecretKey: sk,
		PublicKey: ModExp(group.G, sk, group.P),
	}, nil
}

// CombinePublicKeys aggregates per-arbiter public keys into the election
// public key pk = prod(pk_i) mod p.
func CombinePublicKeys(group *GroupParams, publicKeys []*big.Int) *big.Int {
	pk := big.NewInt(1)
	for _, pki := range publicKeys {
		pk = ModMul(pk, pki, group.P)
	}
	return pk
}
