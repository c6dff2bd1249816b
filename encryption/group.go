package encryption

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GroupParams holds the shared discrete-log group: a safe prime p, the prime
// order q = (p-1)/2 of the quadratic-residue subgroup, and a generator g of
// that subgroup. All ElGamal ciphertexts and proofs live in this subgroup.
type GroupParams struct {
	P *big.Int
	Q *big.Int
	G *big.Int
}

// RFC 3526 group 14 modulus (2048-bit MODP). It is a safe prime, so
// q = (p-1)/2 is prime and g = 4 = 2^2 generates the order-q subgroup.
const modp2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

var defaultGroup *GroupParams

func init() {
	p, ok := new(big.Int).SetString(modp2048Hex, 16)
	if !ok {
		panic("encryption: bad group modulus constant")
	}
	q := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)
	defaultGroup = &GroupParams{P: p, Q: q, G: big.NewInt(4)}
}

// DefaultGroup returns the group parameters shared by every principal.
func DefaultGroup() *GroupParams {
	return defaultGroup
}

// RandScalar returns a uniformly random integer in [1, max).
func RandScalar(max *big.Int) (*big.Int, error) {
	bound := new(big.Int).Sub(max, big.NewInt(1))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to sample random scalar: %w", err)
	}
	return n.Add(n, big.NewInt(1)), nil
}

// ModMul returns (a*b) mod m.
func ModMul(a, b, m *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), m)
}

// ModExp returns a^e mod m.
func ModExp(a, e, m *big.Int) *big.Int {
	return new(big.Int).Exp(a, e, m)
}

// ModInverse returns a^-1 mod m, or nil if a is not invertible.
func ModInverse(a, m *big.Int) *big.Int {
	return new(big.Int).ModInverse(a, m)
}

// ModSub returns (a-b) mod m with a non-negative canonical representative.
func ModSub(a, b, m *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Mod(d, m)
}
