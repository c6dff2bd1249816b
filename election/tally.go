package election

import (
	"fmt"
	"math/big"

	"evoting/encryption"
	"evoting/models"
)

// CombineBallots multiplies per-voter ciphertexts for one candidate slot
// into a single ciphertext encrypting the slot's vote count. The identity
// (1, 1) encrypts zero, so an empty slate tallies to 0.
func CombineBallots(group *encryption.GroupParams, ciphers []models.BallotCipher) models.BallotCipher {
	combined := models.BallotCipher{A: big.NewInt(1), B: big.NewInt(1)}
	for i := range ciphers {
		combined.A = encryption.ModMul(combined.A, ciphers[i].A, group.P)
		combined.B = encryption.ModMul(combined.B, ciphers[i].B, group.P)
	}
	return combined
}

// PartialDecryption is one arbiter's share for one aggregate ciphertext,
// with the Chaum-Pedersen proof that log_g(pk_i) = log_A(d).
type PartialDecryption struct {
	D *big.Int
	U *big.Int
	V *big.Int
	S *big.Int
}

// PartialDecrypt computes d = A^sk_i and proves it was formed with the same
// secret behind pk_i. The proof is checked locally before being returned;
// a failure means the key pair is inconsistent.
func PartialDecrypt(group *encryption.GroupParams, keyPair *encryption.ElGamalKeyPair, aggregate *models.BallotCipher) (*PartialDecryption, error) {
	r, err := encryption.RandScalar(group.Q)
	if err != nil {
		return nil, err
	}

	pd := &PartialDecryption{
		D: encryption.ModExp(aggregate.A, keyPair.SecretKey, group.P),
		U: encryption.ModExp(aggregate.A, r, group.P),
		V: encryption.ModExp(group.G, r, group.P),
	}

	c := encryption.HashDecZKP(group, keyPair.PublicKey, aggregate.A, aggregate.B, pd.U, pd.V)
	s := new(big.Int).Mul(c, keyPair.SecretKey)
	s.Mod(s, group.Q)
	s.Add(s, r)
	pd.S = s.Mod(s, group.Q)

	if !VerifyPartialDecryption(group, keyPair.PublicKey, aggregate, pd) {
		return nil, fmt.Errorf("%w: partial decryption failed self-check", models.ErrCrypto)
	}
	return pd, nil
}

// VerifyPartialDecryption checks A^s = u * d^c and g^s = v * pk_i^c under
// the recomputed challenge.
func VerifyPartialDecryption(group *encryption.GroupParams, arbiterPK *big.Int, aggregate *models.BallotCipher, pd *PartialDecryption) bool {
	if !inGroupRange(group, pd.D, pd.U, pd.V) {
		return false
	}
	c := encryption.HashDecZKP(group, arbiterPK, aggregate.A, aggregate.B, pd.U, pd.V)

	lhs := encryption.ModExp(aggregate.A, pd.S, group.P)
	rhs := encryption.ModMul(pd.U, encryption.ModExp(pd.D, c, group.P), group.P)
	if lhs.Cmp(rhs) != 0 {
		return false
	}

	lhs = encryption.ModExp(group.G, pd.S, group.P)
	rhs = encryption.ModMul(pd.V, encryption.ModExp(arbiterPK, c, group.P), group.P)
	return lhs.Cmp(rhs) == 0
}

// ResultDecoder recovers small plaintext tallies by table lookup over
// g^0 .. g^max. One decoder is shared across every candidate slot.
type ResultDecoder struct {
	group *encryption.GroupParams
	max   int
	table map[string]int
}

// DefaultSearchBound caps the discrete-log search. It must be at least the
// number of registered voters.
const DefaultSearchBound = 1000

// NewResultDecoder precomputes the powers table.
func NewResultDecoder(group *encryption.GroupParams, max int) *ResultDecoder {
	if max <= 0 {
		max = DefaultSearchBound
	}
	table := make(map[string]int, max+1)
	acc := big.NewInt(1)
	for i := 0; i <= max; i++ {
		table[acc.String()] = i
		acc = encryption.ModMul(acc, group.G, group.P)
	}
	return &ResultDecoder{group: group, max: max, table: table}
}

// Decode combines the arbiters' shares and looks up the exponent of
// g^m = B * (prod d_i)^-1. An exhausted search means an invalid share
// slipped through and is reported as an integrity failure.
func (rd *ResultDecoder) Decode(aggregate *models.BallotCipher, shares []*big.Int) (int, error) {
	product := big.NewInt(1)
	for _, d := range shares {
		product = encryption.ModMul(product, d, rd.group.P)
	}
	inv := encryption.ModInverse(product, rd.group.P)
	if inv == nil {
		return 0, fmt.Errorf("%w: share product not invertible", models.ErrIntegrity)
	}
	gm := encryption.ModMul(aggregate.B, inv, rd.group.P)

	count, ok := rd.table[gm.String()]
	if !ok {
		return 0, fmt.Errorf("%w: no discrete-log match within %d", models.ErrIntegrity, rd.max)
	}
	return count, nil
}
