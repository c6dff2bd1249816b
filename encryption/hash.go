package encryption

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Fiat-Shamir domain tags. The two proof transcripts must never collide, so
// each hash starts with its own prefix byte.
const (
	domainVoteZKP = 0x01
	domainDecZKP  = 0x02
)

// hashTranscript hashes a domain-tagged sequence of integers into Z_q. Each
// integer is framed by its length so transcripts cannot be reassembled into
// each other.
func hashTranscript(group *GroupParams, domain byte, values ...*big.Int) *big.Int {
	buf := []byte{domain}
	for _, v := range values {
		b := v.Bytes()
		buf = append(buf, byte(len(b)>>8), byte(len(b)))
		buf = append(buf, b...)
	}
	c := new(big.Int).SetBytes(ethcrypto.Keccak256(buf))
	return c.Mod(c, group.Q)
}

// HashVoteZKP produces the challenge for the disjunctive ballot proof.
func HashVoteZKP(group *GroupParams, pk, a, b, a0, b0, a1, b1 *big.Int) *big.Int {
	return hashTranscript(group, domainVoteZKP, pk, a, b, a0, b0, a1, b1)
}

// HashDecZKP produces the challenge for the partial-decryption proof.
func HashDecZKP(group *GroupParams, pki, a, b, u, v *big.Int) *big.Int {
	return hashTranscript(group, domainDecZKP, pki, a, b, u, v)
}
