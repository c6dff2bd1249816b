// Package election implements the ballot construction and tallying protocol:
// ElGamal ciphertexts with disjunctive Chaum-Pedersen proofs, homomorphic
// aggregation, and proven partial decryptions.
package election

import (
	"fmt"
	"math/big"

	"evoting/encryption"
	"evoting/models"
)

// GenerateBallot encrypts vote (0 or 1) under the election public key and
// builds the disjunctive proof that the ciphertext encrypts 0 or 1. The
// branch for the actual vote runs the honest Chaum-Pedersen protocol; the
// other branch is simulated with a pre-chosen challenge.
func GenerateBallot(group *encryption.GroupParams, pk *big.Int, vote int) (*models.BallotCipher, *models.BallotProof, error) {
	if vote != 0 && vote != 1 {
		return nil, nil, fmt.Errorf("%w: vote must be 0 or 1, got %d", models.ErrPolicy, vote)
	}

	r, err := encryption.RandScalar(group.Q)
	if err != nil {
		return nil, nil, err
	}

	cipher := &models.BallotCipher{
		A: encryption.ModExp(group.G, r, group.P),
		B: encryption.ModMul(
			encryption.ModExp(pk, r, group.P),
			encryption.ModExp(group.G, big.NewInt(int64(vote)), group.P),
			group.P),
	}

	// Simulated branch: random challenge and response, commitments solved
	// backwards so the verification equations hold.
	simChallenge, err := encryption.RandScalar(group.Q)
	if err != nil {
		return nil, nil, err
	}
	simResponse, err := encryption.RandScalar(group.Q)
	if err != nil {
		return nil, nil, err
	}

	// bSim is the value the simulated branch treats as pk^r: b for the
	// v=0 branch, b/g for the v=1 branch.
	bSim := new(big.Int).Set(cipher.B)
	if vote == 0 {
		gInv := encryption.ModInverse(group.G, group.P)
		bSim = encryption.ModMul(cipher.B, gInv, group.P)
	}

	aPow := encryption.ModExp(cipher.A, simChallenge, group.P)
	simA := encryption.ModMul(
		encryption.ModExp(group.G, simResponse, group.P),
		encryption.ModInverse(aPow, group.P),
		group.P)
	bPow := encryption.ModExp(bSim, simChallenge, group.P)
	simB := encryption.ModMul(
		encryption.ModExp(pk, simResponse, group.P),
		encryption.ModInverse(bPow, group.P),
		group.P)

	// Honest branch commitment.
	w, err := encryption.RandScalar(group.Q)
	if err != nil {
		return nil, nil, err
	}
	honestA := encryption.ModExp(group.G, w, group.P)
	honestB := encryption.ModExp(pk, w, group.P)

	proof := &models.BallotProof{}
	if vote == 0 {
		proof.A0, proof.B0 = honestA, honestB
		proof.A1, proof.B1 = simA, simB
		proof.C1, proof.R1 = simChallenge, simResponse
	} else {
		proof.A1, proof.B1 = honestA, honestB
		proof.A0, proof.B0 = simA, simB
		proof.C0, proof.R0 = simChallenge, simResponse
	}

	c := encryption.HashVoteZKP(group, pk, cipher.A, cipher.B,
		proof.A0, proof.B0, proof.A1, proof.B1)

	honestChallenge := encryption.ModSub(c, simChallenge, group.Q)
	honestResponse := new(big.Int).Mul(honestChallenge, r)
	honestResponse.Add(honestResponse, w)
	honestResponse.Mod(honestResponse, group.Q)

	if vote == 0 {
		proof.C0, proof.R0 = honestChallenge, honestResponse
	} else {
		proof.C1, proof.R1 = honestChallenge, honestResponse
	}
	return cipher, proof, nil
}

// VerifyBallot checks the disjunctive proof against the ciphertext. All four
// commitment equations and the challenge sum must hold.
func VerifyBallot(group *encryption.GroupParams, pk *big.Int, cipher *models.BallotCipher, proof *models.BallotProof) bool {
	if !inGroupRange(group, cipher.A, cipher.B) {
		return false
	}

	// g^r0 == a0 * a^c0
	lhs := encryption.ModExp(group.G, proof.R0, group.P)
	rhs := encryption.ModMul(proof.A0, encryption.ModExp(cipher.A, proof.C0, group.P), group.P)
	if lhs.Cmp(rhs) != 0 {
		return false
	}

	// g^r1 == a1 * a^c1
	lhs = encryption.ModExp(group.G, proof.R1, group.P)
	rhs = encryption.ModMul(proof.A1, encryption.ModExp(cipher.A, proof.C1, group.P), group.P)
	if lhs.Cmp(rhs) != 0 {
		return false
	}

	// pk^r0 == b0 * b^c0
	lhs = encryption.ModExp(pk, proof.R0, group.P)
	rhs = encryption.ModMul(proof.B0, encryption.ModExp(cipher.B, proof.C0, group.P), group.P)
	if lhs.Cmp(rhs) != 0 {
		return false
	}

	// pk^r1 == b1 * (b/g)^c1
	bOverG := encryption.ModMul(cipher.B, encryption.ModInverse(group.G, group.P), group.P)
	lhs = encryption.ModExp(pk, proof.R1, group.P)
	rhs = encryption.ModMul(proof.B1, encryption.ModExp(bOverG, proof.C1, group.P), group.P)
	if lhs.Cmp(rhs) != 0 {
		return false
	}

	// c0 + c1 == H(transcript) mod q
	c := encryption.HashVoteZKP(group, pk, cipher.A, cipher.B,
		proof.A0, proof.B0, proof.A1, proof.B1)
	sum := new(big.Int).Add(proof.C0, proof.C1)
	sum.Mod(sum, group.Q)
	return sum.Cmp(c) == 0
}

func inGroupRange(group *encryption.GroupParams, values ...*big.Int) bool {
	for _, v := range values {
		if v == nil || v.Sign() <= 0 || v.Cmp(group.P) >= 0 {
			return false
		}
	}
	return true
}
