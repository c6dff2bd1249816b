package election

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoting/encryption"
	"evoting/models"
)

func testElectionKey(t *testing.T) (*encryption.GroupParams, *encryption.ElGamalKeyPair) {
	t.Helper()
	group := encryption.DefaultGroup()
	kp, err := encryption.GenerateElGamalKeyPair(group)
	require.NoError(t, err)
	return group, kp
}

func TestGenerateAndVerifyBallot(t *testing.T) {
	group, kp := testElectionKey(t)

	for _, vote := range []int{0, 1} {
		cipher, proof, err := GenerateBallot(group, kp.PublicKey, vote)
		require.NoError(t, err)
		assert.True(t, VerifyBallot(group, kp.PublicKey, cipher, proof), "vote %d", vote)
	}
}

func TestGenerateBallotRejectsOutOfRangeVote(t *testing.T) {
	group, kp := testElectionKey(t)

	for _, vote := range []int{-1, 2, 7} {
		_, _, err := GenerateBallot(group, kp.PublicKey, vote)
		require.Error(t, err, "vote %d", vote)
		assert.ErrorIs(t, err, models.ErrPolicy)
	}
}

func TestVerifyRejectsForgedProofForTwo(t *testing.T) {
	group, kp := testElectionKey(t)

	// An encryption of 2 with a proof assembled from random group values.
	r, err := encryption.RandScalar(group.Q)
	require.NoError(t, err)
	cipher := &models.BallotCipher{
		A: encryption.ModExp(group.G, r, group.P),
		B: encryption.ModMul(
			encryption.ModExp(kp.PublicKey, r, group.P),
			encryption.ModExp(group.G, big.NewInt(2), group.P),
			group.P),
	}

	proof := &models.BallotProof{}
	for _, dst := range []**big.Int{&proof.A0, &proof.A1, &proof.B0, &proof.B1, &proof.C0, &proof.C1, &proof.R0, &proof.R1} {
		v, err := encryption.RandScalar(group.Q)
		require.NoError(t, err)
		*dst = v
	}
	assert.False(t, VerifyBallot(group, kp.PublicKey, cipher, proof))
}

func TestVerifyRejectsChallengeSumOffByOne(t *testing.T) {
	group, kp := testElectionKey(t)

	cipher, proof, err := GenerateBallot(group, kp.PublicKey, 1)
	require.NoError(t, err)
	require.True(t, VerifyBallot(group, kp.PublicKey, cipher, proof))

	proof.C0 = new(big.Int).Add(proof.C0, big.NewInt(1))
	proof.C0.Mod(proof.C0, group.Q)
	assert.False(t, VerifyBallot(group, kp.PublicKey, cipher, proof))
}

func TestVerifyRejectsTamperedCipher(t *testing.T) {
	group, kp := testElectionKey(t)

	cipher, proof, err := GenerateBallot(group, kp.PublicKey, 0)
	require.NoError(t, err)

	cipher.B = new(big.Int).Add(cipher.B, big.NewInt(1))
	cipher.B.Mod(cipher.B, group.P)
	assert.False(t, VerifyBallot(group, kp.PublicKey, cipher, proof))
}

func TestVerifyRejectsWrongElectionKey(t *testing.T) {
	group, kp := testElectionKey(t)
	other, err := encryption.GenerateElGamalKeyPair(group)
	require.NoError(t, err)

	cipher, proof, err := GenerateBallot(group, kp.PublicKey, 1)
	require.NoError(t, err)
	assert.False(t, VerifyBallot(group, other.PublicKey, cipher, proof))
}

func TestVerifyRejectsOutOfGroupValues(t *testing.T) {
	group, kp := testElectionKey(t)

	cipher, proof, err := GenerateBallot(group, kp.PublicKey, 0)
	require.NoError(t, err)

	cipher.A = new(big.Int).Set(group.P) // not in [1, p)
	assert.False(t, VerifyBallot(group, kp.PublicKey, cipher, proof))

	cipher.A = big.NewInt(0)
	assert.False(t, VerifyBallot(group, kp.PublicKey, cipher, proof))
}
