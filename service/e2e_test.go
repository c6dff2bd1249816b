package service_test

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoting/config"
	"evoting/encryption"
	"evoting/keys"
	"evoting/models"
	"evoting/service"
	"evoting/storage"
)

type env struct {
	dir       string
	common    config.Common
	registrar *service.Registrar
	tallyer   *service.Tallyer
	arbiters  []*service.Arbiter
}

func newEnv(t *testing.T, numArbiters int) *env {
	t.Helper()
	dir := t.TempDir()

	common := config.Common{
		BoardPath:                    filepath.Join(dir, "board"),
		RegistrarVerificationKeyPath: filepath.Join(dir, "registrar_verification.pem"),
		TallyerVerificationKeyPath:   filepath.Join(dir, "tallyer_verification.pem"),
	}
	for i := 0; i < numArbiters; i++ {
		common.ArbiterPublicKeyPaths = append(common.ArbiterPublicKeyPaths,
			filepath.Join(dir, fmt.Sprintf("arbiter_%d.pub", i)))
	}

	registrar, err := service.NewRegistrar(&config.Config{
		Common:    common,
		Registrar: config.Registrar{SigningKeyPath: filepath.Join(dir, "registrar_signing.pem")},
	})
	require.NoError(t, err)

	arbiters := make([]*service.Arbiter, numArbiters)
	for i := range arbiters {
		arbiter, err := service.NewArbiter(&config.Config{
			Common: common,
			Arbiter: config.Arbiter{
				ArbiterID:     fmt.Sprintf("arbiter-%d", i),
				SecretKeyPath: filepath.Join(dir, fmt.Sprintf("arbiter_%d.key", i)),
				PublicKeyPath: common.ArbiterPublicKeyPaths[i],
			},
		})
		require.NoError(t, err)
		require.NoError(t, arbiter.Keygen())
		arbiters[i] = arbiter
	}

	tallyer, err := service.NewTallyer(&config.Config{
		Common:  common,
		Tallyer: config.Tallyer{SigningKeyPath: filepath.Join(dir, "tallyer_signing.pem")},
	})
	require.NoError(t, err)

	require.NoError(t, registrar.Start(0))
	require.NoError(t, tallyer.Start(0))
	t.Cleanup(registrar.Stop)
	t.Cleanup(tallyer.Stop)

	return &env{
		dir:       dir,
		common:    common,
		registrar: registrar,
		tallyer:   tallyer,
		arbiters:  arbiters,
	}
}

func (e *env) newVoter(t *testing.T, id string) *service.Voter {
	t.Helper()
	voter, err := service.NewVoter(&config.Config{
		Common: e.common,
		Voter: config.Voter{
			VoterID:   id,
			StatePath: filepath.Join(e.dir, id+"_state.json"),
		},
	})
	require.NoError(t, err)
	return voter
}

func (e *env) board(t *testing.T) *storage.Board {
	t.Helper()
	board, err := storage.Open(e.common.BoardPath)
	require.NoError(t, err)
	return board
}

// waitForVotes blocks until the tallyer's asynchronous handler has appended
// the expected number of rows.
func (e *env) waitForVotes(t *testing.T, want int) {
	t.Helper()
	board := e.board(t)
	require.Eventually(t, func() bool {
		rows, err := board.AllVotes()
		return err == nil && len(rows) == want
	}, 5*time.Second, 10*time.Millisecond)
}

func (e *env) adjudicateAll(t *testing.T) {
	t.Helper()
	for _, arbiter := range e.arbiters {
		require.NoError(t, arbiter.Adjudicate())
	}
}

func runElection(t *testing.T, e *env, ballots map[string][]int) {
	t.Helper()
	n := 0
	for id, votes := range ballots {
		voter := e.newVoter(t, id)
		require.NoError(t, voter.Register(e.registrar.Addr(), votes))
		require.NoError(t, voter.Vote(e.tallyer.Addr()))
		n++
		e.waitForVotes(t, n)
	}
	e.adjudicateAll(t)
}

func TestSingleVoterElection(t *testing.T) {
	e := newEnv(t, 2)
	runElection(t, e, map[string][]int{"alice": {1, 0}})

	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, []int{1, 0}, result.Counts)
}

func TestThreeVoterElection(t *testing.T) {
	e := newEnv(t, 2)
	runElection(t, e, map[string][]int{
		"alice": {1, 0},
		"bob":   {1, 1},
		"carol": {0, 1},
	})

	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, []int{2, 2}, result.Counts)
}

func TestFiveCandidateElection(t *testing.T) {
	e := newEnv(t, 1)
	runElection(t, e, map[string][]int{"alice": {0, 1, 0, 1, 1}})

	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, []int{0, 1, 0, 1, 1}, result.Counts)
}

func TestEmptyElection(t *testing.T) {
	e := newEnv(t, 1)
	for _, arbiter := range e.arbiters {
		require.NoError(t, arbiter.Adjudicate())
	}

	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Empty(t, result.Counts)
}

func TestReplaySubmissionRejected(t *testing.T) {
	e := newEnv(t, 1)

	voter := e.newVoter(t, "alice")
	require.NoError(t, voter.Register(e.registrar.Addr(), []int{1, 0}))
	require.NoError(t, voter.Vote(e.tallyer.Addr()))
	e.waitForVotes(t, 1)

	// Rebuild the identical submission from the saved registration state
	// and push it straight at the tallyer.
	ciphers, proofs, blinds, sigs, err := keys.LoadVoterState(filepath.Join(e.dir, "alice_state.json"))
	require.NoError(t, err)
	registrarKey, err := keys.LoadRSAPublicKey(e.common.RegistrarVerificationKeyPath)
	require.NoError(t, err)

	unblinded := make([]*big.Int, len(sigs))
	for i := range sigs {
		unblinded[i], err = encryption.Unblind(registrarKey, sigs[i], blinds[i])
		require.NoError(t, err)
	}
	sub := &models.VoteSubmission{Ciphers: ciphers, Proofs: proofs, Signatures: unblinded}

	err = e.tallyer.ProcessSubmission(sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPolicy)

	rows, err := e.board(t).AllVotes()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTamperedBallotFailsVerify(t *testing.T) {
	e := newEnv(t, 1)
	runElection(t, e, map[string][]int{"alice": {1, 0}})

	// Flip the stored b of the first ballot slot after adjudication.
	votesPath := filepath.Join(e.common.BoardPath, "tallied_ballots.json")
	data, err := os.ReadFile(votesPath)
	require.NoError(t, err)
	var rows []*models.VoteRow
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 1)
	rows[0].Ciphers[0].B = new(big.Int).Add(rows[0].Ciphers[0].B, big.NewInt(1))
	data, err = json.Marshal(rows)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(votesPath, data, 0644))

	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestForgedProofForTwoRejected(t *testing.T) {
	e := newEnv(t, 1)
	group := encryption.DefaultGroup()

	electionPK, err := keys.LoadElectionPublicKey(group, e.common.ArbiterPublicKeyPaths)
	require.NoError(t, err)

	// An encryption of v=2 with a fabricated proof, pushed through a
	// legitimate registration so the blind signature itself is valid.
	r, err := encryption.RandScalar(group.Q)
	require.NoError(t, err)
	cipher := models.BallotCipher{
		A: encryption.ModExp(group.G, r, group.P),
		B: encryption.ModMul(
			encryption.ModExp(electionPK, r, group.P),
			encryption.ModExp(group.G, big.NewInt(2), group.P),
			group.P),
	}
	proof := models.BallotProof{}
	for _, dst := range []**big.Int{&proof.A0, &proof.A1, &proof.B0, &proof.B1, &proof.C0, &proof.C1, &proof.R0, &proof.R1} {
		v, err := encryption.RandScalar(group.Q)
		require.NoError(t, err)
		*dst = v
	}

	registrarKey, err := keys.LoadRSAPublicKey(e.common.RegistrarVerificationKeyPath)
	require.NoError(t, err)
	blinded, blind, err := encryption.BlindMessage(registrarKey, cipher.Marshal())
	require.NoError(t, err)

	resp, err := e.registrar.ProcessRegistration(&models.RegisterRequest{
		VoterID: "mallory",
		Blinded: []*big.Int{blinded},
	})
	require.NoError(t, err)
	sig, err := encryption.Unblind(registrarKey, resp.Signatures[0], blind)
	require.NoError(t, err)

	sub := &models.VoteSubmission{
		Ciphers:    []models.BallotCipher{cipher},
		Proofs:     []models.BallotProof{proof},
		Signatures: []*big.Int{sig},
	}
	err = e.tallyer.ProcessSubmission(sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCrypto)

	// Nothing was appended to the board.
	rows, err := e.board(t).AllVotes()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDoubleRegistrationIsIdempotent(t *testing.T) {
	e := newEnv(t, 1)
	registrarKey, err := keys.LoadRSAPublicKey(e.common.RegistrarVerificationKeyPath)
	require.NoError(t, err)

	blinded1, _, err := encryption.BlindMessage(registrarKey, []byte("first commitment"))
	require.NoError(t, err)
	first, err := e.registrar.ProcessRegistration(&models.RegisterRequest{
		VoterID: "alice",
		Blinded: []*big.Int{blinded1},
	})
	require.NoError(t, err)

	// A second registration, even over different messages, returns the
	// originally issued signatures.
	blinded2, _, err := encryption.BlindMessage(registrarKey, []byte("second commitment"))
	require.NoError(t, err)
	second, err := e.registrar.ProcessRegistration(&models.RegisterRequest{
		VoterID: "alice",
		Blinded: []*big.Int{blinded2},
	})
	require.NoError(t, err)

	require.Len(t, second.Signatures, 1)
	assert.Equal(t, 0, first.Signatures[0].Cmp(second.Signatures[0]))
}

func TestVerifyWithoutAdjudicationFails(t *testing.T) {
	e := newEnv(t, 1)

	voter := e.newVoter(t, "alice")
	require.NoError(t, voter.Register(e.registrar.Addr(), []int{1}))
	require.NoError(t, voter.Vote(e.tallyer.Addr()))
	e.waitForVotes(t, 1)

	// No partial decryptions have been published: the count cannot be
	// recovered and the election does not verify.
	result, err := e.newVoter(t, "auditor").Verify()
	require.NoError(t, err)
	assert.False(t, result.OK)
}
