package service

import (
	"crypto/rsa"
	"math/big"

	"evoting/election"
	"evoting/encryption"
	"evoting/models"
)

// verifyVoteRow re-checks everything the tallyer attested to: the parallel
// sequence lengths, the tallyer record signature, and each slot's blind
// signature and ballot proof. Rows failing any check are dropped silently
// by the callers.
func verifyVoteRow(group *encryption.GroupParams, electionPK *big.Int,
	registrarKey, tallyerKey *rsa.PublicKey, row *models.VoteRow) bool {

	sub := row.Submission()
	if sub.Validate() != nil {
		return false
	}
	if !encryption.RSAVerify(tallyerKey, sub.SigningPayload(), row.TallyerSignature) {
		return false
	}
	for i := range sub.Ciphers {
		cipher := &sub.Ciphers[i]
		if !encryption.BlindVerify(registrarKey, cipher.Marshal(), sub.Signatures[i]) {
			return false
		}
		if !election.VerifyBallot(group, electionPK, cipher, &sub.Proofs[i]) {
			return false
		}
	}
	return true
}

// collectValidVotes filters the board's tallied ballots down to the rows
// that reverify, all sharing one slot count. Rows whose slot count differs
// from the first surviving row are dropped.
func collectValidVotes(group *encryption.GroupParams, electionPK *big.Int,
	registrarKey, tallyerKey *rsa.PublicKey, rows []*models.VoteRow) (valid []*models.VoteRow, slots int) {

	for _, row := range rows {
		if !verifyVoteRow(group, electionPK, registrarKey, tallyerKey, row) {
			continue
		}
		if slots == 0 {
			slots = len(row.Ciphers)
		} else if len(row.Ciphers) != slots {
			continue
		}
		valid = append(valid, row)
	}
	return valid, slots
}

// combinePerSlot homomorphically aggregates the accepted rows, one combined
// ciphertext per candidate slot.
func combinePerSlot(group *encryption.GroupParams, rows []*models.VoteRow, slots int) []models.BallotCipher {
	combined := make([]models.BallotCipher, slots)
	for j := 0; j < slots; j++ {
		ciphers := make([]models.BallotCipher, 0, len(rows))
		for _, row := range rows {
			if j < len(row.Ciphers) {
				ciphers = append(ciphers, row.Ciphers[j])
			}
		}
		combined[j] = election.CombineBallots(group, ciphers)
	}
	return combined
}
