package models

import (
	"encoding/hex"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Board rows. Rows persist as JSON in the board store; signatures and keys
// are always computed over the canonical wire encodings, never the JSON.

// VoterRow records one voter's authorization: the blinded messages the
// registrar signed and the issued blind signatures. Keyed by VoterID.
type VoterRow struct {
	VoterID    string     `json:"voter_id"`
	Blinded    []*big.Int `json:"blinded"`
	Signatures []*big.Int `json:"signatures"`
	CreatedAt  int64      `json:"created_at"`
}

// VoteRow is a tallyer-accepted multi-ballot. It carries no voter identity;
// the blind signatures are the authorization. Keyed by the digest of the
// canonical submission encoding.
type VoteRow struct {
	ID               string         `json:"id"`
	Ciphers          []BallotCipher `json:"ciphers"`
	Proofs           []BallotProof  `json:"proofs"`
	Signatures       []*big.Int     `json:"signatures"`
	TallyerSignature []byte         `json:"tallyer_signature"`
	CreatedAt        int64          `json:"created_at"`
}

// Submission reassembles the wire-level multi-ballot for signature checks.
func (r *VoteRow) Submission() *VoteSubmission {
	return &VoteSubmission{
		Ciphers:    r.Ciphers,
		Proofs:     r.Proofs,
		Signatures: r.Signatures,
	}
}

// Key is the board key of this row: the digest of the canonical encoding.
// An exact resubmission of the same multi-ballot maps to the same key.
func (r *VoteRow) Key() string {
	return SubmissionKey(r.Submission())
}

// SubmissionKey digests a multi-ballot into its board key.
func SubmissionKey(sub *VoteSubmission) string {
	return hex.EncodeToString(ethcrypto.Keccak256(sub.Marshal()))
}

// PartialDecryptionRow is one arbiter's share d = A^sk_i for one candidate
// slot, with the Chaum-Pedersen proof (u, v, s) and the aggregate ciphertext
// it decrypts. ArbiterPublicKeyPath points verifiers at the published pk_i.
type PartialDecryptionRow struct {
	ArbiterID            string       `json:"arbiter_id"`
	Slot                 int          `json:"slot"`
	D                    *big.Int     `json:"d"`
	Aggregate            BallotCipher `json:"aggregate"`
	U                    *big.Int     `json:"u"`
	V                    *big.Int     `json:"v"`
	S                    *big.Int     `json:"s"`
	ArbiterPublicKeyPath string       `json:"arbiter_public_key_path"`
	CreatedAt            int64        `json:"created_at"`
}
