package service

import (
	"crypto/rsa"
	"fmt"
	"math/big"

	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
	"evoting/election"
	"evoting/encryption"
	"evoting/keys"
	"evoting/models"
	"evoting/session"
	"evoting/storage"
)

var voterLog = logging.MustGetLogger("evoting.voter")

// Voter is the client principal. Registration commits it to a set of
// ballot ciphertexts; voting submits them with unblinded authorizations;
// verification re-audits the whole public board.
type Voter struct {
	cfg          *config.Config
	group        *encryption.GroupParams
	registrarKey *rsa.PublicKey
	tallyerKey   *rsa.PublicKey
	board        *storage.Board

	ciphers    []models.BallotCipher
	proofs     []models.BallotProof
	blinds     []*big.Int
	signatures []*big.Int
}

// VerifyResult is the outcome of auditing the election: one count per
// candidate slot and a global success flag.
type VerifyResult struct {
	Counts []int
	OK     bool
}

// NewVoter loads the published verification keys and any saved registration
// state. Missing state just means the voter has not registered yet.
func NewVoter(cfg *config.Config) (*Voter, error) {
	registrarKey, err := keys.LoadRSAPublicKey(cfg.Common.RegistrarVerificationKeyPath)
	if err != nil {
		return nil, err
	}
	tallyerKey, err := keys.LoadRSAPublicKey(cfg.Common.TallyerVerificationKeyPath)
	if err != nil {
		return nil, err
	}
	board, err := storage.Open(cfg.Common.BoardPath)
	if err != nil {
		return nil, err
	}

	v := &Voter{
		cfg:          cfg,
		group:        encryption.DefaultGroup(),
		registrarKey: registrarKey,
		tallyerKey:   tallyerKey,
		board:        board,
	}
	ciphers, proofs, blinds, signatures, err := keys.LoadVoterState(cfg.Voter.StatePath)
	if err == nil {
		v.ciphers, v.proofs, v.blinds, v.signatures = ciphers, proofs, blinds, signatures
	} else {
		voterLog.Debugf("no saved vote info, voter may still need to register: %v", err)
	}
	return v, nil
}

// Register encrypts one 0/1 vote per candidate, blinds each ciphertext, and
// obtains the registrar's blind signatures over a secure session. The
// resulting state is persisted for the later vote command.
func (v *Voter) Register(address string, votes []int) error {
	if len(votes) == 0 {
		return fmt.Errorf("%w: no votes given", models.ErrPolicy)
	}

	electionPK, err := keys.LoadElectionPublicKey(v.group, v.cfg.Common.ArbiterPublicKeyPaths)
	if err != nil {
		return err
	}

	ciphers := make([]models.BallotCipher, len(votes))
	proofs := make([]models.BallotProof, len(votes))
	blinds := make([]*big.Int, len(votes))
	blinded := make([]*big.Int, len(votes))
	for i, vote := range votes {
		cipher, proof, err := election.GenerateBallot(v.group, electionPK, vote)
		if err != nil {
			return err
		}
		ciphers[i] = *cipher
		proofs[i] = *proof
		blinded[i], blinds[i], err = encryption.BlindMessage(v.registrarKey, cipher.Marshal())
		if err != nil {
			return err
		}
	}

	sc, err := session.Dial(address, v.group, v.registrarKey)
	if err != nil {
		return err
	}
	defer sc.Close()

	req := &models.RegisterRequest{VoterID: v.cfg.Voter.VoterID, Blinded: blinded}
	if err := sc.WriteMessage(req.Marshal()); err != nil {
		return err
	}

	payload, err := sc.ReadMessage()
	if err != nil {
		return err
	}
	var resp models.RegisterResponse
	if err := resp.Unmarshal(payload); err != nil {
		return err
	}
	if resp.VoterID != v.cfg.Voter.VoterID {
		return fmt.Errorf("%w: response for voter %q, want %q", models.ErrProtocol, resp.VoterID, v.cfg.Voter.VoterID)
	}
	if len(resp.Signatures) != len(votes) {
		return fmt.Errorf("%w: got %d signatures for %d slots", models.ErrProtocol, len(resp.Signatures), len(votes))
	}

	v.ciphers, v.proofs, v.blinds, v.signatures = ciphers, proofs, blinds, resp.Signatures
	if err := keys.SaveVoterState(v.cfg.Voter.StatePath, ciphers, proofs, blinds, resp.Signatures); err != nil {
		return err
	}
	voterLog.Noticef("registered %d slots, vote info saved at %s", len(votes), v.cfg.Voter.StatePath)
	return nil
}

// Vote unblinds the stored registrar signatures and submits the full
// multi-ballot to the tallyer.
func (v *Voter) Vote(address string) error {
	if len(v.ciphers) == 0 {
		return fmt.Errorf("%w: no registration state, register first", models.ErrPolicy)
	}

	unblinded := make([]*big.Int, len(v.signatures))
	for i, sig := range v.signatures {
		u, err := encryption.Unblind(v.registrarKey, sig, v.blinds[i])
		if err != nil {
			return fmt.Errorf("%w: slot %d: %v", models.ErrCrypto, i, err)
		}
		unblinded[i] = u
	}

	sub := &models.VoteSubmission{
		Ciphers:    v.ciphers,
		Proofs:     v.proofs,
		Signatures: unblinded,
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	sc, err := session.Dial(address, v.group, v.tallyerKey)
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := sc.WriteMessage(sub.Marshal()); err != nil {
		return err
	}
	voterLog.Notice("ballot submitted")
	return nil
}

// Verify audits the public board end to end: re-verify every tallied
// ballot, recombine per slot, verify every partial decryption under its
// arbiter's published key, and recover each slot's count. OK is false if
// any slot fails to decode.
func (v *Voter) Verify() (*VerifyResult, error) {
	electionPK, err := keys.LoadElectionPublicKey(v.group, v.cfg.Common.ArbiterPublicKeyPaths)
	if err != nil {
		return nil, err
	}

	rows, err := v.board.AllVotes()
	if err != nil {
		return nil, err
	}
	valid, slots := collectValidVotes(v.group, electionPK, v.registrarKey, v.tallyerKey, rows)
	voterLog.Noticef("verified %d of %d tallied ballots", len(valid), len(rows))

	partialsBySlot, err := v.board.PartialDecryptionsBySlot()
	if err != nil {
		return nil, err
	}
	// Published partials can name slots no surviving ballot covers (for
	// example when every row was tampered with after adjudication). Those
	// slots must still be audited, not skipped.
	for slot := range partialsBySlot {
		if slot+1 > slots {
			slots = slot + 1
		}
	}
	if slots == 0 {
		return &VerifyResult{OK: true}, nil
	}

	combined := combinePerSlot(v.group, valid, slots)

	bound := election.DefaultSearchBound
	if len(valid) > bound {
		bound = len(valid)
	}
	decoder := election.NewResultDecoder(v.group, bound)

	result := &VerifyResult{Counts: make([]int, slots), OK: true}
	for j := 0; j < slots; j++ {
		var shares []*big.Int
		for _, row := range partialsBySlot[j] {
			pki, err := keys.LoadInteger(row.ArbiterPublicKeyPath)
			if err != nil {
				voterLog.Warningf("slot %d: cannot load key for %q: %v", j, row.ArbiterID, err)
				continue
			}
			pd := &election.PartialDecryption{D: row.D, U: row.U, V: row.V, S: row.S}
			if !election.VerifyPartialDecryption(v.group, pki, &row.Aggregate, pd) {
				voterLog.Warningf("slot %d: partial from %q failed its proof", j, row.ArbiterID)
				continue
			}
			shares = append(shares, row.D)
		}

		count, err := decoder.Decode(&combined[j], shares)
		if err != nil {
			voterLog.Errorf("slot %d: %v", j, err)
			result.OK = false
			continue
		}
		result.Counts[j] = count
	}
	return result, nil
}
