package service

import (
	"fmt"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
	"evoting/election"
	"evoting/encryption"
	"evoting/keys"
	"evoting/models"
	"evoting/storage"
)

var arbiterLog = logging.MustGetLogger("evoting.arbiter")

// Arbiter is one trustee. It never serves connections; it reads the board,
// verifies it independently, and publishes proven partial decryptions.
type Arbiter struct {
	cfg     *config.Config
	group   *encryption.GroupParams
	board   *storage.Board
	keyPair *encryption.ElGamalKeyPair
}

// NewArbiter opens the board. Verification keys are loaded per adjudication
// and the arbiter's own ElGamal pair lazily, so a fresh arbiter can run
// keygen before the other principals have published anything.
func NewArbiter(cfg *config.Config) (*Arbiter, error) {
	board, err := storage.Open(cfg.Common.BoardPath)
	if err != nil {
		return nil, err
	}

	a := &Arbiter{
		cfg:   cfg,
		group: encryption.DefaultGroup(),
		board: board,
	}
	if kp, err := a.loadKeyPair(); err == nil {
		a.keyPair = kp
	} else {
		arbiterLog.Warningf("could not find arbiter keys; you might consider generating some: %v", err)
	}
	return a, nil
}

func (a *Arbiter) loadKeyPair() (*encryption.ElGamalKeyPair, error) {
	sk, err := keys.LoadInteger(a.cfg.Arbiter.SecretKeyPath)
	if err != nil {
		return nil, err
	}
	pk, err := keys.LoadInteger(a.cfg.Arbiter.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	return &encryption.ElGamalKeyPair{SecretKey: sk, PublicKey: pk}, nil
}

// Keygen creates and persists this arbiter's ElGamal share. The public half
// is published at the configured path, where every other principal's
// election-key aggregation picks it up.
func (a *Arbiter) Keygen() error {
	arbiterLog.Notice("generating keys, this may take some time...")
	kp, err := encryption.GenerateElGamalKeyPair(a.group)
	if err != nil {
		return err
	}
	if err := keys.SaveInteger(a.cfg.Arbiter.SecretKeyPath, kp.SecretKey); err != nil {
		return err
	}
	if err := keys.SaveInteger(a.cfg.Arbiter.PublicKeyPath, kp.PublicKey); err != nil {
		return err
	}
	a.keyPair = kp
	arbiterLog.Notice("keys successfully generated and saved")
	return nil
}

// Adjudicate re-verifies the whole board, homomorphically combines the
// surviving ballots per candidate slot, and publishes one proven partial
// decryption per slot. Invalid rows are dropped silently; a failure to
// produce any partial aborts without publishing.
func (a *Arbiter) Adjudicate() error {
	if a.keyPair == nil {
		kp, err := a.loadKeyPair()
		if err != nil {
			return fmt.Errorf("%w: arbiter keys missing, run keygen first", models.ErrIO)
		}
		a.keyPair = kp
	}

	registrarKey, err := keys.LoadRSAPublicKey(a.cfg.Common.RegistrarVerificationKeyPath)
	if err != nil {
		return err
	}
	tallyerKey, err := keys.LoadRSAPublicKey(a.cfg.Common.TallyerVerificationKeyPath)
	if err != nil {
		return err
	}

	// Reload the election key so late-joining arbiters are included.
	electionPK, err := keys.LoadElectionPublicKey(a.group, a.cfg.Common.ArbiterPublicKeyPaths)
	if err != nil {
		return err
	}

	rows, err := a.board.AllVotes()
	if err != nil {
		return err
	}
	valid, slots := collectValidVotes(a.group, electionPK, registrarKey, tallyerKey, rows)
	arbiterLog.Noticef("adjudicating %d of %d tallied ballots", len(valid), len(rows))
	if slots == 0 {
		arbiterLog.Notice("no valid ballots on the board, nothing to decrypt")
		return nil
	}

	combined := combinePerSlot(a.group, valid, slots)

	// Compute every partial before publishing any, so a failure leaves
	// the board untouched.
	partials := make([]*election.PartialDecryption, slots)
	for j := range combined {
		pd, err := election.PartialDecrypt(a.group, a.keyPair, &combined[j])
		if err != nil {
			return err
		}
		partials[j] = pd
	}

	now := time.Now().Unix()
	for j, pd := range partials {
		row := &models.PartialDecryptionRow{
			ArbiterID:            a.cfg.Arbiter.ArbiterID,
			Slot:                 j,
			D:                    pd.D,
			Aggregate:            combined[j],
			U:                    pd.U,
			V:                    pd.V,
			S:                    pd.S,
			ArbiterPublicKeyPath: a.cfg.Arbiter.PublicKeyPath,
			CreatedAt:            now,
		}
		if err := a.board.UpsertPartialDecryption(row); err != nil {
			return err
		}
	}
	arbiterLog.Noticef("published %d partial decryptions", slots)
	return nil
}
