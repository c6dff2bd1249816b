package service

import (
	"crypto/rsa"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/google/uuid"
	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
	"evoting/election"
	"evoting/encryption"
	"evoting/keys"
	"evoting/models"
	"evoting/session"
	"evoting/storage"
)

var tallyerLog = logging.MustGetLogger("evoting.tallyer")

// Tallyer is the ingestion gateway: it verifies each submitted multi-ballot
// end to end and appends a signed record to the bulletin board.
type Tallyer struct {
	group        *encryption.GroupParams
	signingKey   *rsa.PrivateKey
	registrarKey *rsa.PublicKey
	electionPK   *big.Int
	board        *storage.Board
	srv          server
}

// NewTallyer loads (or on first run generates and publishes) the tallyer
// signing key, then the registrar verification key and the election public
// key the submissions will be checked against.
func NewTallyer(cfg *config.Config) (*Tallyer, error) {
	signingKey, err := keys.LoadRSAPrivateKey(cfg.Tallyer.SigningKeyPath)
	if err != nil {
		tallyerLog.Warningf("could not find tallyer keys, generating them instead: %v", err)
		signingKey, err = encryption.GenerateRSAKeyPair()
		if err != nil {
			return nil, err
		}
		if err := keys.SaveRSAPrivateKey(cfg.Tallyer.SigningKeyPath, signingKey); err != nil {
			return nil, err
		}
		if err := keys.SaveRSAPublicKey(cfg.Common.TallyerVerificationKeyPath, &signingKey.PublicKey); err != nil {
			return nil, err
		}
	}

	registrarKey, err := keys.LoadRSAPublicKey(cfg.Common.RegistrarVerificationKeyPath)
	if err != nil {
		return nil, err
	}

	group := encryption.DefaultGroup()
	electionPK, err := keys.LoadElectionPublicKey(group, cfg.Common.ArbiterPublicKeyPaths)
	if err != nil {
		return nil, err
	}

	board, err := storage.Open(cfg.Common.BoardPath)
	if err != nil {
		return nil, err
	}
	return &Tallyer{
		group:        group,
		signingKey:   signingKey,
		registrarKey: registrarKey,
		electionPK:   electionPK,
		board:        board,
	}, nil
}

// VerificationKey exposes the public half for clients and tests.
func (t *Tallyer) VerificationKey() *rsa.PublicKey {
	return &t.signingKey.PublicKey
}

// Start binds the port and begins accepting vote sessions.
func (t *Tallyer) Start(port int) error {
	if err := t.srv.start(port, t.handleConn); err != nil {
		return err
	}
	tallyerLog.Noticef("tallyer listening on %s", t.srv.addr())
	return nil
}

// Addr returns the bound address.
func (t *Tallyer) Addr() string { return t.srv.addr() }

// Stop closes the listener and waits for in-flight handlers.
func (t *Tallyer) Stop() { t.srv.stop() }

func (t *Tallyer) handleConn(conn net.Conn) {
	sc, err := session.Accept(conn, t.group, t.signingKey)
	if err != nil {
		tallyerLog.Errorf("handshake failed: %v", err)
		return
	}
	tallyerLog.Debugf("session %s established", sc.ID)

	payload, err := sc.ReadMessage()
	if err != nil {
		tallyerLog.Errorf("session %s: %v", sc.ID, err)
		return
	}
	var sub models.VoteSubmission
	if err := sub.Unmarshal(payload); err != nil {
		tallyerLog.Errorf("session %s: %v", sc.ID, err)
		return
	}

	if err := t.ProcessSubmission(&sub); err != nil {
		tallyerLog.Errorf("session %s: submission rejected: %v", sc.ID, err)
		return
	}
	tallyerLog.Noticef("session %s: ballot accepted", sc.ID)
}

// ProcessSubmission verifies a multi-ballot and appends it to the board.
// Any single slot failing its blind signature or proof rejects the whole
// submission; nothing is appended.
func (t *Tallyer) ProcessSubmission(sub *models.VoteSubmission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	key := models.SubmissionKey(sub)
	seen, err := t.board.HasBallot(key)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: ballot already tallied", models.ErrPolicy)
	}

	for i := range sub.Ciphers {
		cipher := &sub.Ciphers[i]
		if !encryption.BlindVerify(t.registrarKey, cipher.Marshal(), sub.Signatures[i]) {
			return fmt.Errorf("%w: slot %d: registrar signature invalid", models.ErrCrypto, i)
		}
		if !election.VerifyBallot(t.group, t.electionPK, cipher, &sub.Proofs[i]) {
			return fmt.Errorf("%w: slot %d: ballot proof invalid", models.ErrCrypto, i)
		}
	}

	tallyerSig, err := encryption.RSASign(t.signingKey, sub.SigningPayload())
	if err != nil {
		return fmt.Errorf("%w: failed to sign record: %v", models.ErrCrypto, err)
	}

	return t.board.InsertVote(&models.VoteRow{
		ID:               uuid.New().String(),
		Ciphers:          sub.Ciphers,
		Proofs:           sub.Proofs,
		Signatures:       sub.Signatures,
		TallyerSignature: tallyerSig,
		CreatedAt:        time.Now().Unix(),
	})
}
