package service

import (
	"crypto/rsa"
	"fmt"
	"math/big"
	"net"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
	"evoting/encryption"
	"evoting/keys"
	"evoting/models"
	"evoting/session"
	"evoting/storage"
)

var registrarLog = logging.MustGetLogger("evoting.registrar")

// Registrar is the blind-signing authority. It authorizes each voter's
// ballot ciphertexts exactly once without ever seeing them.
type Registrar struct {
	group      *encryption.GroupParams
	signingKey *rsa.PrivateKey
	board      *storage.Board
	srv        server
}

// NewRegistrar loads the signing key (generating and publishing one on
// first run, as the original registrar does) and opens the board.
func NewRegistrar(cfg *config.Config) (*Registrar, error) {
	signingKey, err := keys.LoadRSAPrivateKey(cfg.Registrar.SigningKeyPath)
	if err != nil {
		registrarLog.Warningf("could not find registrar keys, generating them instead: %v", err)
		signingKey, err = encryption.GenerateRSAKeyPair()
		if err != nil {
			return nil, err
		}
		if err := keys.SaveRSAPrivateKey(cfg.Registrar.SigningKeyPath, signingKey); err != nil {
			return nil, err
		}
		if err := keys.SaveRSAPublicKey(cfg.Common.RegistrarVerificationKeyPath, &signingKey.PublicKey); err != nil {
			return nil, err
		}
	}

	board, err := storage.Open(cfg.Common.BoardPath)
	if err != nil {
		return nil, err
	}
	return &Registrar{
		group:      encryption.DefaultGroup(),
		signingKey: signingKey,
		board:      board,
	}, nil
}

// VerificationKey exposes the public half for clients and tests.
func (r *Registrar) VerificationKey() *rsa.PublicKey {
	return &r.signingKey.PublicKey
}

// Start binds the port and begins accepting registration sessions.
func (r *Registrar) Start(port int) error {
	if err := r.srv.start(port, r.handleConn); err != nil {
		return err
	}
	registrarLog.Noticef("registrar listening on %s", r.srv.addr())
	return nil
}

// Addr returns the bound address.
func (r *Registrar) Addr() string { return r.srv.addr() }

// Stop closes the listener and waits for in-flight handlers.
func (r *Registrar) Stop() { r.srv.stop() }

// handleConn runs one registration session: handshake, one request, one
// response. Errors are logged and the socket closed; the listener keeps
// accepting.
func (r *Registrar) handleConn(conn net.Conn) {
	sc, err := session.Accept(conn, r.group, r.signingKey)
	if err != nil {
		registrarLog.Errorf("handshake failed: %v", err)
		return
	}
	registrarLog.Debugf("session %s established", sc.ID)

	payload, err := sc.ReadMessage()
	if err != nil {
		registrarLog.Errorf("session %s: %v", sc.ID, err)
		return
	}
	var req models.RegisterRequest
	if err := req.Unmarshal(payload); err != nil {
		registrarLog.Errorf("session %s: %v", sc.ID, err)
		return
	}

	resp, err := r.ProcessRegistration(&req)
	if err != nil {
		registrarLog.Errorf("session %s: registration for %q rejected: %v", sc.ID, req.VoterID, err)
		return
	}
	if err := sc.WriteMessage(resp.Marshal()); err != nil {
		registrarLog.Errorf("session %s: %v", sc.ID, err)
	}
}

// ProcessRegistration blind-signs each submitted message. Re-registration
// returns the originally issued signatures: the voter already committed to
// specific ciphertexts, so reissuing the same signatures cannot enable a
// second vote.
func (r *Registrar) ProcessRegistration(req *models.RegisterRequest) (*models.RegisterResponse, error) {
	if req.VoterID == "" || len(req.Blinded) == 0 {
		return nil, fmt.Errorf("%w: empty registration", models.ErrProtocol)
	}

	existing, err := r.board.FindVoter(req.VoterID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		registrarLog.Noticef("voter %q already authorized, returning stored signatures", req.VoterID)
		return &models.RegisterResponse{
			VoterID:    req.VoterID,
			Signatures: existing.Signatures,
		}, nil
	}

	signatures := make([]*big.Int, len(req.Blinded))
	for i, blinded := range req.Blinded {
		signatures[i] = encryption.BlindSign(r.signingKey, blinded)
	}

	row := &models.VoterRow{
		VoterID:    req.VoterID,
		Blinded:    req.Blinded,
		Signatures: signatures,
		CreatedAt:  time.Now().Unix(),
	}
	if err := r.board.InsertVoter(row); err != nil {
		return nil, err
	}
	registrarLog.Noticef("authorized voter %q for %d slots", req.VoterID, len(signatures))

	return &models.RegisterResponse{
		VoterID:    req.VoterID,
		Signatures: signatures,
	}, nil
}
