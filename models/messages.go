package models

import (
	"fmt"
	"math/big"
)

// BallotCipher is an ElGamal encryption (a, b) = (g^r, pk^r * g^v) of one
// 0/1 vote for one candidate.
type BallotCipher struct {
	A *big.Int `json:"a"`
	B *big.Int `json:"b"`
}

// Marshal produces the canonical encoding. Blind signatures are issued over
// exactly these bytes, so the encoding must never change shape.
func (c *BallotCipher) Marshal() []byte {
	w := newWireWriter(TypeBallotCipher)
	w.putInt(c.A)
	w.putInt(c.B)
	return w.bytes()
}

func (c *BallotCipher) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeBallotCipher)
	if err != nil {
		return err
	}
	if c.A, err = r.getInt(); err != nil {
		return err
	}
	if c.B, err = r.getInt(); err != nil {
		return err
	}
	return r.finish()
}

// BallotProof is the disjunctive Chaum-Pedersen proof that a BallotCipher
// encrypts 0 or 1.
type BallotProof struct {
	A0 *big.Int `json:"a0"`
	A1 *big.Int `json:"a1"`
	B0 *big.Int `json:"b0"`
	B1 *big.Int `json:"b1"`
	C0 *big.Int `json:"c0"`
	C1 *big.Int `json:"c1"`
	R0 *big.Int `json:"r0"`
	R1 *big.Int `json:"r1"`
}

func (p *BallotProof) Marshal() []byte {
	w := newWireWriter(TypeBallotProof)
	for _, v := range []*big.Int{p.A0, p.A1, p.B0, p.B1, p.C0, p.C1, p.R0, p.R1} {
		w.putInt(v)
	}
	return w.bytes()
}

func (p *BallotProof) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeBallotProof)
	if err != nil {
		return err
	}
	for _, dst := range []**big.Int{&p.A0, &p.A1, &p.B0, &p.B1, &p.C0, &p.C1, &p.R0, &p.R1} {
		if *dst, err = r.getInt(); err != nil {
			return err
		}
	}
	return r.finish()
}

// ClientHello opens a session: the client's ephemeral DH value g^a.
type ClientHello struct {
	Public *big.Int
}

func (m *ClientHello) Marshal() []byte {
	w := newWireWriter(TypeClientHello)
	w.putInt(m.Public)
	return w.bytes()
}

func (m *ClientHello) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeClientHello)
	if err != nil {
		return err
	}
	if m.Public, err = r.getInt(); err != nil {
		return err
	}
	return r.finish()
}

// ServerHello answers with g^b, the echoed g^a, and the server's RSA
// signature over the transcript (g^b || g^a).
type ServerHello struct {
	ServerPublic *big.Int
	ClientPublic *big.Int
	Signature    []byte
}

// Transcript is the byte string the server signs. Both values are framed so
// neither side can shift bytes between them.
func (m *ServerHello) Transcript() []byte {
	w := newWireWriter(TypeServerHello)
	w.putInt(m.ServerPublic)
	w.putInt(m.ClientPublic)
	return w.bytes()
}

func (m *ServerHello) Marshal() []byte {
	w := newWireWriter(TypeServerHello)
	w.putInt(m.ServerPublic)
	w.putInt(m.ClientPublic)
	w.putBytes(m.Signature)
	return w.bytes()
}

func (m *ServerHello) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeServerHello)
	if err != nil {
		return err
	}
	if m.ServerPublic, err = r.getInt(); err != nil {
		return err
	}
	if m.ClientPublic, err = r.getInt(); err != nil {
		return err
	}
	if m.Signature, err = r.getBytes(); err != nil {
		return err
	}
	return r.finish()
}

// EncryptedMessage wraps a serialized message for the record protocol.
type EncryptedMessage struct {
	IV         []byte
	Ciphertext []byte
	MAC        []byte
}

func (m *EncryptedMessage) Marshal() []byte {
	w := newWireWriter(TypeSecureRecord)
	w.putBytes(m.IV)
	w.putBytes(m.Ciphertext)
	w.putBytes(m.MAC)
	return w.bytes()
}

func (m *EncryptedMessage) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeSecureRecord)
	if err != nil {
		return err
	}
	if m.IV, err = r.getBytes(); err != nil {
		return err
	}
	if m.Ciphertext, err = r.getBytes(); err != nil {
		return err
	}
	if m.MAC, err = r.getBytes(); err != nil {
		return err
	}
	return r.finish()
}

// RegisterRequest carries one blinded ballot cipher per candidate slot to
// the registrar.
type RegisterRequest struct {
	VoterID string
	Blinded []*big.Int
}

func (m *RegisterRequest) Marshal() []byte {
	w := newWireWriter(TypeRegisterRequest)
	w.putString(m.VoterID)
	w.putCount(len(m.Blinded))
	for _, b := range m.Blinded {
		w.putInt(b)
	}
	return w.bytes()
}

func (m *RegisterRequest) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeRegisterRequest)
	if err != nil {
		return err
	}
	if m.VoterID, err = r.getString(); err != nil {
		return err
	}
	n, err := r.getCount()
	if err != nil {
		return err
	}
	m.Blinded = make([]*big.Int, n)
	for i := range m.Blinded {
		if m.Blinded[i], err = r.getInt(); err != nil {
			return err
		}
	}
	return r.finish()
}

// RegisterResponse returns one blind signature per submitted slot.
type RegisterResponse struct {
	VoterID    string
	Signatures []*big.Int
}

func (m *RegisterResponse) Marshal() []byte {
	w := newWireWriter(TypeRegisterResponse)
	w.putString(m.VoterID)
	w.putCount(len(m.Signatures))
	for _, s := range m.Signatures {
		w.putInt(s)
	}
	return w.bytes()
}

func (m *RegisterResponse) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeRegisterResponse)
	if err != nil {
		return err
	}
	if m.VoterID, err = r.getString(); err != nil {
		return err
	}
	n, err := r.getCount()
	if err != nil {
		return err
	}
	m.Signatures = make([]*big.Int, n)
	for i := range m.Signatures {
		if m.Signatures[i], err = r.getInt(); err != nil {
			return err
		}
	}
	return r.finish()
}

// VoteSubmission is the voter's full multi-ballot: one cipher, proof, and
// unblinded registrar signature per candidate slot.
type VoteSubmission struct {
	Ciphers    []BallotCipher
	Proofs     []BallotProof
	Signatures []*big.Int
}

// Validate enforces that the three parallel sequences agree in length and
// are non-empty.
func (m *VoteSubmission) Validate() error {
	if len(m.Ciphers) == 0 {
		return fmt.Errorf("%w: empty submission", ErrProtocol)
	}
	if len(m.Proofs) != len(m.Ciphers) || len(m.Signatures) != len(m.Ciphers) {
		return fmt.Errorf("%w: mismatched sequence lengths %d/%d/%d",
			ErrProtocol, len(m.Ciphers), len(m.Proofs), len(m.Signatures))
	}
	return nil
}

func (m *VoteSubmission) Marshal() []byte {
	w := newWireWriter(TypeVoteSubmission)
	w.putCount(len(m.Ciphers))
	for i := range m.Ciphers {
		w.putBytes(m.Ciphers[i].Marshal())
	}
	w.putCount(len(m.Proofs))
	for i := range m.Proofs {
		w.putBytes(m.Proofs[i].Marshal())
	}
	w.putCount(len(m.Signatures))
	for _, s := range m.Signatures {
		w.putInt(s)
	}
	return w.bytes()
}

func (m *VoteSubmission) Unmarshal(data []byte) error {
	r, err := newWireReader(data, TypeVoteSubmission)
	if err != nil {
		return err
	}
	n, err := r.getCount()
	if err != nil {
		return err
	}
	m.Ciphers = make([]BallotCipher, n)
	for i := range m.Ciphers {
		b, err := r.getBytes()
		if err != nil {
			return err
		}
		if err := m.Ciphers[i].Unmarshal(b); err != nil {
			return err
		}
	}
	if n, err = r.getCount(); err != nil {
		return err
	}
	m.Proofs = make([]BallotProof, n)
	for i := range m.Proofs {
		b, err := r.getBytes()
		if err != nil {
			return err
		}
		if err := m.Proofs[i].Unmarshal(b); err != nil {
			return err
		}
	}
	if n, err = r.getCount(); err != nil {
		return err
	}
	m.Signatures = make([]*big.Int, n)
	for i := range m.Signatures {
		if m.Signatures[i], err = r.getInt(); err != nil {
			return err
		}
	}
	if err := r.finish(); err != nil {
		return err
	}
	return m.Validate()
}

// SigningPayload is the canonical byte string the tallyer signs: the three
// sequences in order, each element framed.
func (m *VoteSubmission) SigningPayload() []byte {
	return m.Marshal()
}
