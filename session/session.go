// Package session provides the authenticated channel between a client and a
// server principal: a signed Diffie-Hellman handshake followed by an
// encrypt-then-MAC record protocol. Each session serves one request/response
// exchange and is then closed.
package session

import (
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"

	"evoting/encryption"
	"evoting/models"
)

// maxFrameSize bounds a single wire frame. Multi-ballots are a few hundred
// kilobytes at most.
const maxFrameSize = 16 << 20

// Conn is an established session. All payloads after the handshake travel
// encrypted and authenticated.
type Conn struct {
	ID   string
	conn net.Conn
	keys *encryption.SessionKeys
}

func writeFrame(conn net.Conn, payload []byte) error {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(payload)))
	if _, err := conn.Write(size[:]); err != nil {
		return fmt.Errorf("%w: failed to write frame: %v", models.ErrIO, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: failed to write frame: %v", models.ErrIO, err)
	}
	return nil
}

func readFrame(conn net.Conn) ([]byte, error) {
	var size [8]byte
	if _, err := io.ReadFull(conn, size[:]); err != nil {
		return nil, fmt.Errorf("%w: failed to read frame: %v", models.ErrIO, err)
	}
	n := binary.BigEndian.Uint64(size[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", models.ErrProtocol, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, fmt.Errorf("%w: failed to read frame: %v", models.ErrIO, err)
	}
	return payload, nil
}

// Dial connects to a server principal and runs the client side of the
// handshake. The server must prove possession of the RSA key behind
// verificationKey and echo back our DH value before any secret is derived.
func Dial(address string, group *encryption.GroupParams, verificationKey *rsa.PublicKey) (*Conn, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", models.ErrIO, address, err)
	}

	sc, err := clientHandshake(conn, group, verificationKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sc, nil
}

func clientHandshake(conn net.Conn, group *encryption.GroupParams, verificationKey *rsa.PublicKey) (*Conn, error) {
	dh, err := encryption.GenerateDHKeyPair(group)
	if err != nil {
		return nil, err
	}

	hello := &models.ClientHello{Public: dh.Public}
	if err := writeFrame(conn, hello.Marshal()); err != nil {
		return nil, err
	}

	reply, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	var serverHello models.ServerHello
	if err := serverHello.Unmarshal(reply); err != nil {
		return nil, err
	}

	// The echo binds the session to our DH value; the signature binds it
	// to the server's long-term identity. Either failure aborts before key
	// derivation.
	if serverHello.ClientPublic.Cmp(dh.Public) != 0 {
		return nil, fmt.Errorf("%w: server echoed a foreign DH value", models.ErrCrypto)
	}
	if !encryption.RSAVerify(verificationKey, serverHello.Transcript(), serverHello.Signature) {
		return nil, fmt.Errorf("%w: server handshake signature invalid", models.ErrCrypto)
	}

	keys, err := encryption.DeriveSessionKeys(dh.SharedSecret(group, serverHello.ServerPublic))
	if err != nil {
		return nil, err
	}
	return &Conn{ID: uuid.New().String(), conn: conn, keys: keys}, nil
}

// Accept runs the server side of the handshake on an accepted connection,
// signing the DH transcript with the server's long-term key.
func Accept(conn net.Conn, group *encryption.GroupParams, signingKey *rsa.PrivateKey) (*Conn, error) {
	first, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	var hello models.ClientHello
	if err := hello.Unmarshal(first); err != nil {
		return nil, err
	}

	dh, err := encryption.GenerateDHKeyPair(group)
	if err != nil {
		return nil, err
	}

	serverHello := &models.ServerHello{
		ServerPublic: dh.Public,
		ClientPublic: hello.Public,
	}
	sig, err := encryption.RSASign(signingKey, serverHello.Transcript())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign handshake: %v", models.ErrCrypto, err)
	}
	serverHello.Signature = sig
	if err := writeFrame(conn, serverHello.Marshal()); err != nil {
		return nil, err
	}

	keys, err := encryption.DeriveSessionKeys(dh.SharedSecret(group, hello.Public))
	if err != nil {
		return nil, err
	}
	return &Conn{ID: uuid.New().String(), conn: conn, keys: keys}, nil
}

// WriteMessage seals and sends one serialized message.
func (c *Conn) WriteMessage(payload []byte) error {
	record, err := encryption.EncryptAndTag(c.keys, payload)
	if err != nil {
		return fmt.Errorf("%w: failed to seal record: %v", models.ErrCrypto, err)
	}
	wrapped := &models.EncryptedMessage{
		IV:         record.IV,
		Ciphertext: record.Ciphertext,
		MAC:        record.MAC,
	}
	return writeFrame(c.conn, wrapped.Marshal())
}

// ReadMessage receives and opens one message, verifying the tag before the
// payload is deserialized.
func (c *Conn) ReadMessage() ([]byte, error) {
	frame, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	var wrapped models.EncryptedMessage
	if err := wrapped.Unmarshal(frame); err != nil {
		return nil, err
	}
	payload, err := encryption.DecryptAndVerify(c.keys, &encryption.SecureRecord{
		IV:         wrapped.IV,
		Ciphertext: wrapped.Ciphertext,
		MAC:        wrapped.MAC,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: record rejected", models.ErrCrypto)
	}
	return payload, nil
}

// Close tears the session down.
func (c *Conn) Close() error {
	return c.conn.Close()
}
