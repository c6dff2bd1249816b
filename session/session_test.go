package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoting/encryption"
	"evoting/models"
)

func TestSessionRoundTrip(t *testing.T) {
	group := encryption.DefaultGroup()
	serverKey, err := encryption.GenerateRSAKeyPair()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		sc, err := Accept(conn, group, serverKey)
		if err != nil {
			done <- err
			return
		}
		payload, err := sc.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		done <- sc.WriteMessage(payload)
	}()

	client, err := Dial(ln.Addr().String(), group, &serverKey.PublicKey)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage([]byte("hello over the session")))
	echo, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello over the session"), echo)
	require.NoError(t, <-done)
}

func TestDialRejectsWrongServerKey(t *testing.T) {
	group := encryption.DefaultGroup()
	serverKey, err := encryption.GenerateRSAKeyPair()
	require.NoError(t, err)
	otherKey, err := encryption.GenerateRSAKeyPair()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		Accept(conn, group, serverKey)
	}()

	// The client expects a different identity: the handshake signature
	// must not verify and no session is established.
	_, err = Dial(ln.Addr().String(), group, &otherKey.PublicKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCrypto)
}

func TestClientRejectsForeignEcho(t *testing.T) {
	group := encryption.DefaultGroup()
	serverKey, err := encryption.GenerateRSAKeyPair()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// A well-signed reply echoing someone else's DH value: the
		// client must refuse to bind the session.
		first, err := readFrame(conn)
		if err != nil {
			return
		}
		var hello models.ClientHello
		if err := hello.Unmarshal(first); err != nil {
			return
		}
		dh, err := encryption.GenerateDHKeyPair(group)
		if err != nil {
			return
		}
		foreign, err := encryption.GenerateDHKeyPair(group)
		if err != nil {
			return
		}
		reply := &models.ServerHello{
			ServerPublic: dh.Public,
			ClientPublic: foreign.Public,
		}
		sig, err := encryption.RSASign(serverKey, reply.Transcript())
		if err != nil {
			return
		}
		reply.Signature = sig
		writeFrame(conn, reply.Marshal())
	}()

	_, err = Dial(ln.Addr().String(), group, &serverKey.PublicKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCrypto)
}

func TestSessionIDsAreUnique(t *testing.T) {
	group := encryption.DefaultGroup()
	serverKey, err := encryption.GenerateRSAKeyPair()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				Accept(c, group, serverKey)
			}(conn)
		}
	}()

	c1, err := Dial(ln.Addr().String(), group, &serverKey.PublicKey)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := Dial(ln.Addr().String(), group, &serverKey.PublicKey)
	require.NoError(t, err)
	defer c2.Close()

	assert.NotEqual(t, c1.ID, c2.ID)
}
