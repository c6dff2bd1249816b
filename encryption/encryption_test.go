package encryption

import (
	"crypto/rsa"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRSAOnce sync.Once
	testRSAKey  *rsa.PrivateKey
)

func testRSA(t *testing.T) *rsa.PrivateKey {
	testRSAOnce.Do(func() {
		key, err := GenerateRSAKeyPair()
		if err != nil {
			t.Fatalf("failed to generate test RSA key: %v", err)
		}
		testRSAKey = key
	})
	return testRSAKey
}

func TestGroupParams(t *testing.T) {
	group := DefaultGroup()

	// q = (p-1)/2 and g generates the order-q subgroup.
	pMinus1 := new(big.Int).Sub(group.P, big.NewInt(1))
	require.Equal(t, 0, new(big.Int).Mod(pMinus1, group.Q).Sign())
	require.Equal(t, 0, ModExp(group.G, group.Q, group.P).Cmp(big.NewInt(1)))

	require.True(t, group.P.ProbablyPrime(20))
	require.True(t, group.Q.ProbablyPrime(20))
}

func TestRandScalarRange(t *testing.T) {
	group := DefaultGroup()
	for i := 0; i < 32; i++ {
		s, err := RandScalar(group.Q)
		require.NoError(t, err)
		require.True(t, s.Sign() > 0)
		require.True(t, s.Cmp(group.Q) < 0)
	}
}

func TestElGamalKeyPair(t *testing.T) {
	group := DefaultGroup()
	kp, err := GenerateElGamalKeyPair(group)
	require.NoError(t, err)
	require.Equal(t, 0, kp.PublicKey.Cmp(ModExp(group.G, kp.SecretKey, group.P)))
}

func TestCombinePublicKeys(t *testing.T) {
	group := DefaultGroup()
	kp1, err := GenerateElGamalKeyPair(group)
	require.NoError(t, err)
	kp2, err := GenerateElGamalKeyPair(group)
	require.NoError(t, err)

	pk := CombinePublicKeys(group, []*big.Int{kp1.PublicKey, kp2.PublicKey})
	skSum := new(big.Int).Add(kp1.SecretKey, kp2.SecretKey)
	require.Equal(t, 0, pk.Cmp(ModExp(group.G, skSum, group.P)))
}

func TestRSASignVerify(t *testing.T) {
	key := testRSA(t)
	data := []byte("handshake transcript")

	sig, err := RSASign(key, data)
	require.NoError(t, err)
	require.True(t, RSAVerify(&key.PublicKey, data, sig))

	// Flipping any byte of the data or the signature invalidates it.
	tampered := append([]byte(nil), data...)
	tampered[0] ^= 1
	assert.False(t, RSAVerify(&key.PublicKey, tampered, sig))

	badSig := append([]byte(nil), sig...)
	badSig[10] ^= 1
	assert.False(t, RSAVerify(&key.PublicKey, data, badSig))
}

func TestBlindSignatureRoundTrip(t *testing.T) {
	key := testRSA(t)
	msg := []byte("ballot ciphertext bytes")

	blinded, blind, err := BlindMessage(&key.PublicKey, msg)
	require.NoError(t, err)

	blindSig := BlindSign(key, blinded)
	sig, err := Unblind(&key.PublicKey, blindSig, blind)
	require.NoError(t, err)

	require.True(t, BlindVerify(&key.PublicKey, msg, sig))
	assert.False(t, BlindVerify(&key.PublicKey, []byte("other message"), sig))

	tampered := new(big.Int).Add(sig, big.NewInt(1))
	assert.False(t, BlindVerify(&key.PublicKey, msg, tampered))
}

func TestBlindSignatureUnlinkable(t *testing.T) {
	key := testRSA(t)
	msg := []byte("same message")

	blinded1, _, err := BlindMessage(&key.PublicKey, msg)
	require.NoError(t, err)
	blinded2, _, err := BlindMessage(&key.PublicKey, msg)
	require.NoError(t, err)

	// Fresh blinding factors produce distinct blinded messages.
	assert.NotEqual(t, 0, blinded1.Cmp(blinded2))
}

func TestDHAgreement(t *testing.T) {
	group := DefaultGroup()

	alice, err := GenerateDHKeyPair(group)
	require.NoError(t, err)
	bob, err := GenerateDHKeyPair(group)
	require.NoError(t, err)

	secretA := alice.SharedSecret(group, bob.Public)
	secretB := bob.SharedSecret(group, alice.Public)
	require.Equal(t, 0, secretA.Cmp(secretB))

	keysA, err := DeriveSessionKeys(secretA)
	require.NoError(t, err)
	keysB, err := DeriveSessionKeys(secretB)
	require.NoError(t, err)

	require.Equal(t, keysA.AESKey, keysB.AESKey)
	require.Equal(t, keysA.HMACKey, keysB.HMACKey)
	assert.NotEqual(t, keysA.AESKey, keysA.HMACKey)
}

func TestEncryptThenMAC(t *testing.T) {
	group := DefaultGroup()
	kp, err := GenerateDHKeyPair(group)
	require.NoError(t, err)
	keys, err := DeriveSessionKeys(kp.Public)
	require.NoError(t, err)

	plaintext := []byte("a message that spans multiple AES blocks to exercise padding")
	record, err := EncryptAndTag(keys, plaintext)
	require.NoError(t, err)

	got, err := DecryptAndVerify(keys, record)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptRejectsTampering(t *testing.T) {
	group := DefaultGroup()
	kp, err := GenerateDHKeyPair(group)
	require.NoError(t, err)
	keys, err := DeriveSessionKeys(kp.Public)
	require.NoError(t, err)

	record, err := EncryptAndTag(keys, []byte("payload"))
	require.NoError(t, err)

	// Every tampering path yields the same error, leaking nothing about
	// which check failed.
	flipCT := &SecureRecord{IV: record.IV, Ciphertext: append([]byte(nil), record.Ciphertext...), MAC: record.MAC}
	flipCT.Ciphertext[0] ^= 1
	_, err = DecryptAndVerify(keys, flipCT)
	assert.ErrorIs(t, err, ErrDecrypt)

	flipMAC := &SecureRecord{IV: record.IV, Ciphertext: record.Ciphertext, MAC: append([]byte(nil), record.MAC...)}
	flipMAC.MAC[0] ^= 1
	_, err = DecryptAndVerify(keys, flipMAC)
	assert.ErrorIs(t, err, ErrDecrypt)

	flipIV := &SecureRecord{IV: append([]byte(nil), record.IV...), Ciphertext: record.Ciphertext, MAC: record.MAC}
	flipIV.IV[0] ^= 1
	_, err = DecryptAndVerify(keys, flipIV)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFreshIVPerRecord(t *testing.T) {
	group := DefaultGroup()
	kp, err := GenerateDHKeyPair(group)
	require.NoError(t, err)
	keys, err := DeriveSessionKeys(kp.Public)
	require.NoError(t, err)

	r1, err := EncryptAndTag(keys, []byte("same plaintext"))
	require.NoError(t, err)
	r2, err := EncryptAndTag(keys, []byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, r1.IV, r2.IV)
	assert.NotEqual(t, r1.Ciphertext, r2.Ciphertext)
}

func TestHashTranscripts(t *testing.T) {
	group := DefaultGroup()
	vals := make([]*big.Int, 7)
	for i := range vals {
		vals[i] = big.NewInt(int64(i + 10))
	}

	c1 := HashVoteZKP(group, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6])
	c2 := HashVoteZKP(group, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6])
	require.Equal(t, 0, c1.Cmp(c2))
	require.True(t, c1.Cmp(group.Q) < 0)

	// Any changed transcript element changes the challenge.
	c3 := HashVoteZKP(group, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], big.NewInt(99))
	assert.NotEqual(t, 0, c1.Cmp(c3))

	// The decryption domain never collides with the vote domain even on
	// a transcript sharing the same leading values.
	d := HashDecZKP(group, vals[0], vals[1], vals[2], vals[3], vals[4])
	assert.NotEqual(t, 0, d.Cmp(HashVoteZKP(group, vals[0], vals[1], vals[2], vals[3], vals[4], big.NewInt(0), big.NewInt(0))))
}
