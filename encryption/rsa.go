package encryption

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const rsaKeyBits = 2048

// GenerateRSAKeyPair creates a signing key for a server principal.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// RSASign signs data with RSA PKCS#1 v1.5 over SHA-256. Used for DH
// transcripts and tallyer board records.
func RSASign(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// RSAVerify reports whether sig is a valid signature of data under key.
func RSAVerify(key *rsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}

// hashToInt maps a message into Z*_N for the blind-signature scheme. The
// Keccak256 digest is far below N, so the result is always reduced.
func hashToInt(msg []byte) *big.Int {
	return new(big.Int).SetBytes(ethcrypto.Keccak256(msg))
}

// BlindMessage hides msg from the signer: the caller sends the returned
// blinded value and keeps the blinding factor for Unblind.
func BlindMessage(key *rsa.PublicKey, msg []byte) (blinded, blind *big.Int, err error) {
	m := hashToInt(msg)
	e := big.NewInt(int64(key.E))
	one := big.NewInt(1)
	for {
		blind, err = rand.Int(rand.Reader, key.N)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to sample blinding factor: %w", err)
		}
		if blind.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, blind, key.N).Cmp(one) == 0 {
			break
		}
	}
	blinded = ModMul(m, ModExp(blind, e, key.N), key.N)
	return blinded, blind, nil
}

// BlindSign applies the raw RSA signing operation to a blinded message.
// The signer never sees the underlying ballot ciphertext.
func BlindSign(key *rsa.PrivateKey, blinded *big.Int) *big.Int {
	return ModExp(blinded, key.D, key.N)
}

// Unblind strips the blinding factor, leaving a standard signature on the
// hashed message: sig * blind^-1 = m^d mod N.
func Unblind(key *rsa.PublicKey, blindSig, blind *big.Int) (*big.Int, error) {
	inv := ModInverse(blind, key.N)
	if inv == nil {
		return nil, fmt.Errorf("blinding factor not invertible mod N")
	}
	return ModMul(blindSig, inv, key.N), nil
}

// BlindVerify checks sig^e = H(msg) mod N.
func BlindVerify(key *rsa.PublicKey, msg []byte, sig *big.Int) bool {
	if sig == nil || sig.Sign() <= 0 || sig.Cmp(key.N) >= 0 {
		return false
	}
	e := big.NewInt(int64(key.E))
	return ModExp(sig, e, key.N).Cmp(hashToInt(msg)) == 0
}
