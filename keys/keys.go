// Package keys persists long-term key material and the voter's registration
// state. Private keys never leave their owning principal's directory.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"

	"evoting/encryption"
	"evoting/models"
)

// SaveRSAPrivateKey writes key as a PKCS#1 PEM block readable only by the
// owner.
func SaveRSAPrivateKey(path string, key *rsa.PrivateKey) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return fmt.Errorf("%w: failed to save private key: %v", models.ErrIO, err)
	}
	return nil
}

// LoadRSAPrivateKey reads a PKCS#1 PEM private key.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read private key %s: %v", models.ErrIO, path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("%w: %s is not an RSA private key", models.ErrIO, path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key %s: %v", models.ErrIO, path, err)
	}
	return key, nil
}

// SaveRSAPublicKey writes key as a PKCS#1 PEM block.
func SaveRSAPublicKey(path string, key *rsa.PublicKey) error {
	block := &pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0644); err != nil {
		return fmt.Errorf("%w: failed to save public key: %v", models.ErrIO, err)
	}
	return nil
}

// LoadRSAPublicKey reads a PKCS#1 PEM public key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read public key %s: %v", models.ErrIO, path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PUBLIC KEY" {
		return nil, fmt.Errorf("%w: %s is not an RSA public key", models.ErrIO, path)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key %s: %v", models.ErrIO, path, err)
	}
	return key, nil
}

// SaveInteger writes a group element or secret exponent as Base64 text.
func SaveInteger(path string, i *big.Int) error {
	text := base64.StdEncoding.EncodeToString(i.Bytes()) + "\n"
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		return fmt.Errorf("%w: failed to save integer: %v", models.ErrIO, err)
	}
	return nil
}

// LoadInteger reads a Base64 integer file.
func LoadInteger(path string) (*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrIO, path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", models.ErrIO, path, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// LoadElectionPublicKey aggregates the published per-arbiter keys into the
// election public key pk = prod(pk_i) mod p. Late-joining arbiters change
// the product, so callers reload before every adjudication.
func LoadElectionPublicKey(group *encryption.GroupParams, paths []string) (*big.Int, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no arbiter public key paths configured", models.ErrIO)
	}
	publicKeys := make([]*big.Int, 0, len(paths))
	for _, path := range paths {
		pki, err := LoadInteger(path)
		if err != nil {
			return nil, err
		}
		publicKeys = append(publicKeys, pki)
	}
	return encryption.CombinePublicKeys(group, publicKeys), nil
}

// VoterState is everything the voter must keep between registration and
// voting: the ciphertexts it committed to, their proofs, the blinding
// factors, and the registrar's blind signatures. Ciphers and proofs are
// stored in their wire encoding.
type VoterState struct {
	Ciphers    []string `json:"ciphers"`
	Proofs     []string `json:"proofs"`
	Blinds     []string `json:"blinds"`
	Signatures []string `json:"signatures"`
}

// SaveVoterState persists the registration artifacts.
func SaveVoterState(path string, ciphers []models.BallotCipher, proofs []models.BallotProof, blinds, signatures []*big.Int) error {
	state := VoterState{}
	for i := range ciphers {
		state.Ciphers = append(state.Ciphers, base64.StdEncoding.EncodeToString(ciphers[i].Marshal()))
	}
	for i := range proofs {
		state.Proofs = append(state.Proofs, base64.StdEncoding.EncodeToString(proofs[i].Marshal()))
	}
	for _, b := range blinds {
		state.Blinds = append(state.Blinds, b.Text(10))
	}
	for _, s := range signatures {
		state.Signatures = append(state.Signatures, s.Text(10))
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal voter state: %v", models.ErrIO, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: failed to save voter state: %v", models.ErrIO, err)
	}
	return nil
}

// LoadVoterState restores the registration artifacts.
func LoadVoterState(path string) (ciphers []models.BallotCipher, proofs []models.BallotProof, blinds, signatures []*big.Int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: failed to read voter state %s: %v", models.ErrIO, path, err)
	}
	var state VoterState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: failed to parse voter state: %v", models.ErrIO, err)
	}

	ciphers = make([]models.BallotCipher, len(state.Ciphers))
	for i, enc := range state.Ciphers {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad cipher encoding: %v", models.ErrIO, err)
		}
		if err := ciphers[i].Unmarshal(raw); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	proofs = make([]models.BallotProof, len(state.Proofs))
	for i, enc := range state.Proofs {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad proof encoding: %v", models.ErrIO, err)
		}
		if err := proofs[i].Unmarshal(raw); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	for _, text := range state.Blinds {
		b, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad blind encoding", models.ErrIO)
		}
		blinds = append(blinds, b)
	}
	for _, text := range state.Signatures {
		s, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad signature encoding", models.ErrIO)
		}
		signatures = append(signatures, s)
	}
	return ciphers, proofs, blinds, signatures, nil
}
