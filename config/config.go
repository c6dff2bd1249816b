// Package config loads the TOML configuration each principal binary runs
// with. Paths are interpreted relative to the working directory.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"evoting/models"
)

// Common is shared by every principal: where the bulletin board lives and
// where the published verification keys are.
type Common struct {
	BoardPath                    string   `toml:"board_path"`
	RegistrarVerificationKeyPath string   `toml:"registrar_verification_key_path"`
	TallyerVerificationKeyPath   string   `toml:"tallyer_verification_key_path"`
	ArbiterPublicKeyPaths        []string `toml:"arbiter_public_key_paths"`
}

// Voter configures the voter client.
type Voter struct {
	VoterID   string `toml:"voter_id"`
	StatePath string `toml:"state_path"`
}

// Registrar configures the blind-signing authority.
type Registrar struct {
	SigningKeyPath string `toml:"signing_key_path"`
}

// Tallyer configures the ingestion gateway.
type Tallyer struct {
	SigningKeyPath string `toml:"signing_key_path"`
}

// Arbiter configures one trustee.
type Arbiter struct {
	ArbiterID     string `toml:"arbiter_id"`
	SecretKeyPath string `toml:"secret_key_path"`
	PublicKeyPath string `toml:"public_key_path"`
}

// Config is the full configuration file. Each binary reads its own section
// plus [common].
type Config struct {
	Common    Common    `toml:"common"`
	Voter     Voter     `toml:"voter"`
	Registrar Registrar `toml:"registrar"`
	Tallyer   Tallyer   `toml:"tallyer"`
	Arbiter   Arbiter   `toml:"arbiter"`
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to load config %s: %v", models.ErrIO, path, err)
	}
	return &cfg, nil
}
