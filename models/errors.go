package models

import "errors"

// Error classes shared by every principal. Handlers wrap the concrete cause
// with %w so callers can classify failures with errors.Is.
var (
	// ErrProtocol covers malformed messages, wrong type tags, and
	// truncated buffers.
	ErrProtocol = errors.New("protocol error")

	// ErrCrypto covers signature or MAC mismatches and failed ZKP checks.
	ErrCrypto = errors.New("crypto error")

	// ErrPolicy covers duplicate voters and ballot resubmission.
	ErrPolicy = errors.New("policy error")

	// ErrIntegrity signals that tally recovery found no discrete-log
	// match in the search range.
	ErrIntegrity = errors.New("integrity error")

	// ErrIO covers socket, file, and store failures.
	ErrIO = errors.New("io error")
)
