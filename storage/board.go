// Package storage implements the bulletin board: three append-style
// relations backed by JSON files, serialized behind one mutex. Every
// operation reads the relation from disk and mutations write it back with
// an atomic rename, so separate principals sharing the directory always
// observe each other's appends.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evoting/models"
)

const (
	votersFile   = "voter_authorizations.json"
	votesFile    = "tallied_ballots.json"
	partialsFile = "partial_decryptions.json"
)

// Board is the shared bulletin board. Voter authorizations are unique per
// voter id, tallied ballots are unique per multi-ballot digest, and partial
// decryptions are keyed (arbiter id, slot) with reinsert-overwrites.
type Board struct {
	basePath string
	mu       sync.Mutex
}

// Open prepares the board directory.
func Open(basePath string) (*Board, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create board directory: %v", models.ErrIO, err)
	}
	return &Board{basePath: basePath}, nil
}

func partialKey(arbiterID string, slot int) string {
	return fmt.Sprintf("%s/%d", arbiterID, slot)
}

func loadRelation[T any](path string, rows *[]T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			*rows = nil
			return nil
		}
		return fmt.Errorf("%w: failed to read %s: %v", models.ErrIO, path, err)
	}
	if err := json.Unmarshal(data, rows); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %v", models.ErrIO, path, err)
	}
	return nil
}

func saveRelation[T any](path string, rows []T) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s: %v", models.ErrIO, path, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", models.ErrIO, path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: failed to save %s: %v", models.ErrIO, path, err)
	}
	return nil
}

func (b *Board) votersPath() string   { return filepath.Join(b.basePath, votersFile) }
func (b *Board) votesPath() string    { return filepath.Join(b.basePath, votesFile) }
func (b *Board) partialsPath() string { return filepath.Join(b.basePath, partialsFile) }

// FindVoter returns the stored authorization for id, or nil.
func (b *Board) FindVoter(id string) (*models.VoterRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.VoterRow
	if err := loadRelation(b.votersPath(), &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.VoterID == id {
			return row, nil
		}
	}
	return nil, nil
}

// InsertVoter records a new authorization. A second insert for the same
// voter id is a policy error.
func (b *Board) InsertVoter(row *models.VoterRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.VoterRow
	if err := loadRelation(b.votersPath(), &rows); err != nil {
		return err
	}
	for _, existing := range rows {
		if existing.VoterID == row.VoterID {
			return fmt.Errorf("%w: voter %q already authorized", models.ErrPolicy, row.VoterID)
		}
	}
	return saveRelation(b.votersPath(), append(rows, row))
}

// HasBallot reports whether an identical multi-ballot is already tallied.
func (b *Board) HasBallot(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.VoteRow
	if err := loadRelation(b.votesPath(), &rows); err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

// InsertVote appends a tallyer-signed ballot row. Exact resubmission of the
// same multi-ballot is a policy error.
func (b *Board) InsertVote(row *models.VoteRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.VoteRow
	if err := loadRelation(b.votesPath(), &rows); err != nil {
		return err
	}
	key := row.Key()
	for _, existing := range rows {
		if existing.Key() == key {
			return fmt.Errorf("%w: ballot already tallied", models.ErrPolicy)
		}
	}
	return saveRelation(b.votesPath(), append(rows, row))
}

// AllVotes returns the tallied ballots in insertion order.
func (b *Board) AllVotes() ([]*models.VoteRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.VoteRow
	if err := loadRelation(b.votesPath(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertPartialDecryption stores one arbiter's share for one slot. The same
// arbiter may reissue (overwrite); other arbiters never collide on the key.
func (b *Board) UpsertPartialDecryption(row *models.PartialDecryptionRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.PartialDecryptionRow
	if err := loadRelation(b.partialsPath(), &rows); err != nil {
		return err
	}
	key := partialKey(row.ArbiterID, row.Slot)
	replaced := false
	for i, existing := range rows {
		if partialKey(existing.ArbiterID, existing.Slot) == key {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	return saveRelation(b.partialsPath(), rows)
}

// AllPartialDecryptions returns the published shares.
func (b *Board) AllPartialDecryptions() ([]*models.PartialDecryptionRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []*models.PartialDecryptionRow
	if err := loadRelation(b.partialsPath(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// PartialDecryptionsBySlot groups the published shares per candidate slot.
func (b *Board) PartialDecryptionsBySlot() (map[int][]*models.PartialDecryptionRow, error) {
	rows, err := b.AllPartialDecryptions()
	if err != nil {
		return nil, err
	}
	grouped := make(map[int][]*models.PartialDecryptionRow)
	for _, row := range rows {
		grouped[row.Slot] = append(grouped[row.Slot], row)
	}
	return grouped, nil
}
