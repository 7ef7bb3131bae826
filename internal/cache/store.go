package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"foundry/internal/assets"
	"foundry/internal/logging"
	"foundry/internal/services"
)

// Entry is the persisted deployment record for one asset index.
type Entry struct {
	Name           string `json:"name"`
	MediaHash      string `json:"media_hash"`
	ImageLink      string `json:"image_link"`
	MetadataHash   string `json:"metadata_hash"`
	MetadataLink   string `json:"metadata_link"`
	AnimationHash  string `json:"animation_hash,omitempty"`
	AnimationLink  string `json:"animation_link,omitempty"`
	OnChainAddress string `json:"on_chain_address,omitempty"`
	Status         Status `json:"status"`
}

type fileFormat struct {
	ProgramID    string           `json:"program_id"`
	CollectionID string           `json:"collection_id"`
	Items        map[string]Entry `json:"items"`
}

// Patch carries the fields an update merges into an entry. Empty strings
// mean "no change"; locators are never legitimately reset through Update.
type Patch struct {
	ImageLink      string
	MetadataLink   string
	AnimationLink  string
	OnChainAddress string
	Confirmed      bool
}

// Store mediates all access to the durable cache file. It is safe for
// concurrent use; updates are serialized and persisted before returning.
type Store struct {
	path   string
	logger *slog.Logger

	mu           sync.Mutex
	programID    string
	collectionID string
	entries      map[int]Entry
}

// Open loads the cache file at path, or starts an empty cache when none
// exists. A file that cannot be parsed is a fatal validation error: the
// operator must repair or delete it. A file recorded against a different
// program or collection is likewise fatal.
func Open(path, programID, collectionID string, logger *slog.Logger) (*Store, error) {
	store := &Store{
		path:         path,
		logger:       logging.NewComponentLogger(logger, "cache"),
		programID:    programID,
		collectionID: collectionID,
		entries:      make(map[int]Entry),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, services.Wrap(services.ErrValidation, "cache", "open", fmt.Sprintf("read cache file %q", path), err)
	}

	var persisted fileFormat
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return nil, services.Wrap(services.ErrValidation, "cache", "open",
			fmt.Sprintf("cache file %q is corrupt; repair or delete it", path), err)
	}

	if persisted.ProgramID != "" && persisted.ProgramID != programID {
		return nil, services.Wrap(services.ErrValidation, "cache", "open",
			fmt.Sprintf("cache file belongs to program %s, configured program is %s", persisted.ProgramID, programID), nil)
	}
	if persisted.CollectionID != "" && collectionID != "" && persisted.CollectionID != collectionID {
		return nil, services.Wrap(services.ErrValidation, "cache", "open",
			fmt.Sprintf("cache file belongs to collection %s, configured collection is %s", persisted.CollectionID, collectionID), nil)
	}
	if persisted.CollectionID != "" && collectionID == "" {
		store.collectionID = persisted.CollectionID
	}

	for key, entry := range persisted.Items {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return nil, services.Wrap(services.ErrValidation, "cache", "open",
				fmt.Sprintf("cache file has invalid item key %q", key), nil)
		}
		if _, ok := statusRank[entry.Status]; !ok {
			return nil, services.Wrap(services.ErrValidation, "cache", "open",
				fmt.Sprintf("cache item %d has unknown status %q", index, entry.Status), nil)
		}
		store.entries[index] = entry
	}

	store.logger.Debug("loaded cache",
		logging.Int("entry_count", len(store.entries)),
		logging.String("path", path))

	return store, nil
}

// Path returns the cache file location.
func (s *Store) Path() string { return s.path }

// ProgramID returns the program identifier scoping this cache.
func (s *Store) ProgramID() string { return s.programID }

// CollectionID returns the collection identifier scoping this cache.
func (s *Store) CollectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionID
}

// SetCollectionID records the collection account once deploy creates it.
func (s *Store) SetCollectionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionID = id
	return s.saveLocked()
}

// EnsureEntries creates a default pending entry for every asset the cache
// does not know yet and invalidates the uploads and on-chain registration
// of assets whose files were edited since the last run. Entries matching
// the asset files on disk are left untouched so interrupted runs resume
// where they stopped.
func (s *Store) EnsureEntries(set *assets.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	refreshed := 0
	for _, pair := range set.Pairs() {
		entry, ok := s.entries[pair.Index]
		if !ok {
			s.entries[pair.Index] = Entry{
				Name:          pair.Name,
				MediaHash:     pair.MediaHash,
				MetadataHash:  pair.MetadataHash,
				AnimationHash: pair.AnimationHash,
				Status:        StatusPending,
			}
			created++
			continue
		}

		// Assets edited since the last run invalidate their uploads. The
		// metadata locator always follows the media, since the rewritten
		// metadata embeds the media link.
		dirty := false
		if entry.MediaHash != pair.MediaHash {
			entry.MediaHash = pair.MediaHash
			entry.ImageLink = ""
			dirty = true
		}
		if entry.AnimationHash != pair.AnimationHash {
			entry.AnimationHash = pair.AnimationHash
			entry.AnimationLink = ""
			dirty = true
		}
		if dirty || entry.MetadataHash != pair.MetadataHash {
			entry.MetadataHash = pair.MetadataHash
			entry.MetadataLink = ""
			dirty = true
		}
		if dirty {
			entry.Name = pair.Name
			// The registered item embeds the old metadata locator, so a
			// written entry must go back through the writer too. Keeping
			// the address would let Update re-derive written from it and
			// the entry would never be resubmitted.
			entry.OnChainAddress = ""
			if entry.ImageLink == "" {
				entry.Status = StatusPending
			} else {
				entry.Status = StatusImageUploaded
			}
			s.entries[pair.Index] = entry
			refreshed++
		}
	}

	if created == 0 && refreshed == 0 {
		return nil
	}
	s.logger.Debug("synced cache entries",
		logging.Int("created", created),
		logging.Int("refreshed", refreshed))
	return s.saveLocked()
}

// Entry returns a copy of the entry at index.
func (s *Store) Entry(index int) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[index]
	return entry, ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Indices returns all known indices in ascending order.
func (s *Store) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, 0, len(s.entries))
	for index := range s.entries {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// IndicesBelow returns, in ascending order, the indices whose status has not
// reached the given status.
func (s *Store) IndicesBelow(status Status) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, 0, len(s.entries))
	for index, entry := range s.entries {
		if !entry.Status.AtLeast(status) {
			indices = append(indices, index)
		}
	}
	sort.Ints(indices)
	return indices
}

// IndicesWithStatus returns, in ascending order, the indices at exactly the
// given status.
func (s *Store) IndicesWithStatus(status Status) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, 0, len(s.entries))
	for index, entry := range s.entries {
		if entry.Status == status {
			indices = append(indices, index)
		}
	}
	sort.Ints(indices)
	return indices
}

// Counts returns the number of entries per status.
func (s *Store) Counts() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int, len(allStatuses))
	for _, entry := range s.entries {
		counts[entry.Status]++
	}
	return counts
}

// Update merges the patch into the entry at index, advances the status to
// the highest state the now-populated fields imply, and persists the cache.
// The status never regresses through this path.
func (s *Store) Update(index int, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[index]
	if !ok {
		return services.Wrap(services.ErrValidation, "cache", "update", fmt.Sprintf("unknown index %d", index), nil)
	}

	if patch.ImageLink != "" {
		entry.ImageLink = patch.ImageLink
	}
	if patch.AnimationLink != "" {
		entry.AnimationLink = patch.AnimationLink
	}
	if patch.MetadataLink != "" {
		entry.MetadataLink = patch.MetadataLink
	}
	if patch.OnChainAddress != "" {
		entry.OnChainAddress = patch.OnChainAddress
	}

	implied := StatusPending
	if entry.ImageLink != "" {
		implied = StatusImageUploaded
	}
	if entry.MetadataLink != "" {
		implied = StatusMetadataUploaded
	}
	if entry.OnChainAddress != "" {
		implied = StatusWritten
	}
	if patch.Confirmed {
		implied = StatusConfirmed
	}
	if implied.Rank() > entry.Status.Rank() {
		entry.Status = implied
	}

	s.entries[index] = entry
	return s.saveLocked()
}

// Rollback demotes an entry along one of the sanctioned backward
// transitions (a written item whose transaction was lost). Any other
// regression is rejected.
func (s *Store) Rollback(index int, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[index]
	if !ok {
		return services.Wrap(services.ErrValidation, "cache", "rollback", fmt.Sprintf("unknown index %d", index), nil)
	}
	if !rollbackAllowed(entry.Status, to) {
		return services.Wrap(services.ErrValidation, "cache", "rollback",
			fmt.Sprintf("transition %s -> %s is not permitted", entry.Status, to), nil)
	}

	entry.Status = to
	entry.OnChainAddress = ""
	s.entries[index] = entry
	return s.saveLocked()
}

// ForceRetry is the operator-explicit reset of the given indices back to
// Pending, clearing uploaded locators so the items re-run from scratch.
func (s *Store) ForceRetry(indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, index := range indices {
		entry, ok := s.entries[index]
		if !ok {
			return services.Wrap(services.ErrValidation, "cache", "force-retry", fmt.Sprintf("unknown index %d", index), nil)
		}
		entry.ImageLink = ""
		entry.MetadataLink = ""
		entry.AnimationLink = ""
		entry.OnChainAddress = ""
		entry.Status = StatusPending
		s.entries[index] = entry
	}
	return s.saveLocked()
}

// Save persists the current state. Updates already persist themselves; Save
// exists for callers that mutated nothing but want the file materialized.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the cache atomically: marshal, write to a temp file in
// the same directory, then rename over the previous snapshot. A crash mid-
// write leaves the old snapshot intact.
func (s *Store) saveLocked() error {
	persisted := fileFormat{
		ProgramID:    s.programID,
		CollectionID: s.collectionID,
		Items:        make(map[string]Entry, len(s.entries)),
	}
	for index, entry := range s.entries {
		persisted.Items[strconv.Itoa(index)] = entry
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
