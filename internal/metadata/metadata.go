// Package metadata maintains the knowledge-base catalog: one JSON entry
// per ingested source, stored in the object store alongside the raw files.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/objectstore"
)

// ErrNotFound indicates no catalog entry exists for the requested source.
var ErrNotFound = errors.New("metadata: entry not found")

// Entry describes one ingested source document.
type Entry struct {
	SourceID    string    `json:"sourceId"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	MediaType   string    `json:"mediaType"`
	Scope       string    `json:"scope"`
	ChunkCount  int       `json:"chunkCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Catalog persists entries as JSON objects keyed by scope and source ID.
type Catalog struct {
	store  objectstore.Store
	logger log.Logger
}

// NewCatalog creates a catalog backed by the given object store.
func NewCatalog(store objectstore.Store, logger log.Logger) *Catalog {
	return &Catalog{store: store, logger: logger}
}

func entryKey(scope, sourceID string) string {
	return fmt.Sprintf("knowledge/%s/%s.json", scope, sourceID)
}

func scopePrefix(scope string) string {
	return fmt.Sprintf("knowledge/%s/", scope)
}

// Save writes or replaces the entry for its source.
func (c *Catalog) Save(ctx context.Context, entry Entry) error {
	if entry.SourceID == "" {
		return errors.New("metadata: entry sourceId is empty")
	}
	if entry.Scope == "" {
		return errors.New("metadata: entry scope is empty")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry %s: %w", entry.SourceID, err)
	}

	key := entryKey(entry.Scope, entry.SourceID)
	if err := c.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("storing entry %s: %w", key, err)
	}

	c.logger.Debug("catalog entry saved",
		"source_id", entry.SourceID,
		"scope", entry.Scope,
		"chunks", entry.ChunkCount)

	return nil
}

// Get loads the entry for a source within a scope.
func (c *Catalog) Get(ctx context.Context, scope, sourceID string) (Entry, error) {
	data, err := c.store.Get(ctx, entryKey(scope, sourceID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return Entry{}, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, sourceID)
		}
		return Entry{}, fmt.Errorf("loading entry %s/%s: %w", scope, sourceID, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding entry %s/%s: %w", scope, sourceID, err)
	}
	return entry, nil
}

// List returns all entries in a scope, newest upload first. Entries that
// fail to decode are skipped with a warning rather than failing the whole
// listing.
func (c *Catalog) List(ctx context.Context, scope string) ([]Entry, error) {
	keys, err := c.store.List(ctx, scopePrefix(scope))
	if err != nil {
		return nil, fmt.Errorf("listing scope %s: %w", scope, err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := c.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("loading entry %s: %w", key, err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			c.logger.Warn("skipping undecodable catalog entry", "key", key, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})
	return entries, nil
}

// Delete removes the entry for a source. Deleting a missing entry is not
// an error.
func (c *Catalog) Delete(ctx context.Context, scope, sourceID string) error {
	if err := c.store.Delete(ctx, entryKey(scope, sourceID)); err != nil {
		return fmt.Errorf("deleting entry %s/%s: %w", scope, sourceID, err)
	}
	return nil
}
