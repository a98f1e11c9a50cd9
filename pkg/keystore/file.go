// Package keystore persists resolved signing keys to a JSON file so that they
// survive process restarts.
//
// The file holds a JSON object mapping each kid to its key record. A missing
// or unreadable file is treated as an empty store. Entries that are not key
// records are ignored by lookups but kept when the file is updated. Saves are atomic: the
// file is either fully replaced or left untouched. There is no locking, so
// concurrent writers race and the last one to save wins.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"k8s.io/klog/v2"

	"github.com/jetstack/jwks-resolver/api"
	"github.com/jetstack/jwks-resolver/pkg/logs"
)

// DefaultFileName is the name of the cache file created in os.TempDir() when
// no path is configured.
const DefaultFileName = "jwks-cache"

// DefaultPath returns the path used by the file cache when none is set.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFileName)
}

// File is a key store backed by a single JSON file.
type File struct {
	path string
}

// NewFile returns a store writing to path, or to DefaultPath() if path is
// empty.
func NewFile(path string) *File {
	if path == "" {
		path = DefaultPath()
	}
	return &File{path: path}
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads every key record from the file. It never fails: a missing or
// corrupt file gives an empty map, and entries that do not decode as key
// records are skipped. The kid a record is stored under is authoritative: a
// record whose own kid is missing or different takes the map key.
func (f *File) Load(ctx context.Context) map[string]api.KeyRecord {
	log := klog.FromContext(ctx).WithName("keystore")
	records := map[string]api.KeyRecord{}

	for kid, entry := range f.loadRaw(ctx) {
		var record api.KeyRecord
		if err := json.Unmarshal(entry, &record); err != nil {
			log.V(logs.Debug).Info("Skipping malformed entry in key cache file", "path", f.path, "kid", kid, "err", err)
			continue
		}
		if record.KID != kid {
			if record.KID != "" {
				log.V(logs.Debug).Info("Key cache entry holds another kid, using the kid it is stored under", "path", f.path, "kid", kid, "recordKid", record.KID)
			}
			record.KID = kid
		}
		records[kid] = record
	}

	return records
}

// loadRaw reads the entries of the file without decoding them. A missing or
// corrupt file gives an empty map.
func (f *File) loadRaw(ctx context.Context) map[string]json.RawMessage {
	log := klog.FromContext(ctx).WithName("keystore")
	raw := map[string]json.RawMessage{}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.V(logs.Debug).Info("Key cache file does not exist yet", "path", f.path)
		return raw
	}
	if err != nil {
		log.Error(err, "Failed to read key cache file, ignoring it", "path", f.path)
		return raw
	}

	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		log.Error(err, "Key cache file is not a JSON object, ignoring it", "path", f.path)
		return map[string]json.RawMessage{}
	}
	return raw
}

// Merge returns the records of existing overlaid with updates. Records in
// updates replace records with the same kid; all others are kept. Neither
// input is modified.
func Merge(existing map[string]api.KeyRecord, updates []api.KeyRecord) map[string]api.KeyRecord {
	merged := make(map[string]api.KeyRecord, len(existing)+len(updates))
	for kid, record := range existing {
		merged[kid] = record
	}
	for _, record := range updates {
		merged[record.KID] = record
	}
	return merged
}

// Save atomically replaces the file with records.
func (f *File) Save(ctx context.Context, records map[string]api.KeyRecord) error {
	raw := make(map[string]json.RawMessage, len(records))
	for kid, record := range records {
		entry, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		raw[kid] = entry
	}
	return f.saveRaw(ctx, raw)
}

// MergeAndSave loads the current file, merges updates into it and saves the
// result. Entries of the file that are not key records are written back
// untouched.
func (f *File) MergeAndSave(ctx context.Context, updates []api.KeyRecord) error {
	raw := f.loadRaw(ctx)
	for _, record := range updates {
		entry, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		raw[record.KID] = entry
	}
	return f.saveRaw(ctx, raw)
}

func (f *File) saveRaw(ctx context.Context, entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := renameio.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	klog.FromContext(ctx).WithName("keystore").V(logs.Debug).Info("Saved keys to cache file", "path", f.path, "count", len(entries))
	return nil
}
