package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// versionKeyPrefix prefixes per-version cache entry keys ("v_{versionId}").
const versionKeyPrefix = "v_"

// pageKeyPrefix prefixes saved pagination cursors per query hash.
const pageKeyPrefix = "cursor_"

// DB wraps the bitcask store holding cache entries and pagination state.
type DB struct {
	store *bitcask.Bitcask
	sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// Open initializes and returns a DB instance. The parent directory is created
// if needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Cache entries carry full file and media lists; lift the default value
	// size cap well above what a large version serializes to.
	store, err := bitcask.Open(path, bitcask.WithMaxValueSize(1<<22))
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	log.Infof("Database opened successfully at %s", path)
	return &DB{store: store}, nil
}

// Close safely closes the database.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		log.Info("Closing database...")
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.store.Close()
		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Info("Database closed successfully.")
		}
	})
	return d.closeErr
}

// VersionKey builds the storage key for a version's cache entry.
func VersionKey(versionID int) []byte {
	return []byte(versionKeyPrefix + strconv.Itoa(versionID))
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.store.Has(key)
}

// Get retrieves the value associated with a key.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()

	value, err := d.store.Get(key)
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading key %s: %w", string(key), err)
	}
	return value, nil
}

// Put stores a key-value pair in the database.
func (d *DB) Put(key []byte, value []byte) error {
	d.Lock()
	defer d.Unlock()

	if err := d.store.Put(key, value); err != nil {
		return fmt.Errorf("error storing key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	defer d.Unlock()

	if !d.store.Has(key) {
		return ErrNotFound
	}
	if err := d.store.Delete(key); err != nil {
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs and calls the provided function.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.store.Fold(func(key []byte) error {
		value, err := d.store.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

// Keys returns a channel of all keys in the database.
func (d *DB) Keys() <-chan []byte {
	return d.store.Keys()
}

// PutEntry stores a cache entry under its version key.
func (d *DB) PutEntry(entry models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshaling cache entry for version %d: %w", entry.Version.ID, err)
	}
	return d.Put(VersionKey(entry.Version.ID), data)
}

// GetEntry retrieves the cache entry for a version id.
func (d *DB) GetEntry(versionID int) (models.CacheEntry, error) {
	var entry models.CacheEntry

	data, err := d.Get(VersionKey(versionID))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("error unmarshaling cache entry for version %d: %w", versionID, err)
	}
	return entry, nil
}

// DeleteEntry removes the cache entry for a version id.
func (d *DB) DeleteEntry(versionID int) error {
	return d.Delete(VersionKey(versionID))
}

// FoldEntries iterates over every cache entry, skipping non-entry keys and
// entries that fail to decode.
func (d *DB) FoldEntries(fn func(entry models.CacheEntry) error) error {
	return d.Fold(func(key []byte, value []byte) error {
		if len(key) < len(versionKeyPrefix) || string(key[:len(versionKeyPrefix)]) != versionKeyPrefix {
			return nil
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping undecodable cache entry at key %s", string(key))
			return nil
		}
		return fn(entry)
	})
}

// GetPageState retrieves the saved pagination cursor for a query hash.
// Returns an empty cursor when none is saved.
func (d *DB) GetPageState(queryHash string) (string, error) {
	value, err := d.Get([]byte(pageKeyPrefix + queryHash))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error reading page state for %s: %w", queryHash, err)
	}
	return string(value), nil
}

// SetPageState saves the pagination cursor for a query hash.
func (d *DB) SetPageState(queryHash string, cursor string) error {
	if err := d.Put([]byte(pageKeyPrefix+queryHash), []byte(cursor)); err != nil {
		return fmt.Errorf("error setting page state for %s: %w", queryHash, err)
	}
	log.WithField("queryHash", queryHash).Debugf("Set page state to: %s", cursor)
	return nil
}

// DeletePageState removes the saved cursor for a query hash.
func (d *DB) DeletePageState(queryHash string) error {
	err := d.Delete([]byte(pageKeyPrefix + queryHash))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error deleting page state for %s: %w", queryHash, err)
	}
	return nil
}
