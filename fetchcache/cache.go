// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package fetchcache caches fetched blob text keyed by content SHA.
// Git blob SHAs are content-addressed, so a hit is always current and
// re-runs over an unchanged repository skip the network entirely.
package fetchcache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/quarrydocs/quarry/core"
)

// Entry is one cached fetch result.
type Entry struct {
	Text      string
	Kind      core.ContentKind
	FetchedAt time.Time
}

// Cache is a badger-backed blob cache.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (creating if needed) a cache at the given directory.
func Open(dir string) (*Cache, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	opts := badger.DefaultOptions(dir)
	return open(opts)
}

// OpenInMemory opens a throwaway in-memory cache, used in tests.
func OpenInMemory() (*Cache, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Cache, error) {
	logger := slog.Default().With("component", "fetchcache")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open fetch cache: %w", err)
	}

	return &Cache{db: db, logger: logger}, nil
}

// Get looks up a cached entry by blob SHA. A miss is not an error.
func (c *Cache) Get(sha string) (*Entry, bool, error) {
	var entry *Entry
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(sha))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e, err := UnmarshalEntry(val)
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", sha, err)
	}
	return entry, true, nil
}

// Put stores an entry under its blob SHA. Existing entries are
// overwritten, which is harmless since the key is content-addressed.
func (c *Cache) Put(sha string, entry *Entry) error {
	err := c.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(sha), MarshalEntry(entry))
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", sha, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
