// Package labels provides the persistent label/description index used to
// resolve entity ids to human-readable strings during textification. The
// index is built once by a single pass over the dump and is read-only
// afterwards.
package labels

import (
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Key prefixes. Labels and descriptions live in separate keyspaces so each
// lookup reads exactly one value.
var (
	labelPrefix = []byte("l:")
	descPrefix  = []byte("d:")
)

// Options configures the store.
type Options struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string
	// InMemory runs the store without disk persistence, for tests.
	InMemory bool
	Logger   *slog.Logger
}

// Store is a BadgerDB-backed id -> (label, description) index. Safe for
// concurrent readers; Build must not run concurrently with reads.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("labels: Options.Dir is required for on-disk mode")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("labels: open %s: %w", opts.Dir, err)
	}
	return &Store{db: db, logger: opts.Logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Label returns the label for an entity id.
func (s *Store) Label(id string) (string, bool) {
	return s.get(labelPrefix, id)
}

// Description returns the description for an entity id.
func (s *Store) Description(id string) (string, bool) {
	return s.get(descPrefix, id)
}

func (s *Store) get(prefix []byte, id string) (string, bool) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(prefix, id...))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.logger.Warn("labels: lookup failed", "id", id, "error", err)
		}
		return "", false
	}
	return string(val), true
}
