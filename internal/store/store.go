// Package store is the engine's durable store, holding the offline mutation
// queue and per-partition cache metadata in a single bolt database.
package store

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var (
	bucketOperations = []byte("operations")
	bucketOpIndex    = []byte("op_index")
	bucketMetadata   = []byte("cache-metadata")
)

// Store wraps the bolt database shared by the queue and partition metadata
type Store struct {
	db *bolt.DB
}

// Open opens or creates the durable store at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketOperations, bucketOpIndex, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
