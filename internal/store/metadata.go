package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

// PartitionMeta records which engine version a cache partition was written
// under, and when it was last activated
type PartitionMeta struct {
	Version         string    `json:"version"`
	LastActivatedAt time.Time `json:"last_activated_at"`
}

// GetPartitionMeta returns the recorded metadata for a partition, or nil if
// the partition has never been activated
func (s *Store) GetPartitionMeta(partition string) (*PartitionMeta, error) {
	var meta *PartitionMeta

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(partition))
		if data == nil {
			return nil
		}
		meta = &PartitionMeta{}
		if err := json.Unmarshal(data, meta); err != nil {
			return fmt.Errorf("decoding metadata for %s: %w", partition, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

// PutPartitionMeta records metadata for a partition
func (s *Store) PutPartitionMeta(partition string, meta *PartitionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(partition), data)
	})
}

// Partitions lists every partition with recorded metadata
func (s *Store) Partitions() ([]string, error) {
	var names []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}
