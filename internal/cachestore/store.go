package cachestore

// Store is the partitioned response cache consumed by the engine
type Store interface {
	// Lookup retrieves an entry if it exists and is not expired.
	// Returns nil on a miss; an expired entry is removed as a side effect.
	Lookup(partition, key string) (*Entry, error)
	// LookupStale retrieves an entry regardless of its TTL. Used by
	// degraded fallbacks where staleness is acceptable.
	LookupStale(partition, key string) (*Entry, error)
	// Write stores an entry. Responses outside the 2xx range are never
	// cached.
	Write(entry *Entry) error
	// EvictPartition removes every entry under the partition
	EvictPartition(partition string) error
	// Close releases store resources
	Close() error
}
