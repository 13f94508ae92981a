package cachestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

// DiskStore implements Store on the filesystem, with an in-memory hot layer
// in front of it. Disk is the durable source of truth; the memory layer is
// invalidated on write and eviction.
type DiskStore struct {
	dir string
	hot *ttlcache.Cache[string, *Entry]

	// locks serializes writes per (partition, key) so concurrent writes to
	// the same key are last-write-wins with no torn entries
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDisk creates a disk store rooted at dir
func NewDisk(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &DiskStore{
		dir:   dir,
		hot:   ttlcache.New[string, *Entry](),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (d *DiskStore) path(partition, key string) string {
	return filepath.Join(d.dir, partition, key)
}

func (d *DiskStore) keyLock(partition, key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := partition + "\x00" + key
	lock, ok := d.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}

// Lookup retrieves an entry if present and unexpired. Expired and corrupt
// entries are removed and reported as a miss.
func (d *DiskStore) Lookup(partition, key string) (*Entry, error) {
	entry, err := d.read(partition, key)
	if err != nil || entry == nil {
		return nil, err
	}

	if entry.Expired(time.Now()) {
		logrus.Debugf("Cache entry expired: %s/%s", partition, key)
		d.remove(partition, key)
		return nil, nil
	}

	return entry, nil
}

// LookupStale retrieves an entry regardless of TTL
func (d *DiskStore) LookupStale(partition, key string) (*Entry, error) {
	return d.read(partition, key)
}

func (d *DiskStore) read(partition, key string) (*Entry, error) {
	if key == "" {
		return nil, nil
	}

	id := partition + "\x00" + key
	if item := d.hot.Get(id, ttlcache.WithDisableTouchOnHit[string, *Entry]()); item != nil {
		return item.Value(), nil
	}

	// The disk read and hot fill happen under the key lock so a concurrent
	// Write cannot land between them and be shadowed by the older entry
	lock := d.keyLock(partition, key)
	lock.Lock()
	defer lock.Unlock()

	if item := d.hot.Get(id, ttlcache.WithDisableTouchOnHit[string, *Entry]()); item != nil {
		return item.Value(), nil
	}

	data, err := os.ReadFile(d.path(partition, key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry: discard and treat as a miss
		logrus.Errorf("Discarding corrupt cache entry %s/%s: %v", partition, key, err)
		d.removeLocked(partition, key)
		return nil, nil
	}

	d.hot.Set(id, &entry, ttlcache.NoTTL)
	return &entry, nil
}

// Write persists an entry. Non-2xx responses are never cached.
func (d *DiskStore) Write(entry *Entry) error {
	if entry.Key == "" {
		// An empty key would land a file on the partition directory itself
		return fmt.Errorf("cache entry key is empty")
	}

	if entry.StatusCode < 200 || entry.StatusCode >= 300 {
		logrus.Debugf("Not caching non-success response %d for %s", entry.StatusCode, entry.Key)
		return nil
	}

	lock := d.keyLock(entry.Partition, entry.Key)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	path := d.path(entry.Partition, entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Atomic replace so a reader never observes a partial entry
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	d.hot.Set(entry.Partition+"\x00"+entry.Key, entry, ttlcache.NoTTL)

	logrus.Debugf("Cached response: %s/%s", entry.Partition, entry.Key)
	return nil
}

// EvictPartition removes every entry under the partition. Other partitions
// are untouched.
func (d *DiskStore) EvictPartition(partition string) error {
	if err := os.RemoveAll(filepath.Join(d.dir, partition)); err != nil {
		return fmt.Errorf("evicting partition %s: %w", partition, err)
	}

	prefix := partition + "\x00"
	var stale []string
	d.hot.Range(func(item *ttlcache.Item[string, *Entry]) bool {
		if strings.HasPrefix(item.Key(), prefix) {
			stale = append(stale, item.Key())
		}
		return true
	})
	for _, id := range stale {
		d.hot.Delete(id)
	}

	logrus.Infof("Evicted cache partition: %s", partition)
	return nil
}

func (d *DiskStore) remove(partition, key string) {
	lock := d.keyLock(partition, key)
	lock.Lock()
	defer lock.Unlock()

	d.removeLocked(partition, key)
}

// removeLocked requires the caller to hold the key lock
func (d *DiskStore) removeLocked(partition, key string) {
	if err := os.Remove(d.path(partition, key)); err != nil && !os.IsNotExist(err) {
		logrus.Errorf("Failed to remove cache entry %s/%s: %v", partition, key, err)
	}
	d.hot.Delete(partition + "\x00" + key)
}

// Close releases the memory layer
func (d *DiskStore) Close() error {
	d.hot.DeleteAll()
	return nil
}
