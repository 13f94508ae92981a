package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Operation is a pending non-idempotent request awaiting replay
type Operation struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	Method     string      `json:"method"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	RetryCount int         `json:"retry_count"`
	MaxRetries int         `json:"max_retries"`

	// seq orders operations by enqueue time across restarts
	Seq uint64 `json:"seq"`
}

// ErrDropped is returned by IncrementRetry when an operation has exhausted
// its retry budget and has been permanently removed.
var ErrDropped = fmt.Errorf("operation dropped: retry budget exhausted")

// Queue is the durable FIFO mutation queue. Operations are keyed by id in
// the operations bucket and indexed by a monotonic sequence for ordering.
type Queue struct {
	store *Store
}

// Queue returns the mutation queue backed by this store
func (s *Store) Queue() *Queue {
	return &Queue{store: s}
}

// Enqueue durably stores an operation and returns its assigned id
func (q *Queue) Enqueue(op *Operation) (string, error) {
	op.ID = uuid.NewString()
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}

	err := q.store.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketOpIndex)

		seq, err := index.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		op.Seq = seq

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encoding operation: %w", err)
		}

		if err := tx.Bucket(bucketOperations).Put([]byte(op.ID), data); err != nil {
			return fmt.Errorf("storing operation: %w", err)
		}
		return index.Put(seqKey(seq), []byte(op.ID))
	})
	if err != nil {
		return "", err
	}

	logrus.Infof("Queued offline operation %s: %s %s", op.ID, op.Method, op.URL)
	return op.ID, nil
}

// ListPending returns all queued operations, oldest first
func (q *Queue) ListPending() ([]*Operation, error) {
	var ops []*Operation

	err := q.store.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketOpIndex)
		operations := tx.Bucket(bucketOperations)

		return index.ForEach(func(_, id []byte) error {
			data := operations.Get(id)
			if data == nil {
				return nil
			}
			var op Operation
			if err := json.Unmarshal(data, &op); err != nil {
				return fmt.Errorf("decoding operation %s: %w", id, err)
			}
			ops = append(ops, &op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ops, nil
}

// Remove deletes an operation after a successful replay
func (q *Queue) Remove(id string) error {
	return q.store.db.Update(func(tx *bolt.Tx) error {
		return removeOp(tx, id)
	})
}

// IncrementRetry bumps an operation's retry count after a failed replay.
// Once the count would exceed the operation's retry budget, the operation
// is removed and ErrDropped is returned: the data loss is explicit.
func (q *Queue) IncrementRetry(id string) (*Operation, error) {
	var updated *Operation
	var dropped bool

	err := q.store.db.Update(func(tx *bolt.Tx) error {
		operations := tx.Bucket(bucketOperations)

		data := operations.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("operation not found: %s", id)
		}

		var op Operation
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("decoding operation %s: %w", id, err)
		}

		op.RetryCount++
		if op.RetryCount > op.MaxRetries {
			dropped = true
			return removeOp(tx, id)
		}

		out, err := json.Marshal(&op)
		if err != nil {
			return fmt.Errorf("encoding operation: %w", err)
		}
		updated = &op
		return operations.Put([]byte(id), out)
	})
	if err != nil {
		return nil, err
	}

	if dropped {
		logrus.Warnf("Dropping offline operation %s after exhausting retries", id)
		return nil, ErrDropped
	}
	return updated, nil
}

// Len returns the number of queued operations
func (q *Queue) Len() (int, error) {
	count := 0
	err := q.store.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketOperations).Stats().KeyN
		return nil
	})
	return count, err
}

func removeOp(tx *bolt.Tx, id string) error {
	operations := tx.Bucket(bucketOperations)

	data := operations.Get([]byte(id))
	if data == nil {
		return nil
	}

	var op Operation
	if err := json.Unmarshal(data, &op); err == nil {
		if err := tx.Bucket(bucketOpIndex).Delete(seqKey(op.Seq)); err != nil {
			return err
		}
	}
	return operations.Delete([]byte(id))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
