package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMessages   = []byte("messages")
	bucketPending    = []byte("pending")
	bucketDeferred   = []byte("deferred")
	bucketDeadLetter = []byte("dead_letter")
)

// BoltStorage persists spooled messages in a BoltDB file
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens the spool database, creating it if needed
func NewBoltStorage(path string) (*BoltStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMessages, bucketPending, bucketDeferred, bucketDeadLetter} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// Enqueue adds a message to the spool in pending status
func (s *BoltStorage) Enqueue(ctx context.Context, msg *Message) error {
	now := time.Now()
	msg.Status = StatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := msgBucket.Put([]byte(msg.ID), data); err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}

		pendingBucket := tx.Bucket(bucketPending)
		indexKey := makeIndexKey(msg.CreatedAt, msg.ID)
		if err := pendingBucket.Put(indexKey, []byte(msg.ID)); err != nil {
			return fmt.Errorf("failed to add to pending index: %w", err)
		}

		return nil
	})
}

// Dequeue returns the next deliverable message, oldest first. Deferred
// messages whose retry time has arrived take priority over fresh pending
// ones. Returns nil when nothing is ready.
func (s *BoltStorage) Dequeue(ctx context.Context) (*Message, error) {
	var msg *Message

	err := s.db.Update(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		now := time.Now()

		deferredBucket := tx.Bucket(bucketDeferred)
		c := deferredBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				break // all remaining retries are in the future
			}

			msgData := msgBucket.Get(v)
			if msgData == nil {
				c.Delete()
				continue
			}

			var m Message
			if err := json.Unmarshal(msgData, &m); err != nil {
				continue
			}

			m.Status = StatusSending
			m.UpdatedAt = now

			data, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			if err := msgBucket.Put([]byte(m.ID), data); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			msg = &m
			return nil
		}

		pendingBucket := tx.Bucket(bucketPending)
		c = pendingBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			msgData := msgBucket.Get(v)
			if msgData == nil {
				c.Delete()
				continue
			}

			var m Message
			if err := json.Unmarshal(msgData, &m); err != nil {
				continue
			}

			m.Status = StatusSending
			m.UpdatedAt = now

			data, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			if err := msgBucket.Put([]byte(m.ID), data); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			msg = &m
			return nil
		}

		return nil
	})

	return msg, err
}

// Update rewrites the message record and re-indexes it if deferred
func (s *BoltStorage) Update(ctx context.Context, msg *Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)

		msg.UpdatedAt = time.Now()

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := msgBucket.Put([]byte(msg.ID), data); err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}

		if msg.Status == StatusDeferred {
			deferredBucket := tx.Bucket(bucketDeferred)
			indexKey := makeIndexKey(msg.NextRetryAt, msg.ID)
			if err := deferredBucket.Put(indexKey, []byte(msg.ID)); err != nil {
				return fmt.Errorf("failed to add to deferred index: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves a message by ID, nil if absent
func (s *BoltStorage) Get(ctx context.Context, id string) (*Message, error) {
	var msg *Message

	err := s.db.View(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		data := msgBucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		msg = &Message{}
		return json.Unmarshal(data, msg)
	})

	return msg, err
}

// Delete removes a message and its index entries
func (s *BoltStorage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)

		data := msgBucket.Get([]byte(id))
		if data != nil {
			var msg Message
			if err := json.Unmarshal(data, &msg); err == nil {
				pendingBucket := tx.Bucket(bucketPending)
				pendingBucket.Delete(makeIndexKey(msg.CreatedAt, msg.ID))

				deferredBucket := tx.Bucket(bucketDeferred)
				deferredBucket.Delete(makeIndexKey(msg.NextRetryAt, msg.ID))
			}
		}

		return msgBucket.Delete([]byte(id))
	})
}

// MoveToDeadLetter parks a message that exhausted its retries
func (s *BoltStorage) MoveToDeadLetter(ctx context.Context, msg *Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		dlqBucket := tx.Bucket(bucketDeadLetter)
		msgBucket := tx.Bucket(bucketMessages)

		msg.Status = StatusFailed
		msg.UpdatedAt = time.Now()

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		indexKey := makeIndexKey(msg.UpdatedAt, msg.ID)
		if err := dlqBucket.Put(indexKey, []byte(msg.ID)); err != nil {
			return fmt.Errorf("failed to add to dead letter index: %w", err)
		}

		if err := msgBucket.Put([]byte(msg.ID), data); err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}

		return nil
	})
}

// UndeliveredForCampaign counts messages for a campaign that are still in
// flight. Zero means the campaign is fully dispatched.
func (s *BoltStorage) UndeliveredForCampaign(ctx context.Context, campaignID string) (int64, error) {
	var count int64

	err := s.db.View(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		c := msgBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if msg.CampaignID != campaignID {
				continue
			}
			switch msg.Status {
			case StatusPending, StatusSending, StatusDeferred:
				count++
			}
		}

		return nil
	})

	return count, err
}

// Stats returns spool statistics
func (s *BoltStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		c := msgBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}

			stats.Total++
			switch msg.Status {
			case StatusPending:
				stats.Pending++
			case StatusSending:
				stats.Sending++
			case StatusSent:
				stats.Sent++
			case StatusFailed:
				stats.Failed++
			case StatusDeferred:
				stats.Deferred++
			}
		}

		return nil
	})

	return stats, err
}

// Close closes the database connection
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.Format(time.RFC3339Nano) + ":" + id)
}

// parseTimestampFromKey extracts timestamp from index key
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse(time.RFC3339Nano, s[:i])
			return ts
		}
	}
	return time.Time{}
}
