package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/nhle/inboxsync/internal/model"
)

// messagesBucket holds one nested bucket per user; keys inside are
// big-endian UIDs and values are JSON-encoded CachedMessage records.
const messagesBucket = "messages"

// BoltStore implements Cache on a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

var _ Cache = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(messagesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func uidKey(uid uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uid)
	return key
}

// userBucket returns the user's bucket, or nil when it does not exist and
// create is false.
func userBucket(tx *bolt.Tx, user string, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(messagesBucket))
	if root == nil {
		return nil, fmt.Errorf("bucket %q missing", messagesBucket)
	}
	if !create {
		return root.Bucket([]byte(user)), nil
	}
	return root.CreateBucketIfNotExists([]byte(user))
}

func getMessage(b *bolt.Bucket, uid uint32) (*model.CachedMessage, error) {
	if b == nil {
		return nil, nil
	}
	v := b.Get(uidKey(uid))
	if v == nil {
		return nil, nil
	}
	var msg model.CachedMessage
	if err := json.Unmarshal(v, &msg); err != nil {
		return nil, fmt.Errorf("decoding message UID %d: %w", uid, err)
	}
	return &msg, nil
}

func putMessage(b *bolt.Bucket, msg model.CachedMessage) error {
	v, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message UID %d: %w", msg.UID, err)
	}
	return b.Put(uidKey(msg.UID), v)
}

// Upsert inserts or overwrites the (user, UID) record.
func (s *BoltStore) Upsert(_ context.Context, msg model.CachedMessage) error {
	if msg.User == "" || msg.UID == 0 {
		return fmt.Errorf("upserting message: user and uid are required: %w", model.ErrInvalidArgument)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := userBucket(tx, msg.User, true)
		if err != nil {
			return fmt.Errorf("opening bucket for %s: %w", msg.User, err)
		}

		existing, err := getMessage(b, msg.UID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		msg.Date = msg.Date.UTC()
		if existing != nil {
			if existing.SameContent(msg) {
				return nil
			}
			msg.ID = existing.ID
			msg.CreatedAt = existing.CreatedAt
		} else {
			if msg.ID == "" {
				msg.ID = uuid.New().String()
			}
			msg.CreatedAt = now
		}
		msg.UpdatedAt = now

		return putMessage(b, msg)
	})
}

// FindByUserAndUID retrieves a single cached message.
func (s *BoltStore) FindByUserAndUID(
	_ context.Context, user string, uid uint32,
) (*model.CachedMessage, error) {
	var found *model.CachedMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := userBucket(tx, user, false)
		if err != nil {
			return err
		}
		found, err = getMessage(b, uid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting message UID %d: %w", uid, err)
	}
	if found == nil {
		return nil, notFound(user, uid)
	}
	return found, nil
}

// SetSeen updates the seen flag of one message and nothing else.
func (s *BoltStore) SetSeen(
	_ context.Context, user string, uid uint32, seen bool,
) (int64, error) {
	var matched int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := userBucket(tx, user, false)
		if err != nil {
			return err
		}
		msg, err := getMessage(b, uid)
		if err != nil || msg == nil {
			return err
		}
		matched = 1
		msg.Seen = seen
		return putMessage(b, *msg)
	})
	if err != nil {
		return 0, fmt.Errorf("setting seen on UID %d: %w", uid, err)
	}
	if matched == 0 {
		return 0, notFound(user, uid)
	}
	return matched, nil
}

// DeleteByUserAndUID removes one cached message if present.
func (s *BoltStore) DeleteByUserAndUID(
	_ context.Context, user string, uid uint32,
) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := userBucket(tx, user, false)
		if err != nil || b == nil {
			return err
		}
		return b.Delete(uidKey(uid))
	})
	if err != nil {
		return fmt.Errorf("deleting message UID %d: %w", uid, err)
	}
	return nil
}

// ListByUser retrieves a user's cached messages, newest first.
func (s *BoltStore) ListByUser(
	_ context.Context, user string, limit int,
) ([]model.CachedMessage, error) {
	messages := []model.CachedMessage{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := userBucket(tx, user, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			var msg model.CachedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("decoding message: %w", err)
			}
			messages = append(messages, msg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", user, err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Date.Equal(messages[j].Date) {
			return messages[i].UID > messages[j].UID
		}
		return messages[i].Date.After(messages[j].Date)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}
