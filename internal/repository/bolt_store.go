package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"duochat/internal/domain/conversation"
	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketEmails   = []byte("user_emails")
	bucketMessages = []byte("messages")
	bucketThreads  = []byte("threads")
)

// BoltDB is the embedded single-file store used when no PostgreSQL is
// configured. Users and messages are msgpack records; every conversation has
// a nested bucket in threads keyed by creation time.
type BoltDB struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketEmails, bucketMessages, bucketThreads} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (s *BoltDB) Close() error {
	return s.db.Close()
}

// HealthCheck opens a read transaction, which fails once the file is closed.
func (s *BoltDB) HealthCheck(context.Context) error {
	return s.db.View(func(*bbolt.Tx) error { return nil })
}

// Counts returns the number of stored users and messages.
func (s *BoltDB) Counts() (users, messages int, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		users = tx.Bucket(bucketUsers).Stats().KeyN
		messages = tx.Bucket(bucketMessages).Stats().KeyN
		return nil
	})
	return users, messages, err
}

type BoltUserRepository struct {
	store *BoltDB
}

func NewBoltUserRepository(store *BoltDB) UserRepository {
	return &BoltUserRepository{store: store}
}

func getBoltUser(tx *bbolt.Tx, id uuid.UUID) (*boltUser, error) {
	data := tx.Bucket(bucketUsers).Get(id[:])
	if data == nil {
		return nil, duochat_errors.ErrNotFound
	}
	var rec boltUser
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putBoltUser(tx *bbolt.Tx, id uuid.UUID, rec *boltUser) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketUsers).Put(id[:], data)
}

func (r *BoltUserRepository) Create(_ context.Context, u *user.User) error {
	u.Email = strings.ToLower(u.Email)
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		if emails.Get([]byte(u.Email)) != nil {
			return duochat_errors.ErrAlreadyExists
		}
		if tx.Bucket(bucketUsers).Get(u.ID[:]) != nil {
			return duochat_errors.ErrAlreadyExists
		}
		if err := emails.Put([]byte(u.Email), u.ID[:]); err != nil {
			return err
		}
		return putBoltUser(tx, u.ID, newBoltUser(*u))
	})
}

func (r *BoltUserRepository) GetUserByID(_ context.Context, id uuid.UUID) (user.User, error) {
	var out user.User
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		rec, err := getBoltUser(tx, id)
		if err != nil {
			return err
		}
		out, err = rec.toDomain()
		return err
	})
	return out, err
}

func (r *BoltUserRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	var out user.User
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketEmails).Get([]byte(strings.ToLower(email)))
		if raw == nil {
			return duochat_errors.ErrNotFound
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return err
		}
		rec, err := getBoltUser(tx, id)
		if err != nil {
			return err
		}
		out, err = rec.toDomain()
		return err
	})
	return out, err
}

func (r *BoltUserRepository) ListOthers(_ context.Context, id uuid.UUID) ([]user.User, error) {
	var users []user.User
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			if bytes.Equal(k, id[:]) {
				return nil
			}
			var rec boltUser
			if err := rec.UnmarshalBinary(v); err != nil {
				return err
			}
			u, err := rec.toDomain()
			if err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *BoltUserRepository) UpdateUser(_ context.Context, u user.User) error {
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getBoltUser(tx, u.ID)
		if err != nil {
			return err
		}
		rec.FullName = u.FullName
		rec.Bio = u.Bio
		rec.ProfilePic = u.ProfilePic
		rec.UpdatedAt = time.Now().UnixNano()
		return putBoltUser(tx, u.ID, rec)
	})
}

func (r *BoltUserRepository) UpdateLastSeen(_ context.Context, userID uuid.UUID, lastSeen time.Time) error {
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getBoltUser(tx, userID)
		if err != nil {
			return err
		}
		rec.LastSeen = lastSeen.UnixNano()
		return putBoltUser(tx, userID, rec)
	})
}

type BoltMessageRepository struct {
	store *BoltDB
}

func NewBoltMessageRepository(store *BoltDB) MessageRepository {
	return &BoltMessageRepository{store: store}
}

func getBoltMessage(tx *bbolt.Tx, id uuid.UUID) (*boltMessage, error) {
	data := tx.Bucket(bucketMessages).Get(id[:])
	if data == nil {
		return nil, duochat_errors.ErrNotFound
	}
	var rec boltMessage
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putBoltMessage(tx *bbolt.Tx, id uuid.UUID, rec *boltMessage) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMessages).Put(id[:], data)
}

// forEachInThread walks the conversation of a and b in chronological order.
func forEachInThread(tx *bbolt.Tx, a, b uuid.UUID, fn func(id uuid.UUID, rec *boltMessage) error) error {
	thread := tx.Bucket(bucketThreads).Bucket([]byte(conversation.Key(a, b)))
	if thread == nil {
		return nil
	}
	return thread.ForEach(func(_, v []byte) error {
		id, err := uuid.FromBytes(v)
		if err != nil {
			return err
		}
		rec, err := getBoltMessage(tx, id)
		if err != nil {
			return err
		}
		return fn(id, rec)
	})
}

func (r *BoltMessageRepository) Create(_ context.Context, m *message.Message) error {
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketMessages).Get(m.ID[:]) != nil {
			return duochat_errors.ErrAlreadyExists
		}
		rec := newBoltMessage(*m)
		if err := putBoltMessage(tx, m.ID, rec); err != nil {
			return err
		}
		thread, err := tx.Bucket(bucketThreads).CreateBucketIfNotExists([]byte(conversation.Key(m.SenderID, m.ReceiverID)))
		if err != nil {
			return err
		}
		return thread.Put(rec.threadKey(m.ID), m.ID[:])
	})
}

func (r *BoltMessageRepository) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	var out message.Message
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		rec, err := getBoltMessage(tx, id)
		if err != nil {
			return err
		}
		out, err = rec.toDomain()
		return err
	})
	return out, err
}

func (r *BoltMessageRepository) ListThread(_ context.Context, a, b uuid.UUID) ([]message.Message, error) {
	messages := []message.Message{}
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		return forEachInThread(tx, a, b, func(_ uuid.UUID, rec *boltMessage) error {
			m, err := rec.toDomain()
			if err != nil {
				return err
			}
			messages = append(messages, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *BoltMessageRepository) MarkThreadSeen(_ context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	var changed int64
	sender := senderID.String()
	err := r.store.db.Update(func(tx *bbolt.Tx) error {
		now := time.Now().UnixNano()
		return forEachInThread(tx, senderID, receiverID, func(id uuid.UUID, rec *boltMessage) error {
			if rec.SenderID != sender || rec.Seen {
				return nil
			}
			rec.Seen = true
			rec.UpdatedAt = now
			changed++
			return putBoltMessage(tx, id, rec)
		})
	})
	return changed, err
}

func (r *BoltMessageRepository) MarkSeen(_ context.Context, id uuid.UUID) error {
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getBoltMessage(tx, id)
		if err != nil {
			return err
		}
		rec.Seen = true
		rec.UpdatedAt = time.Now().UnixNano()
		return putBoltMessage(tx, id, rec)
	})
}

func (r *BoltMessageRepository) Update(_ context.Context, m *message.Message) error {
	err := r.store.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getBoltMessage(tx, m.ID)
		if err != nil {
			return err
		}
		if rec.Revision != m.Revision {
			return duochat_errors.ErrConflict
		}
		next := newBoltMessage(*m)
		rec.Text = next.Text
		rec.Edited = next.Edited
		rec.Reactions = next.Reactions
		rec.Revision++
		rec.UpdatedAt = time.Now().UnixNano()
		m.Seen = rec.Seen
		return putBoltMessage(tx, m.ID, rec)
	})
	if err != nil {
		return err
	}
	m.Revision++
	return nil
}

func (r *BoltMessageRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.store.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getBoltMessage(tx, id)
		if err != nil {
			return err
		}
		m, err := rec.toDomain()
		if err != nil {
			return err
		}
		if thread := tx.Bucket(bucketThreads).Bucket([]byte(conversation.Key(m.SenderID, m.ReceiverID))); thread != nil {
			if err := thread.Delete(rec.threadKey(id)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMessages).Delete(id[:])
	})
}

func (r *BoltMessageRepository) CountUnseen(_ context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	var count int64
	sender := senderID.String()
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		return forEachInThread(tx, senderID, receiverID, func(_ uuid.UUID, rec *boltMessage) error {
			if rec.SenderID == sender && !rec.Seen {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (r *BoltMessageRepository) Latest(_ context.Context, a, b uuid.UUID) (message.Message, error) {
	var out message.Message
	err := r.store.db.View(func(tx *bbolt.Tx) error {
		thread := tx.Bucket(bucketThreads).Bucket([]byte(conversation.Key(a, b)))
		if thread == nil {
			return duochat_errors.ErrNotFound
		}
		_, v := thread.Cursor().Last()
		if v == nil {
			return duochat_errors.ErrNotFound
		}
		id, err := uuid.FromBytes(v)
		if err != nil {
			return err
		}
		rec, err := getBoltMessage(tx, id)
		if err != nil {
			return err
		}
		out, err = rec.toDomain()
		return err
	})
	return out, err
}
