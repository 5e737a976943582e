package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultNamespace keeps client data apart from anything else in the file
const DefaultNamespace = "expense_tracker"

// Well-known keys
const (
	KeySession  = "auth_session"
	KeyDrafts   = "expense_drafts"
	KeyCache    = "expense_cache"
	KeySettings = "settings"
)

// KV defines the interface for namespaced key-value persistence
type KV interface {
	// Get decodes the value stored under key into v and reports whether it existed
	Get(key string, v any) (bool, error)

	// Put stores v under key, replacing any previous value
	Put(key string, v any) error

	// Delete removes key; deleting an absent key is not an error
	Delete(key string) error

	// Keys returns all keys in the namespace
	Keys() ([]string, error)
}

// BoltStore implements KV using BoltDB, one bucket per namespace
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// Open opens (or creates) the store file at path using the given namespace
func Open(path, namespace string) (*BoltStore, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: []byte(namespace)}, nil
}

// Namespace returns a store sharing the same file under another namespace
func (b *BoltStore) Namespace(namespace string) (*BoltStore, error) {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: b.db, bucket: []byte(namespace)}, nil
}

// Get retrieves and decodes the value stored under key
func (b *BoltStore) Get(key string, v any) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(b.bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshaling %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Put encodes v as JSON and stores it under key
func (b *BoltStore) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), data)
	})
}

// Delete removes key from the namespace
func (b *BoltStore) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

// Keys returns every key in the namespace in byte order
func (b *BoltStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
