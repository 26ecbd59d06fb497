package sandbox

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ondeck-protocol/ondeck/ledger"
)

var accountsBucket = []byte("accounts")

// errDiscard aborts a bolt transaction whose writes must not land, without
// reporting a failure to the caller.
var errDiscard = errors.New("discard transaction")

func stateBucket(account string) []byte {
	return []byte("state|" + account)
}

// boltStore keeps the chain in a bolt database so accounts and contract
// state survive process restarts.
type boltStore struct {
	db *bolt.DB
}

func openBoltStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accountsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) codeHash(account string) (hash [ledger.HashSize]byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(accountsBucket).Get([]byte(account))
		if data == nil {
			return nil
		}
		if len(data) != ledger.HashSize {
			return fmt.Errorf("corrupt code hash for account %s", account)
		}
		copy(hash[:], data)
		ok = true
		return nil
	})
	if err != nil {
		return hash, false, fmt.Errorf("bolt db read failed, %w", err)
	}
	return hash, ok, nil
}

func (s *boltStore) createAccount(account string, hash [ledger.HashSize]byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(accountsBucket).Put([]byte(account), hash[:]); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(stateBucket(account))
		return err
	})
	if err != nil {
		return fmt.Errorf("bolt db write failed, %w", err)
	}
	return nil
}

func (s *boltStore) update(account string, commit bool, fn func(rawKV) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucket(account))
		if bucket == nil {
			return fmt.Errorf("no state bucket for account %s", account)
		}
		if err := fn(&boltKV{bucket: bucket}); err != nil {
			return err
		}
		if !commit {
			return errDiscard
		}
		return nil
	})
	if errors.Is(err, errDiscard) {
		return nil
	}
	return err
}

func (s *boltStore) close() error {
	return s.db.Close()
}

// boltKV exposes one account's state bucket during a transaction.
type boltKV struct {
	bucket *bolt.Bucket
}

func (b *boltKV) get(key []byte) []byte       { return b.bucket.Get(key) }
func (b *boltKV) put(key, value []byte) error { return b.bucket.Put(key, value) }
func (b *boltKV) del(key []byte) error        { return b.bucket.Delete(key) }
