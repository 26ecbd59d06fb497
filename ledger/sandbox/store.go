package sandbox

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ondeck-protocol/ondeck/ledger"
)

// store keeps accounts and their contract state. Callers hold the chain
// lock, so implementations do not need their own.
type store interface {
	codeHash(account string) ([ledger.HashSize]byte, bool, error)
	createAccount(account string, hash [ledger.HashSize]byte) error
	// update runs fn against the account's state and applies the writes fn
	// made only when fn returns nil and commit is true. An error from fn
	// always discards the writes and is returned as is.
	update(account string, commit bool, fn func(rawKV) error) error
	close() error
}

// rawKV is one account's state as raw bytes. A nil get result means the key
// is absent; contract values are never empty.
type rawKV interface {
	get(key []byte) []byte
	put(key, value []byte) error
	del(key []byte) error
}

// stateStore adapts a raw key value view to ledger.StateStore with cbor as
// the value codec.
type stateStore struct {
	kv rawKV
}

func (s *stateStore) Read(key []byte, value any) (bool, error) {
	data := s.kv.get(key)
	if data == nil {
		return false, nil
	}
	if err := cbor.Unmarshal(data, value); err != nil {
		return true, fmt.Errorf("failed to decode state value: %v", err)
	}
	return true, nil
}

func (s *stateStore) Write(key []byte, value any) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state value: %v", err)
	}
	return s.kv.put(key, data)
}

func (s *stateStore) Delete(key []byte) error {
	return s.kv.del(key)
}

// memoryStore holds the whole chain in maps. State it loses on process exit
// is exactly what a throwaway test network wants to lose.
type memoryStore struct {
	accounts map[string][ledger.HashSize]byte
	state    map[string]map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: make(map[string][ledger.HashSize]byte),
		state:    make(map[string]map[string][]byte),
	}
}

func (s *memoryStore) codeHash(account string) ([ledger.HashSize]byte, bool, error) {
	hash, ok := s.accounts[account]
	return hash, ok, nil
}

func (s *memoryStore) createAccount(account string, hash [ledger.HashSize]byte) error {
	s.accounts[account] = hash
	s.state[account] = make(map[string][]byte)
	return nil
}

func (s *memoryStore) update(account string, commit bool, fn func(rawKV) error) error {
	stage := &stagedKV{
		base:    s.state[account],
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
	if err := fn(stage); err != nil {
		return err
	}
	if !commit {
		return nil
	}
	base := s.state[account]
	if base == nil {
		base = make(map[string][]byte)
		s.state[account] = base
	}
	for k := range stage.deleted {
		delete(base, k)
	}
	for k, v := range stage.writes {
		base[k] = v
	}
	return nil
}

func (s *memoryStore) close() error { return nil }

// stagedKV buffers one call's writes over the committed state so a failed
// call can be dropped wholesale. A key is in writes or deleted, never both.
type stagedKV struct {
	base    map[string][]byte
	writes  map[string][]byte
	deleted map[string]bool
}

func (s *stagedKV) get(key []byte) []byte {
	k := string(key)
	if s.deleted[k] {
		return nil
	}
	if v, ok := s.writes[k]; ok {
		return v
	}
	return s.base[k]
}

func (s *stagedKV) put(key, value []byte) error {
	k := string(key)
	delete(s.deleted, k)
	s.writes[k] = append([]byte(nil), value...)
	return nil
}

func (s *stagedKV) del(key []byte) error {
	k := string(key)
	delete(s.writes, k)
	s.deleted[k] = true
	return nil
}
