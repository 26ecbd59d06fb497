package contract

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/ondeck-protocol/ondeck/ledger"
	"github.com/ondeck-protocol/ondeck/setup"

	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory StateStore. It commits writes immediately;
// rollback of failed calls is the host's concern and is tested with the
// sandbox, not here.
type fakeStore struct {
	m map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{m: make(map[string][]byte)}
}

func (s *fakeStore) Read(key []byte, value any) (bool, error) {
	raw, ok := s.m[string(key)]
	if !ok {
		return false, nil
	}
	return true, decMode.Unmarshal(raw, value)
}

func (s *fakeStore) Write(key []byte, value any) error {
	raw, err := encMode.Marshal(value)
	if err != nil {
		return err
	}
	s.m[string(key)] = raw
	return nil
}

func (s *fakeStore) Delete(key []byte) error {
	delete(s.m, string(key))
	return nil
}

func (s *fakeStore) snapshot() map[string][]byte {
	snap := make(map[string][]byte, len(s.m))
	for k, v := range s.m {
		snap[k] = append([]byte(nil), v...)
	}
	return snap
}

type fakeEnv struct {
	caller string
	now    time.Time
	seed   [32]byte
	store  *fakeStore
}

func newFakeEnv(store *fakeStore) *fakeEnv {
	return &fakeEnv{
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		seed:  [32]byte{1, 2, 3, 4},
		store: store,
	}
}

func (e *fakeEnv) Caller() string           { return e.caller }
func (e *fakeEnv) BlockTime() time.Time     { return e.now }
func (e *fakeEnv) RandomSeed() [32]byte     { return e.seed }
func (e *fakeEnv) State() ledger.StateStore { return e.store }

func (e *fakeEnv) as(caller string) *fakeEnv {
	e.caller = caller
	return e
}

func (e *fakeEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func encodedBundle(t *testing.T) (*setup.ParameterBundle, []byte) {
	t.Helper()
	bundle, err := setup.Run(setup.Conf{})
	require.NoError(t, err)
	enc, err := bundle.Encode()
	require.NoError(t, err)
	return bundle, enc
}

func initialized(t *testing.T) (*Contract, *fakeEnv, *setup.ParameterBundle) {
	t.Helper()
	c := New()
	env := newFakeEnv(newFakeStore())
	bundle, enc := encodedBundle(t)
	_, err := c.Handle(env.as("deployer"), MethodInit, enc)
	require.NoError(t, err)
	return c, env, bundle
}

func TestInitBindsParameters(t *testing.T) {
	c := New()
	env := newFakeEnv(newFakeStore())
	bundle, enc := encodedBundle(t)

	_, err := c.Handle(env.as("anyone"), MethodInit, enc)
	require.NoError(t, err)

	var rec InitRecord
	found, err := env.store.Read(initRecordKey, &rec)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, rec.Initialized)
	require.Equal(t, enc, rec.Bundle)
	fp := bundle.Fingerprint()
	require.Equal(t, fp[:], rec.Fingerprint)
	require.Equal(t, uint64(env.now.UnixNano()), rec.BoundAtUnixNano)

	got, err := c.Handle(env, MethodGetParams, nil)
	require.NoError(t, err)
	require.Equal(t, enc, got)

	var mapping [][]byte
	found, err = env.store.Read(cardMappingKey, &mapping)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, mapping, bundle.Params.NumCards())
}

func TestInitSecondCallFailsAndChangesNothing(t *testing.T) {
	c, env, _ := initialized(t)
	snap := env.store.snapshot()

	// same payload again
	rec := snapRecord(t, env)
	_, err := c.Handle(env.as("anyone"), MethodInit, rec.Bundle)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, snap, env.store.m)

	// a different, freshly generated payload fares no better
	_, enc2 := encodedBundle(t)
	_, err = c.Handle(env.as("someone-else"), MethodInit, enc2)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, snap, env.store.m)

	// and neither does garbage
	_, err = c.Handle(env, MethodInit, []byte("garbage"))
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, snap, env.store.m)
}

func snapRecord(t *testing.T, env *fakeEnv) *InitRecord {
	t.Helper()
	var rec InitRecord
	found, err := env.store.Read(initRecordKey, &rec)
	require.NoError(t, err)
	require.True(t, found)
	return &rec
}

func TestInitRejectsMalformedPayload(t *testing.T) {
	c := New()
	env := newFakeEnv(newFakeStore())

	_, err := c.Handle(env.as("anyone"), MethodInit, []byte("not a bundle"))
	require.ErrorIs(t, err, ErrMalformedParams)
	require.Empty(t, env.store.m)
}

func TestInitRejectsTamperedPayload(t *testing.T) {
	c := New()
	env := newFakeEnv(newFakeStore())
	_, enc := encodedBundle(t)

	tampered := append([]byte(nil), enc...)
	tampered[len(tampered)-1] ^= 0x01
	_, err := c.Handle(env.as("anyone"), MethodInit, tampered)
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Empty(t, env.store.m)

	// a later init with the untampered bundle still works
	_, err = c.Handle(env, MethodInit, enc)
	require.NoError(t, err)
}

func TestViewsBeforeInitialization(t *testing.T) {
	c := New()
	env := newFakeEnv(newFakeStore())

	_, err := c.Handle(env, MethodGetParams, nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Handle(env, MethodGetCardMapping, nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	args, err := EncodeArgs(&CreateTableArgs{PubKey: []byte{1}, Proof: []byte{2}})
	require.NoError(t, err)
	_, err = c.Handle(env.as("alice"), MethodCreateTable, args)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestUnknownMethod(t *testing.T) {
	c, env, _ := initialized(t)
	_, err := c.Handle(env, "shuffle_deck", nil)
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestGetCardMapping(t *testing.T) {
	c, env, bundle := initialized(t)

	raw, err := c.Handle(env, MethodGetCardMapping, nil)
	require.NoError(t, err)

	var mapping [][]byte
	require.NoError(t, decMode.Unmarshal(raw, &mapping))
	require.Len(t, mapping, bundle.Params.NumCards())
	seen := make(map[string]bool)
	for _, enc := range mapping {
		require.False(t, seen[string(enc)])
		seen[string(enc)] = true
	}
}

// rand.Reader is used directly where a test needs fresh keys; none of these
// tests depend on reproducible randomness.
var testRand = rand.Reader
