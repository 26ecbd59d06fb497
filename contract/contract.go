// package contract implements the bootstrap contract for the card protocol:
// a one-time initialization entry point that binds a ceremony's parameter
// bundle to the hosting account, and the table lobby that admits players
// against those parameters.
//
// The initialization guard is the contract's whole reason to exist. init is
// callable by anyone but effective exactly once; the host executes calls
// inside atomic state transactions, so of any number of concurrent init
// calls exactly one writes the record and every other observes it and fails
// with ErrAlreadyInitialized. Nothing in the contract can reset the record
// or rebind different parameters for the life of the account.
package contract

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ondeck-protocol/ondeck/dlcards"
	"github.com/ondeck-protocol/ondeck/ledger"
	"github.com/ondeck-protocol/ondeck/setup"

	"golang.org/x/crypto/blake2b"
)

// Revision tags the executable blob served by Code. It changes whenever
// handler semantics change, so hosts can tell revisions apart by hash.
const Revision = "v1"

// Contract is the bootstrap contract logic. It is stateless; all state
// lives in the environment handed to each call.
type Contract struct{}

// New returns the bootstrap contract.
func New() *Contract {
	return &Contract{}
}

// Code returns the canonical executable blob for the in process
// implementation of the contract. Hosts match deployed code to an
// executable by hash, so the blob only needs to be stable per revision.
func Code() []byte {
	return []byte("ondeck/bootstrap-contract/" + Revision)
}

// Handle dispatches a method call. Arguments of init are the raw serialized
// parameter bundle; all other methods take canonical CBOR argument structs.
// Results of get_params, get_aggregate_key and create_table are raw bytes,
// get_card_mapping returns a canonical CBOR list of card elements.
func (c *Contract) Handle(env ledger.Env, method string, args []byte) ([]byte, error) {
	switch method {
	case MethodInit:
		return nil, c.initialize(env, args)
	case MethodGetParams:
		return c.getParams(env)
	case MethodGetCardMapping:
		return c.getCardMapping(env)
	case MethodCreateTable:
		return c.createTable(env, args)
	case MethodJoinTable:
		return nil, c.joinTable(env, args)
	case MethodStartTable:
		return nil, c.startTable(env, args)
	case MethodGetAggregateKey:
		return c.getAggregateKey(env, args)
	default:
		return nil, ErrUnknownMethod.Wrapf("%q", method)
	}
}

// initialize binds a parameter bundle to the account. The bundle is fully
// validated before anything is written; a rejected call leaves no state
// behind. After the first success every later call fails, whatever its
// payload.
func (c *Contract) initialize(env ledger.Env, params []byte) error {
	var rec InitRecord
	found, err := env.State().Read(initRecordKey, &rec)
	if err != nil {
		return fmt.Errorf("error reading init record: %v", err)
	}
	if found && rec.Initialized {
		return ErrAlreadyInitialized.Wrap("a parameter bundle is already bound")
	}

	bundle, err := setup.Decode(params)
	switch {
	case errors.Is(err, setup.ErrMalformed):
		return ErrMalformedParams.Wrap(err.Error())
	case err != nil:
		return ErrInvalidParams.Wrap(err.Error())
	}

	elems, err := dlcards.CardElements(bundle.Params)
	if err != nil {
		return ErrInvalidParams.Wrapf("deriving card elements: %v", err)
	}
	mapping := make([][]byte, len(elems))
	for i, e := range elems {
		mapping[i] = e.Bytes()
	}
	if err := env.State().Write(cardMappingKey, mapping); err != nil {
		return fmt.Errorf("error writing card mapping: %v", err)
	}

	fp := bundle.Fingerprint()
	rec = InitRecord{
		Initialized:     true,
		Bundle:          params,
		Fingerprint:     fp[:],
		BoundAtUnixNano: uint64(env.BlockTime().UnixNano()),
	}
	if err := env.State().Write(initRecordKey, &rec); err != nil {
		return fmt.Errorf("error writing init record: %v", err)
	}
	return nil
}

// getParams returns the bound bundle in its serialized form, exactly as it
// was submitted by the winning init call.
func (c *Contract) getParams(env ledger.Env) ([]byte, error) {
	rec, err := c.initRecord(env)
	if err != nil {
		return nil, err
	}
	return rec.Bundle, nil
}

// getCardMapping returns the deck's card elements, element i standing for
// card i.
func (c *Contract) getCardMapping(env ledger.Env) ([]byte, error) {
	if _, err := c.initRecord(env); err != nil {
		return nil, err
	}
	var mapping [][]byte
	found, err := env.State().Read(cardMappingKey, &mapping)
	if err != nil {
		return nil, fmt.Errorf("error reading card mapping: %v", err)
	}
	if !found {
		return nil, fmt.Errorf("card mapping missing despite initialization")
	}
	return encMode.Marshal(mapping)
}

func (c *Contract) createTable(env ledger.Env, args []byte) ([]byte, error) {
	var a CreateTableArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	params, err := c.boundParams(env)
	if err != nil {
		return nil, err
	}
	pk, err := c.admitKey(env, params, a.PubKey, a.Proof)
	if err != nil {
		return nil, err
	}

	id, err := c.generateTableID(env)
	if err != nil {
		return nil, err
	}
	table := Table{
		ID:                id[:],
		Phase:             PhaseLobby,
		CreatedAtUnixNano: uint64(env.BlockTime().UnixNano()),
		Players:           []Player{{Account: env.Caller(), PubKey: pk.Bytes()}},
	}
	if err := env.State().Write(tableKey(id), &table); err != nil {
		return nil, fmt.Errorf("error writing table: %v", err)
	}
	return id[:], nil
}

func (c *Contract) joinTable(env ledger.Env, args []byte) error {
	var a JoinTableArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	id, err := TableIDFromBytes(a.TableID)
	if err != nil {
		return ErrInvalidRequest.Wrap(err.Error())
	}
	params, err := c.boundParams(env)
	if err != nil {
		return err
	}

	var table Table
	found, err := env.State().Read(tableKey(id), &table)
	if err != nil {
		return fmt.Errorf("error reading table: %v", err)
	}
	if !found {
		return ErrTableNotFound.Wrapf("table %s", id)
	}
	if table.Phase != PhaseLobby {
		return ErrWrongPhase.Wrap("table is no longer accepting players")
	}
	if table.hasPlayer(env.Caller()) {
		return ErrAlreadyJoined.Wrapf("account %s", env.Caller())
	}

	pk, err := c.admitKey(env, params, a.PubKey, a.Proof)
	if err != nil {
		return err
	}
	table.Players = append(table.Players, Player{Account: env.Caller(), PubKey: pk.Bytes()})
	if err := env.State().Write(tableKey(id), &table); err != nil {
		return fmt.Errorf("error writing table: %v", err)
	}
	return nil
}

// startTable closes the lobby and fixes the aggregate key over every
// admitted player's public key. Only the creator may start a table.
func (c *Contract) startTable(env ledger.Env, args []byte) error {
	var a StartTableArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	id, err := TableIDFromBytes(a.TableID)
	if err != nil {
		return ErrInvalidRequest.Wrap(err.Error())
	}
	params, err := c.boundParams(env)
	if err != nil {
		return err
	}

	var table Table
	found, err := env.State().Read(tableKey(id), &table)
	if err != nil {
		return fmt.Errorf("error reading table: %v", err)
	}
	if !found {
		return ErrTableNotFound.Wrapf("table %s", id)
	}
	if table.Phase != PhaseLobby {
		return ErrWrongPhase.Wrap("table already started")
	}
	if env.Caller() != table.creator() {
		return ErrNotCreator.Wrapf("account %s", env.Caller())
	}

	pks := make([]dlcards.Point, len(table.Players))
	for i, p := range table.Players {
		pk, err := dlcards.PointFromBytesCanonical(p.PubKey)
		if err != nil {
			return fmt.Errorf("error decoding stored player key %d: %v", i, err)
		}
		pks[i] = pk
	}
	agg, err := dlcards.AggregateKey(params, pks)
	if err != nil {
		return ErrInvalidRequest.Wrapf("aggregate key: %v", err)
	}

	table.Phase = PhaseStarted
	table.StartedAtUnixNano = uint64(env.BlockTime().UnixNano())
	table.AggregateKey = agg.Bytes()
	if err := env.State().Write(tableKey(id), &table); err != nil {
		return fmt.Errorf("error writing table: %v", err)
	}
	return nil
}

func (c *Contract) getAggregateKey(env ledger.Env, args []byte) ([]byte, error) {
	var a GetAggregateKeyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	id, err := TableIDFromBytes(a.TableID)
	if err != nil {
		return nil, ErrInvalidRequest.Wrap(err.Error())
	}
	var table Table
	found, err := env.State().Read(tableKey(id), &table)
	if err != nil {
		return nil, fmt.Errorf("error reading table: %v", err)
	}
	if !found {
		return nil, ErrTableNotFound.Wrapf("table %s", id)
	}
	if table.Phase != PhaseStarted {
		return nil, ErrWrongPhase.Wrap("table not started")
	}
	return table.AggregateKey, nil
}

// initRecord returns the init record, failing when the account was never
// initialized.
func (c *Contract) initRecord(env ledger.Env) (*InitRecord, error) {
	var rec InitRecord
	found, err := env.State().Read(initRecordKey, &rec)
	if err != nil {
		return nil, fmt.Errorf("error reading init record: %v", err)
	}
	if !found || !rec.Initialized {
		return nil, ErrNotInitialized
	}
	return &rec, nil
}

// boundParams decodes the bound bundle's parameters. The bundle was fully
// validated when it was bound, so a decode failure here is state
// corruption, not caller error.
func (c *Contract) boundParams(env ledger.Env) (dlcards.Params, error) {
	rec, err := c.initRecord(env)
	if err != nil {
		return dlcards.Params{}, err
	}
	bundle, err := setup.Decode(rec.Bundle)
	if err != nil {
		return dlcards.Params{}, fmt.Errorf("error decoding bound bundle: %v", err)
	}
	return bundle.Params, nil
}

// admitKey checks a submitted public key and its ownership proof against
// the caller's identity and returns the decoded key.
func (c *Contract) admitKey(env ledger.Env, params dlcards.Params,
	pkBytes, proofBytes []byte) (dlcards.Point, error) {

	if env.Caller() == "" {
		return dlcards.Point{}, ErrInvalidRequest.Wrap("caller required")
	}
	pk, err := dlcards.PointFromBytesCanonical(pkBytes)
	if err != nil {
		return dlcards.Point{}, ErrInvalidRequest.Wrapf("public key: %v", err)
	}
	proof, err := dlcards.KeyOwnershipProofFromBytes(proofBytes)
	if err != nil {
		return dlcards.Point{}, ErrInvalidRequest.Wrapf("proof: %v", err)
	}
	ok, err := dlcards.VerifyKeyOwnership(params, pk, []byte(env.Caller()), proof)
	if err != nil {
		return dlcards.Point{}, ErrOwnershipProof.Wrap(err.Error())
	}
	if !ok {
		return dlcards.Point{}, ErrOwnershipProof.Wrapf("for account %s", env.Caller())
	}
	return pk, nil
}

// generateTableID draws a table id from the block randomness, skipping ids
// held by live tables and reclaiming abandoned ones.
func (c *Contract) generateTableID(env ledger.Env) (TableID, error) {
	seed := env.RandomSeed()
	const maxAttempts = 64
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, ok := tableIDFromSeed(seed, attempt)
		if !ok {
			continue
		}
		var table Table
		found, err := env.State().Read(tableKey(id), &table)
		if err != nil {
			return TableID{}, fmt.Errorf("error reading table: %v", err)
		}
		if !found || table.reclaimable(env.BlockTime()) {
			return id, nil
		}
	}
	return TableID{}, ErrInvalidRequest.Wrap("no table id available")
}

// tableIDFromSeed derives four decimal digits from the seed and attempt
// counter. Bytes of 250 and above are skipped so every digit is uniform.
func tableIDFromSeed(seed [32]byte, attempt int) (TableID, bool) {
	msg := make([]byte, 0, len(seed)+4)
	msg = append(msg, seed[:]...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(attempt))
	digest := blake2b.Sum256(msg)

	var id TableID
	n := 0
	for _, b := range digest {
		if b >= 250 {
			continue
		}
		id[n] = b % 10
		n++
		if n == len(id) {
			return id, true
		}
	}
	return TableID{}, false
}
