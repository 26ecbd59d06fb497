package contract

import (
	"fmt"
	"time"
)

// Storage keys. Tables live under tableKeyPrefix keyed by table id.
var (
	initRecordKey  = []byte{0x01}
	tableKeyPrefix = []byte{0x02}
	cardMappingKey = []byte{0x03}
)

func tableKey(id TableID) []byte {
	return append(append([]byte(nil), tableKeyPrefix...), id[:]...)
}

// InitRecord is the on-chain record of the one-time initialization. Once
// Initialized is true it never transitions back and no field is ever
// rewritten.
type InitRecord struct {
	_           struct{} `cbor:",toarray"`
	Initialized bool
	// Bundle is the serialized parameter bundle exactly as submitted by
	// the call that won initialization.
	Bundle []byte
	// Fingerprint is the bundle's payload fingerprint.
	Fingerprint []byte
	// BoundAtUnixNano is the block time of the winning call.
	BoundAtUnixNano uint64
}

// TableID identifies a table by four decimal digits.
type TableID [4]byte

func (id TableID) String() string {
	return fmt.Sprintf("%d%d%d%d", id[0], id[1], id[2], id[3])
}

// TableIDFromBytes converts a stored id back to a TableID.
func TableIDFromBytes(b []byte) (TableID, error) {
	var id TableID
	if len(b) != len(id) {
		return id, fmt.Errorf("table id: expected %d bytes, got %d", len(id), len(b))
	}
	for i, d := range b {
		if d > 9 {
			return id, fmt.Errorf("table id: byte %d is not a decimal digit", i)
		}
	}
	copy(id[:], b)
	return id, nil
}

// Phase is a table's lifecycle phase.
type Phase uint8

const (
	// PhaseLobby is a table waiting for players.
	PhaseLobby Phase = iota + 1
	// PhaseStarted is a table whose aggregate key is fixed and whose hand
	// is running under the external protocol.
	PhaseStarted
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseStarted:
		return "started"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Player is an admitted table member: the account and the public key whose
// ownership proof was verified when the player was admitted.
type Player struct {
	_       struct{} `cbor:",toarray"`
	Account string
	PubKey  []byte
}

// Table is the stored state of one table. Player joins only happen in
// PhaseLobby; AggregateKey and StartedAtUnixNano are set exactly once on
// the transition to PhaseStarted.
type Table struct {
	_                 struct{} `cbor:",toarray"`
	ID                []byte
	Phase             Phase
	CreatedAtUnixNano uint64
	StartedAtUnixNano uint64
	Players           []Player
	AggregateKey      []byte
}

func (t *Table) creator() string {
	if len(t.Players) == 0 {
		return ""
	}
	return t.Players[0].Account
}

func (t *Table) hasPlayer(account string) bool {
	for _, p := range t.Players {
		if p.Account == account {
			return true
		}
	}
	return false
}

// Reclaim windows for abandoned tables. A table id whose lobby never
// started, or whose hand started long ago, can be reissued.
const (
	lobbyReclaimAge   = 20 * time.Minute
	startedReclaimAge = time.Hour
)

// reclaimable reports whether the table's id may be reissued at now.
func (t *Table) reclaimable(now time.Time) bool {
	switch t.Phase {
	case PhaseLobby:
		return now.Sub(time.Unix(0, int64(t.CreatedAtUnixNano))) > lobbyReclaimAge
	case PhaseStarted:
		return now.Sub(time.Unix(0, int64(t.StartedAtUnixNano))) > startedReclaimAge
	default:
		return false
	}
}
