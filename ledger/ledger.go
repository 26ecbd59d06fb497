// package ledger defines the boundary between the deployment pipeline and
// the chain that hosts the bootstrap contract. The pipeline only ever talks
// to a Host; contract logic only ever sees an Env. Everything else about the
// chain, from consensus to fees, stays behind this boundary.
package ledger

import (
	"context"
	"errors"
	"time"
)

// HashSize is the size in bytes of a code hash.
const HashSize = 32

// Host errors every implementation reports through errors.Is.
var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrUnknownCode     = errors.New("no executable registered for code hash")
)

// AccountInfo describes an account as the host sees it.
type AccountInfo struct {
	Account  string
	Exists   bool
	CodeHash [HashSize]byte
}

// DeployResult reports a completed code deployment.
type DeployResult struct {
	Account  string
	CodeHash [HashSize]byte
}

// Host is a chain that can host the bootstrap contract. Deploy creates a
// fresh account holding the given code and fails on an account that already
// exists. Call executes a state changing method as caller; the host must
// apply a call's writes atomically, so a failed call leaves no trace and
// concurrent calls to one account serialize. View executes a read only
// method and discards any writes.
type Host interface {
	AccountInfo(ctx context.Context, account string) (*AccountInfo, error)
	Deploy(ctx context.Context, account string, code []byte) (*DeployResult, error)
	Call(ctx context.Context, caller, account, method string, args []byte) ([]byte, error)
	View(ctx context.Context, account, method string, args []byte) ([]byte, error)
}

// Contract is the executable logic behind a deployed code blob. Handle
// returns the method's result or an error; on error the host discards every
// write the handler made through the environment's state.
type Contract interface {
	Handle(env Env, method string, args []byte) ([]byte, error)
}

// Env is the per call execution context a host hands to contract code.
type Env interface {
	// Caller is the account that signed the call. Empty for views.
	Caller() string
	// BlockTime is the timestamp of the block executing the call.
	BlockTime() time.Time
	// RandomSeed is the block's randomness, stable within a call.
	RandomSeed() [32]byte
	// State is the calling contract's keyed state.
	State() StateStore
}

// StateStore is a contract's persistent state. Values are serialized by the
// store; Read reports whether the key was present and decodes into value
// only when it was.
type StateStore interface {
	Read(key []byte, value any) (bool, error)
	Write(key []byte, value any) error
	Delete(key []byte) error
}
