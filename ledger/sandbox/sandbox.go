// package sandbox runs contracts against an in process chain with the
// account, call and view semantics the pipeline expects from a real host.
// It stands in for a local node: executables register in process, state
// lives either in memory or in a bolt database that survives restarts.
package sandbox

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ondeck-protocol/ondeck/ledger"
)

// Conf configures a sandbox chain. The zero value runs fully in memory
// with wall clock block times and random per call seeds.
type Conf struct {
	// DBFile, when set, stores the chain in a bolt database at this path.
	// Accounts and contract state survive reopening the file; executables
	// do not, Register must run again.
	DBFile string
	// Logger receives chain activity. The zero logger is silent.
	Logger zerolog.Logger
	// Now supplies block timestamps. Defaults to time.Now.
	Now func() time.Time
	// Seed supplies per call randomness. Defaults to crypto/rand.
	Seed func() [32]byte
}

// Chain is an in process ledger.Host. All operations serialize on one lock,
// so a call observes either all or none of any other call's writes.
type Chain struct {
	mu    sync.Mutex
	store store
	execs map[[ledger.HashSize]byte]ledger.Contract
	log   zerolog.Logger
	now   func() time.Time
	seed  func() [32]byte
}

var _ ledger.Host = (*Chain)(nil)

// New starts a sandbox chain.
func New(conf Conf) (*Chain, error) {
	c := &Chain{
		execs: make(map[[ledger.HashSize]byte]ledger.Contract),
		log:   conf.Logger,
		now:   conf.Now,
		seed:  conf.Seed,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.seed == nil {
		c.seed = randomSeed
	}
	if conf.DBFile != "" {
		s, err := openBoltStore(conf.DBFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open chain database: %v", err)
		}
		c.store = s
	} else {
		c.store = newMemoryStore()
	}
	return c, nil
}

// Close releases the chain's backing store.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.close()
}

// Register makes code executable on this chain and returns its hash, the
// value Deploy matches code against. Registering the same code again
// replaces the executable.
func (c *Chain) Register(code []byte, contract ledger.Contract) [ledger.HashSize]byte {
	hash := sha256.Sum256(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs[hash] = contract
	c.log.Debug().Hex("code_hash", hash[:]).Msg("registered executable")
	return hash
}

// AccountInfo reports whether account exists and which code it holds. A
// missing account is not an error.
func (c *Chain) AccountInfo(ctx context.Context, account string) (*ledger.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok, err := c.store.codeHash(account)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account %s: %v", account, err)
	}
	info := &ledger.AccountInfo{Account: account, Exists: ok}
	if ok {
		info.CodeHash = hash
	}
	return info, nil
}

// Deploy creates account holding code. The code must have been registered
// and the account must not exist yet.
func (c *Chain) Deploy(ctx context.Context, account string, code []byte) (*ledger.DeployResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if account == "" {
		return nil, fmt.Errorf("deploy needs an account id")
	}
	hash := sha256.Sum256(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.execs[hash]; !ok {
		return nil, fmt.Errorf("deploy to %s: %w", account, ledger.ErrUnknownCode)
	}
	_, exists, err := c.store.codeHash(account)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account %s: %v", account, err)
	}
	if exists {
		return nil, fmt.Errorf("deploy to %s: %w", account, ledger.ErrAccountExists)
	}
	if err := c.store.createAccount(account, hash); err != nil {
		return nil, fmt.Errorf("failed to create account %s: %v", account, err)
	}
	c.log.Info().Str("account", account).Hex("code_hash", hash[:]).Msg("deployed contract")
	return &ledger.DeployResult{Account: account, CodeHash: hash}, nil
}

// Call executes a state changing method as caller. The handler's writes
// land only when it succeeds.
func (c *Chain) Call(ctx context.Context, caller, account, method string, args []byte) ([]byte, error) {
	if caller == "" {
		return nil, fmt.Errorf("call to %s needs a caller", account)
	}
	return c.execute(ctx, caller, account, method, args, true)
}

// View executes a read only method. Any writes the handler makes are
// discarded.
func (c *Chain) View(ctx context.Context, account, method string, args []byte) ([]byte, error) {
	return c.execute(ctx, "", account, method, args, false)
}

func (c *Chain) execute(ctx context.Context, caller, account, method string, args []byte, commit bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok, err := c.store.codeHash(account)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account %s: %v", account, err)
	}
	if !ok {
		return nil, fmt.Errorf("call to %s: %w", account, ledger.ErrAccountNotFound)
	}
	exec, ok := c.execs[hash]
	if !ok {
		return nil, fmt.Errorf("call to %s: %w", account, ledger.ErrUnknownCode)
	}

	env := &callEnv{caller: caller, blockTime: c.now(), seed: c.seed()}
	var result []byte
	err = c.store.update(account, commit, func(kv rawKV) error {
		env.state = &stateStore{kv: kv}
		var handleErr error
		result, handleErr = exec.Handle(env, method, args)
		return handleErr
	})
	if err != nil {
		c.log.Debug().Str("account", account).Str("method", method).Err(err).Msg("call failed")
		return nil, err
	}
	c.log.Debug().Str("account", account).Str("method", method).Msg("call done")
	return result, nil
}

// callEnv is the execution context handed to contract code for one call.
type callEnv struct {
	caller    string
	blockTime time.Time
	seed      [32]byte
	state     *stateStore
}

func (e *callEnv) Caller() string           { return e.caller }
func (e *callEnv) BlockTime() time.Time     { return e.blockTime }
func (e *callEnv) RandomSeed() [32]byte     { return e.seed }
func (e *callEnv) State() ledger.StateStore { return e.state }

func randomSeed() [32]byte {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("sandbox: reading randomness: %v", err))
	}
	return seed
}
