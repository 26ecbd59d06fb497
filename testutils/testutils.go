// package testutils contains helpers for tests and examples that exercise
// the bootstrap pipeline against the sandbox chain.
package testutils

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/ondeck-protocol/ondeck/artifact"
	"github.com/ondeck-protocol/ondeck/contract"
	"github.com/ondeck-protocol/ondeck/ledger"
	"github.com/ondeck-protocol/ondeck/ledger/sandbox"
	"github.com/ondeck-protocol/ondeck/setup"
)

// DeterministicRand returns a reader producing an endless byte stream
// derived from seed. Equal seeds produce equal streams, so a ceremony fed
// from one is reproducible. Tests and examples only; production ceremonies
// use crypto/rand.
func DeterministicRand(seed []byte) io.Reader {
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
	if err != nil {
		panic(fmt.Sprintf("testutils: failed to create xof: %v", err))
	}
	xof.Write(seed)
	return xof
}

// FreshBundle runs a ceremony drawing entropy from rand and returns the
// bundle together with its canonical encoding.
func FreshBundle(rand io.Reader) (*setup.ParameterBundle, []byte, error) {
	bundle, err := setup.Run(setup.Conf{Rand: rand})
	if err != nil {
		return nil, nil, err
	}
	encoded, err := bundle.Encode()
	if err != nil {
		return nil, nil, err
	}
	return bundle, encoded, nil
}

// NewSandboxChain starts a sandbox chain with the bootstrap contract
// registered, ready to deploy to.
func NewSandboxChain(conf sandbox.Conf) (*sandbox.Chain, error) {
	chain, err := sandbox.New(conf)
	if err != nil {
		return nil, err
	}
	chain.Register(contract.Code(), contract.New())
	return chain, nil
}

// DeployBootstrapIfNeeded deploys the bootstrap contract to account unless
// the account already holds the current code. An account holding different
// code is an error; accounts cannot be redeployed in place.
func DeployBootstrapIfNeeded(ctx context.Context, host ledger.Host, account string) error {
	art, err := artifact.New(contract.Code())
	if err != nil {
		return err
	}
	info, err := host.AccountInfo(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to read account %s: %v", account, err)
	}
	if info.Exists {
		if info.CodeHash != art.Hash {
			return fmt.Errorf("account %s exists but holds different code", account)
		}
		return nil
	}
	if _, err := host.Deploy(ctx, account, art.Code); err != nil {
		return fmt.Errorf("failed to deploy bootstrap contract: %v", err)
	}
	return nil
}

// PlayerAccounts returns n distinct player account ids.
func PlayerAccounts(n int) []string {
	accounts := make([]string, n)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("player%d.test", i+1)
	}
	return accounts
}

// CreateDirectoryIfNeeded creates dir unless it already exists.
func CreateDirectoryIfNeeded(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("error creating folder: %v", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("error checking folder: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file %s exists but is not a directory", dir)
	}
	return nil
}
