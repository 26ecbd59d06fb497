// Package ondeck bootstraps a card protocol deployment in one shot: build
// the contract artifact, run the trusted setup ceremony, serialize the
// parameter bundle, deploy the contract to a chain account, and bind the
// bundle to that account with a one time initialization call.
//
// The stages run strictly in order and the first failure aborts the run;
// nothing downstream of a failed stage executes, so a failed run leaves no
// partially initialized deployment behind. A retry means a new Pipeline and
// a full re-run, fresh ceremony included.
package ondeck

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ondeck-protocol/ondeck/artifact"
	"github.com/ondeck-protocol/ondeck/contract"
	"github.com/ondeck-protocol/ondeck/ledger"
	"github.com/ondeck-protocol/ondeck/setup"
)

// State marks the stage a pipeline is in.
type State int

const (
	Building State = iota
	SettingUp
	Serializing
	Deploying
	Initializing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case SettingUp:
		return "setting up"
	case Serializing:
		return "serializing"
	case Deploying:
		return "deploying"
	case Initializing:
		return "initializing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// Policy decides what to do when the destination account already exists.
type Policy int

const (
	// FreshOnly fails the run when the destination account exists.
	FreshOnly Policy = iota
	// AdoptExisting accepts an account that already holds the expected
	// artifact, and when a bundle is already bound to it, adopts the
	// stored record after revalidating it instead of failing.
	AdoptExisting
)

// Config assembles a pipeline run.
type Config struct {
	// Account is the destination account for the contract.
	Account string
	// Caller signs the deploy and init calls.
	Caller string
	// Builder produces the contract artifact.
	Builder artifact.Builder
	// Host is the chain hosting the destination account.
	Host ledger.Host
	// Setup configures the ceremony. The zero value draws entropy from
	// crypto/rand and uses the standard 52 card deck.
	Setup setup.Conf
	// Policy picks the behavior on an existing account. Default FreshOnly.
	Policy Policy
	// BundleFile, when set, receives the serialized bundle before deploy.
	BundleFile string
	// Logger receives stage events. The zero logger is silent.
	Logger zerolog.Logger
}

// Result reports a finished run.
type Result struct {
	// State is Done for a successful run.
	State State
	// Account is the destination account.
	Account string
	// ArtifactHash identifies the built contract code.
	ArtifactHash [ledger.HashSize]byte
	// Fingerprint is the content hash of the bound parameter bundle. When
	// Adopted is set this is the stored bundle's fingerprint, not the
	// fresh ceremony's.
	Fingerprint [setup.FingerprintSize]byte
	// Adopted reports that the account was already initialized and the
	// pipeline adopted the stored bundle instead of binding its own.
	Adopted bool
}

// Pipeline runs the bootstrap end to end. A Pipeline is single use and
// single goroutine: Run may only be called once, and a failed run is
// retried by building a new Pipeline, which re-runs every stage.
type Pipeline struct {
	conf  Config
	state State
	log   zerolog.Logger
}

// New validates conf and returns a pipeline ready to run.
func New(conf Config) (*Pipeline, error) {
	if conf.Account == "" {
		return nil, fmt.Errorf("config needs a destination account")
	}
	if conf.Caller == "" {
		return nil, fmt.Errorf("config needs a caller account")
	}
	if conf.Builder == nil {
		return nil, fmt.Errorf("config needs an artifact builder")
	}
	if conf.Host == nil {
		return nil, fmt.Errorf("config needs a ledger host")
	}
	return &Pipeline{conf: conf, state: Building, log: conf.Logger}, nil
}

// State reports the stage the pipeline is in.
func (p *Pipeline) State() State {
	return p.state
}

// Run drives the pipeline to Done or aborts it at the first failing stage,
// returning an error that wraps the failed stage's taxonomy sentinel.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.state != Building {
		return nil, fmt.Errorf("pipeline already ran, state is %s", p.state)
	}
	res := &Result{Account: p.conf.Account}

	p.stageStarted(Building)
	art, err := p.conf.Builder.Build(ctx)
	if err != nil {
		return nil, p.abort(fmt.Errorf("%w: %v", ErrBuildFailed, err))
	}
	res.ArtifactHash = art.Hash
	p.log.Info().Hex("artifact_hash", art.Hash[:]).Msg("artifact built")

	p.stageStarted(SettingUp)
	bundle, err := setup.Run(p.conf.Setup)
	if err != nil {
		return nil, p.abort(fmt.Errorf("%w: %v", ErrCeremonyFailed, err))
	}
	res.Fingerprint = bundle.Fingerprint()
	p.log.Info().Str("fingerprint", bundle.FingerprintHex()).Msg("ceremony finished")

	p.stageStarted(Serializing)
	encoded, err := p.serialize(bundle)
	if err != nil {
		return nil, p.abort(fmt.Errorf("%w: %v", ErrSerializationFailed, err))
	}
	p.log.Info().Int("bytes", len(encoded)).Msg("bundle serialized")

	p.stageStarted(Deploying)
	if err := p.deploy(ctx, art); err != nil {
		return nil, p.abort(fmt.Errorf("%w: %v", ErrDeployFailed, err))
	}

	p.stageStarted(Initializing)
	if err := p.initialize(ctx, encoded, res); err != nil {
		return nil, p.abort(err)
	}

	p.state = Done
	res.State = Done
	p.log.Info().
		Str("account", res.Account).
		Str("fingerprint", hex.EncodeToString(res.Fingerprint[:])).
		Bool("adopted", res.Adopted).
		Msg("bootstrap done")
	return res, nil
}

func (p *Pipeline) stageStarted(s State) {
	p.state = s
	p.log.Info().Str("stage", s.String()).Str("account", p.conf.Account).Msg("stage started")
}

func (p *Pipeline) abort(err error) error {
	p.state = Aborted
	p.log.Error().Err(err).Msg("pipeline aborted")
	return err
}

func (p *Pipeline) serialize(bundle *setup.ParameterBundle) ([]byte, error) {
	encoded, err := bundle.Encode()
	if err != nil {
		return nil, err
	}
	if p.conf.BundleFile != "" {
		if err := bundle.WriteFile(p.conf.BundleFile); err != nil {
			return nil, err
		}
		p.log.Info().Str("file", p.conf.BundleFile).Msg("bundle written to file")
	}
	return encoded, nil
}

func (p *Pipeline) deploy(ctx context.Context, art *artifact.Artifact) error {
	info, err := p.conf.Host.AccountInfo(ctx, p.conf.Account)
	if err != nil {
		return fmt.Errorf("failed to look up account %s: %v", p.conf.Account, err)
	}
	if !info.Exists {
		if _, err := p.conf.Host.Deploy(ctx, p.conf.Account, art.Code); err != nil {
			return fmt.Errorf("failed to deploy to %s: %v", p.conf.Account, err)
		}
		p.log.Info().Str("account", p.conf.Account).Msg("contract deployed")
		return nil
	}
	if p.conf.Policy != AdoptExisting {
		return fmt.Errorf("account %s already exists", p.conf.Account)
	}
	if info.CodeHash != art.Hash {
		return fmt.Errorf("account %s holds different code (hash %x)",
			p.conf.Account, info.CodeHash)
	}
	p.log.Info().Str("account", p.conf.Account).Msg("account already holds the artifact, deploy skipped")
	return nil
}

func (p *Pipeline) initialize(ctx context.Context, encoded []byte, res *Result) error {
	_, err := p.conf.Host.Call(ctx, p.conf.Caller, p.conf.Account, contract.MethodInit, encoded)
	if err == nil {
		p.log.Info().Str("account", p.conf.Account).Msg("parameters bound")
		return nil
	}
	switch {
	case errors.Is(err, contract.ErrAlreadyInitialized):
		if p.conf.Policy != AdoptExisting {
			return fmt.Errorf("%w: account %s: %v", ErrAlreadyInitialized, p.conf.Account, err)
		}
		return p.adopt(ctx, res)
	case errors.Is(err, contract.ErrMalformedParams), errors.Is(err, contract.ErrInvalidParams):
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	default:
		return fmt.Errorf("%w: init call to %s: %v", ErrDeployFailed, p.conf.Account, err)
	}
}

// adopt recovers a run whose destination already has parameters bound: it
// fetches the stored bundle, revalidates it end to end, and reports the
// stored fingerprint. The fresh ceremony's bundle is discarded whole.
func (p *Pipeline) adopt(ctx context.Context, res *Result) error {
	stored, err := p.conf.Host.View(ctx, p.conf.Account, contract.MethodGetParams, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch bound parameters from %s: %v",
			ErrDeployFailed, p.conf.Account, err)
	}
	bundle, err := setup.Decode(stored)
	if err != nil {
		return fmt.Errorf("%w: bound parameters of %s failed validation: %v",
			ErrInvalidParameters, p.conf.Account, err)
	}
	res.Fingerprint = bundle.Fingerprint()
	res.Adopted = true
	p.log.Info().
		Str("account", p.conf.Account).
		Str("fingerprint", bundle.FingerprintHex()).
		Msg("adopted bound parameters")
	return nil
}
