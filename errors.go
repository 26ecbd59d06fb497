package ondeck

import "errors"

// Stage failure taxonomy. Run wraps the underlying cause with the sentinel
// of the stage that failed, so callers can match with errors.Is and still
// see the cause in the message.
var (
	// ErrBuildFailed reports a failed artifact build.
	ErrBuildFailed = errors.New("artifact build failed")
	// ErrCeremonyFailed reports a failed trusted setup ceremony.
	ErrCeremonyFailed = errors.New("ceremony failed")
	// ErrSerializationFailed reports a bundle that could not be encoded or
	// written out.
	ErrSerializationFailed = errors.New("parameter serialization failed")
	// ErrDeployFailed covers chain interaction failures in both the deploy
	// and initialize stages.
	ErrDeployFailed = errors.New("deployment failed")
	// ErrAlreadyInitialized reports a destination account that already has
	// parameters bound. Under the AdoptExisting policy the pipeline adopts
	// the stored record instead of failing.
	ErrAlreadyInitialized = errors.New("account already initialized")
	// ErrInvalidParameters reports a parameter bundle the contract
	// rejected as malformed or invalid.
	ErrInvalidParameters = errors.New("malformed or invalid parameters")
)
