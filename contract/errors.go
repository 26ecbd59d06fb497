package contract

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace all contract errors are registered under.
const ModuleName = "bootstrap"

var (
	// ErrInvalidRequest covers arguments that fail structural checks.
	ErrInvalidRequest = errorsmod.Register(ModuleName, 1, "invalid request")

	// ErrAlreadyInitialized is terminal: a parameter bundle is bound to
	// this account and no call can ever bind another.
	ErrAlreadyInitialized = errorsmod.Register(ModuleName, 2, "already initialized")

	// ErrNotInitialized rejects operations that need bound parameters.
	ErrNotInitialized = errorsmod.Register(ModuleName, 3, "not initialized")

	// ErrMalformedParams rejects an init payload that is not a parameter
	// bundle encoding at all. The caller should re-send a correct bundle.
	ErrMalformedParams = errorsmod.Register(ModuleName, 4, "malformed parameter bundle")

	// ErrInvalidParams rejects a well formed bundle whose content fails
	// validation. The ceremony output itself is suspect and must not be
	// bound.
	ErrInvalidParams = errorsmod.Register(ModuleName, 5, "invalid parameter bundle")

	// ErrUnknownMethod rejects calls to methods the contract does not have.
	ErrUnknownMethod = errorsmod.Register(ModuleName, 6, "unknown method")

	ErrTableNotFound  = errorsmod.Register(ModuleName, 7, "table not found")
	ErrWrongPhase     = errorsmod.Register(ModuleName, 8, "wrong table phase")
	ErrNotCreator     = errorsmod.Register(ModuleName, 9, "not the table creator")
	ErrOwnershipProof = errorsmod.Register(ModuleName, 10, "key ownership proof rejected")
	ErrAlreadyJoined  = errorsmod.Register(ModuleName, 11, "already joined")
)
