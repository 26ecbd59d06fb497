package setup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/ondeck-protocol/ondeck/dlcards"

	"github.com/fxamacker/cbor/v2"
)

// Scheme identifies the parameter scheme this package produces. A bundle
// carrying any other tag is rejected on decode, so parameters can never
// cross into an incompatible contract version.
const Scheme = "barnett-smart-bn254-v1"

// FingerprintSize is the size in bytes of a bundle fingerprint.
const FingerprintSize = sha256.Size

// Decode failure classes. Every error returned by Decode wraps one of
// these: ErrMalformed for input that is not a well formed bundle encoding,
// ErrInvalid for a well formed encoding whose content fails validation.
var (
	ErrMalformed = errors.New("malformed parameter bundle")
	ErrInvalid   = errors.New("invalid parameter bundle")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("setup: building canonical encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("setup: building decoder: %v", err))
	}
}

// wirePayload is the fingerprinted part of the exchange form. Field order
// is the wire order and must not change within a scheme version.
type wirePayload struct {
	_         struct{} `cbor:",toarray"`
	Scheme    string
	M         uint64
	N         uint64
	Generator []byte
	CommitKey [][]byte
}

// wireBundle is the full exchange form, the payload plus its fingerprint.
type wireBundle struct {
	_           struct{} `cbor:",toarray"`
	Payload     wirePayload
	Fingerprint []byte
}

// ParameterBundle is the output of a ceremony run: the card protocol
// parameters together with the scheme tag and the payload fingerprint.
// A bundle is immutable once created; changing the parameters requires
// running a new ceremony, not editing a bundle in place.
type ParameterBundle struct {
	Scheme string
	Params dlcards.Params

	fingerprint [FingerprintSize]byte
}

// NewParameterBundle builds a bundle from validated parameters and computes
// its fingerprint. It is the only constructor; a bundle assembled by hand
// would carry no fingerprint and fail every downstream check.
func NewParameterBundle(params dlcards.Params) (*ParameterBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %v", err)
	}
	fp, err := fingerprintOf(payloadOf(params))
	if err != nil {
		return nil, err
	}
	return &ParameterBundle{Scheme: Scheme, Params: params, fingerprint: fp}, nil
}

// Fingerprint returns the content hash of the bundle's payload. It is a
// deterministic function of the payload alone, so it is stable across
// serialization round trips and across processes.
func (b *ParameterBundle) Fingerprint() [FingerprintSize]byte {
	return b.fingerprint
}

// FingerprintHex returns the fingerprint in hex for display and logging.
func (b *ParameterBundle) FingerprintHex() string {
	return hex.EncodeToString(b.fingerprint[:])
}

// Encode serializes the bundle to its canonical exchange form. Encoding the
// same bundle twice yields identical bytes.
func (b *ParameterBundle) Encode() ([]byte, error) {
	data, err := encMode.Marshal(wireBundle{
		Payload:     payloadOf(b.Params),
		Fingerprint: b.fingerprint[:],
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding parameter bundle: %v", err)
	}
	return data, nil
}

// Decode parses and fully validates a serialized bundle: structural
// decoding, scheme tag, group validity of every element and fingerprint
// consistency. It never repairs or defaults anything; input that is not
// exactly a valid bundle is rejected.
func Decode(data []byte) (*ParameterBundle, error) {
	var wire wireBundle
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Payload.Scheme != Scheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalid, wire.Payload.Scheme)
	}
	const maxShape = 1 << 16
	if wire.Payload.M < 1 || wire.Payload.M > maxShape ||
		wire.Payload.N < 1 || wire.Payload.N > maxShape {
		return nil, fmt.Errorf("%w: deck shape %dx%d out of range",
			ErrInvalid, wire.Payload.M, wire.Payload.N)
	}

	gen, err := dlcards.PointFromBytesCanonical(wire.Payload.Generator)
	if err != nil {
		return nil, fmt.Errorf("%w: generator: %v", ErrInvalid, err)
	}
	commitKey := make([]dlcards.Point, len(wire.Payload.CommitKey))
	for i, enc := range wire.Payload.CommitKey {
		p, err := dlcards.PointFromBytesCanonical(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: commitment key element %d: %v", ErrInvalid, i, err)
		}
		commitKey[i] = p
	}

	params := dlcards.Params{
		M:         int(wire.Payload.M),
		N:         int(wire.Payload.N),
		Generator: gen,
		CommitKey: commitKey,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if len(wire.Fingerprint) != FingerprintSize {
		return nil, fmt.Errorf("%w: fingerprint has %d bytes, expected %d",
			ErrInvalid, len(wire.Fingerprint), FingerprintSize)
	}
	fp, err := fingerprintOf(payloadOf(params))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(fp[:], wire.Fingerprint) {
		return nil, fmt.Errorf("%w: fingerprint mismatch, payload was altered", ErrInvalid)
	}
	return &ParameterBundle{Scheme: wire.Payload.Scheme, Params: params, fingerprint: fp}, nil
}

// WriteFile writes the canonical exchange form to name, readable only by
// the owner. The file should be treated as sensitive until the parameters
// are bound on chain.
func (b *ParameterBundle) WriteFile(name string) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return fmt.Errorf("error writing parameter bundle file: %v", err)
	}
	return nil
}

// ReadBundleFile reads and decodes a bundle file written by WriteFile.
func ReadBundleFile(name string) (*ParameterBundle, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("error reading parameter bundle file: %v", err)
	}
	return Decode(data)
}

func payloadOf(params dlcards.Params) wirePayload {
	commitKey := make([][]byte, len(params.CommitKey))
	for i, p := range params.CommitKey {
		commitKey[i] = p.Bytes()
	}
	return wirePayload{
		Scheme:    Scheme,
		M:         uint64(params.M),
		N:         uint64(params.N),
		Generator: params.Generator.Bytes(),
		CommitKey: commitKey,
	}
}

func fingerprintOf(p wirePayload) ([FingerprintSize]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return [FingerprintSize]byte{}, fmt.Errorf("error encoding payload for fingerprint: %v", err)
	}
	return sha256.Sum256(data), nil
}
