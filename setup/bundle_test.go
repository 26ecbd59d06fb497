package setup

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ondeck-protocol/ondeck/dlcards"
)

func testBundle(t *testing.T) *ParameterBundle {
	t.Helper()
	bundle, err := Run(Conf{Rand: newFixedEntropy("bundle tests")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return bundle
}

func TestBundleRoundTrip(t *testing.T) {
	bundle := testBundle(t)

	enc, err := bundle.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := Decode(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decoded.Scheme != bundle.Scheme {
		t.Errorf("scheme changed across the round trip")
	}
	if decoded.Params.M != bundle.Params.M || decoded.Params.N != bundle.Params.N {
		t.Errorf("deck shape changed across the round trip")
	}
	if !decoded.Params.Generator.Equal(bundle.Params.Generator) {
		t.Errorf("generator changed across the round trip")
	}
	if len(decoded.Params.CommitKey) != len(bundle.Params.CommitKey) {
		t.Fatalf("commitment key length changed across the round trip")
	}
	for i := range bundle.Params.CommitKey {
		if !decoded.Params.CommitKey[i].Equal(bundle.Params.CommitKey[i]) {
			t.Errorf("commitment key element %d changed across the round trip", i)
		}
	}
	if decoded.Fingerprint() != bundle.Fingerprint() {
		t.Errorf("fingerprint changed across the round trip")
	}

	// canonical form: re-encoding the decoded bundle gives identical bytes
	enc2, err := decoded.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(enc, enc2) {
		t.Errorf("re-encoding produced different bytes")
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   {},
		"garbage": []byte("not a parameter bundle"),
	} {
		_, err := Decode(data)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}

	enc, err := testBundle(t).Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Decode(enc[:len(enc)/2]); !errors.Is(err, ErrMalformed) {
		t.Errorf("truncated: expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsTamperedFingerprint(t *testing.T) {
	enc, err := testBundle(t).Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the fingerprint is the trailing byte string of the encoding
	tampered := append([]byte(nil), enc...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decode(tampered); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsWrongScheme(t *testing.T) {
	bundle := testBundle(t)
	payload := payloadOf(bundle.Params)
	payload.Scheme = "some-other-scheme"
	fp, err := fingerprintOf(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := encMode.Marshal(wireBundle{Payload: payload, Fingerprint: fp[:]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsInvalidElements(t *testing.T) {
	bundle := testBundle(t)

	// identity generator
	payload := payloadOf(bundle.Params)
	identity := make([]byte, dlcards.PointSize)
	identity[0] = 0x40
	payload.Generator = identity
	if _, err := Decode(mustEncodeWire(t, payload)); !errors.Is(err, ErrInvalid) {
		t.Errorf("identity generator: expected ErrInvalid, got %v", err)
	}

	// commitment key element that is not a curve point
	payload = payloadOf(bundle.Params)
	offCurve := make([]byte, dlcards.PointSize)
	for i := range offCurve {
		offCurve[i] = 0xff
	}
	payload.CommitKey[3] = offCurve
	if _, err := Decode(mustEncodeWire(t, payload)); !errors.Is(err, ErrInvalid) {
		t.Errorf("off curve element: expected ErrInvalid, got %v", err)
	}

	// commitment key with a missing element
	payload = payloadOf(bundle.Params)
	payload.CommitKey = payload.CommitKey[:len(payload.CommitKey)-1]
	if _, err := Decode(mustEncodeWire(t, payload)); !errors.Is(err, ErrInvalid) {
		t.Errorf("short commitment key: expected ErrInvalid, got %v", err)
	}

	// deck shape out of range
	payload = payloadOf(bundle.Params)
	payload.M = 1 << 32
	if _, err := Decode(mustEncodeWire(t, payload)); !errors.Is(err, ErrInvalid) {
		t.Errorf("oversized shape: expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsBadFingerprintLength(t *testing.T) {
	bundle := testBundle(t)
	payload := payloadOf(bundle.Params)
	data, err := encMode.Marshal(wireBundle{Payload: payload, Fingerprint: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

// mustEncodeWire encodes a payload with a fingerprint freshly computed over
// it, so Decode failures come from the payload itself, not from a stale
// fingerprint.
func mustEncodeWire(t *testing.T, payload wirePayload) []byte {
	t.Helper()
	fp, err := fingerprintOf(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := encMode.Marshal(wireBundle{Payload: payload, Fingerprint: fp[:]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func TestNewParameterBundleRejectsInvalidParams(t *testing.T) {
	bundle := testBundle(t)
	params := bundle.Params
	params.CommitKey = append([]dlcards.Point(nil), params.CommitKey...)
	params.CommitKey[1] = params.CommitKey[2]
	if _, err := NewParameterBundle(params); err == nil {
		t.Errorf("expected an error for duplicate commitment key elements")
	}
}

func TestBundleFileRoundTrip(t *testing.T) {
	bundle := testBundle(t)
	name := filepath.Join(t.TempDir(), "params.cbor")

	if err := bundle.WriteFile(name); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := ReadBundleFile(name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Fingerprint() != bundle.Fingerprint() {
		t.Errorf("fingerprint changed across the file round trip")
	}

	if _, err := ReadBundleFile(filepath.Join(t.TempDir(), "missing.cbor")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
