package dlcards

import (
	"fmt"
	"io"
)

const keyOwnershipDomain = "ondeck/v1/key-ownership"

var (
	keyGenDST     = []byte("ondeck/v1/keygen")
	proofNonceDST = []byte("ondeck/v1/key-ownership/nonce")
)

// KeyGen samples a player keypair against the generator in params. The
// secret key never leaves the caller; only the public key and an ownership
// proof travel to the table contract.
func KeyGen(params Params, rand io.Reader) (Scalar, Point, error) {
	sk, err := randomScalar(rand, keyGenDST)
	if err != nil {
		return Scalar{}, Point{}, fmt.Errorf("error sampling secret key: %v", err)
	}
	if sk.IsZero() {
		return Scalar{}, Point{}, fmt.Errorf("sampled a degenerate secret key")
	}
	return sk, mulPoint(params.Generator, sk), nil
}

// KeyOwnershipProof is a Schnorr proof of knowledge of the secret key behind
// a public key, bound to a message identifying the prover.
type KeyOwnershipProof struct {
	// A = w*G for the prover's nonce w
	A Point
	// S = w + e*sk for the transcript challenge e
	S Scalar
}

// keyOwnershipProofSize is the length of an encoded proof, A then S.
const keyOwnershipProofSize = PointSize + ScalarSize

// Bytes encodes the proof as A(32) || S(32).
func (pr KeyOwnershipProof) Bytes() []byte {
	out := make([]byte, 0, keyOwnershipProofSize)
	out = append(out, pr.A.Bytes()...)
	out = append(out, pr.S.Bytes()...)
	return out
}

// KeyOwnershipProofFromBytes decodes a proof encoded by Bytes.
func KeyOwnershipProofFromBytes(b []byte) (KeyOwnershipProof, error) {
	if len(b) != keyOwnershipProofSize {
		return KeyOwnershipProof{}, fmt.Errorf(
			"key ownership proof: expected %d bytes, got %d", keyOwnershipProofSize, len(b))
	}
	a, err := PointFromBytesCanonical(b[:PointSize])
	if err != nil {
		return KeyOwnershipProof{}, fmt.Errorf("key ownership proof: %v", err)
	}
	s, err := ScalarFromBytesCanonical(b[PointSize:])
	if err != nil {
		return KeyOwnershipProof{}, fmt.Errorf("key ownership proof: %v", err)
	}
	return KeyOwnershipProof{A: a, S: s}, nil
}

// ProveKeyOwnership proves knowledge of sk for pk = sk*G, binding msg into
// the challenge so the proof cannot be replayed for another identity.
func ProveKeyOwnership(params Params, pk Point, sk Scalar, msg []byte,
	rand io.Reader) (KeyOwnershipProof, error) {

	if sk.IsZero() {
		return KeyOwnershipProof{}, fmt.Errorf("secret key is zero")
	}
	w, err := randomScalar(rand, proofNonceDST)
	if err != nil {
		return KeyOwnershipProof{}, fmt.Errorf("error sampling nonce: %v", err)
	}
	if w.IsZero() {
		return KeyOwnershipProof{}, fmt.Errorf("sampled a degenerate nonce")
	}
	a := mulPoint(params.Generator, w)

	e, err := ownershipChallenge(params, pk, msg, a)
	if err != nil {
		return KeyOwnershipProof{}, err
	}
	return KeyOwnershipProof{A: a, S: scalarAdd(w, scalarMul(e, sk))}, nil
}

// VerifyKeyOwnership checks a key ownership proof for pk bound to msg.
// It returns false, not an error, for a well-formed proof that does not
// verify; errors are reserved for inputs that could not be processed.
func VerifyKeyOwnership(params Params, pk Point, msg []byte,
	proof KeyOwnershipProof) (bool, error) {

	if pk.IsIdentity() {
		return false, fmt.Errorf("public key is the identity")
	}
	e, err := ownershipChallenge(params, pk, msg, proof.A)
	if err != nil {
		return false, err
	}
	// s*G == A + e*pk
	lhs := mulPoint(params.Generator, proof.S)
	rhs := pointAdd(proof.A, mulPoint(pk, e))
	return lhs.Equal(rhs), nil
}

func ownershipChallenge(params Params, pk Point, msg []byte, a Point) (Scalar, error) {
	tr := newTranscript(keyOwnershipDomain)
	tr.appendMessage("gen", params.Generator.Bytes())
	tr.appendMessage("pk", pk.Bytes())
	tr.appendMessage("id", msg)
	tr.appendMessage("a", a.Bytes())
	return tr.challengeScalar("e")
}

// AggregateKey folds the admitted players' public keys into the single table
// key the protocol encrypts against. Every key must already have passed an
// ownership check; aggregation itself only guards against degenerate input.
func AggregateKey(params Params, pks []Point) (Point, error) {
	if len(pks) == 0 {
		return Point{}, fmt.Errorf("no public keys to aggregate")
	}
	agg := pks[0]
	for i, pk := range pks {
		if pk.IsIdentity() {
			return Point{}, fmt.Errorf("public key %d is the identity", i)
		}
		if i > 0 {
			agg = pointAdd(agg, pk)
		}
	}
	if agg.IsIdentity() {
		return Point{}, fmt.Errorf("aggregate key is the identity")
	}
	return agg, nil
}
