package dlcards

import (
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// PointSize is the size in bytes of a compressed group element encoding.
const PointSize = bn254.SizeOfG1AffineCompressed

// ScalarSize is the size in bytes of a canonical scalar encoding.
const ScalarSize = fr.Bytes

// Scalar is an element of the BN254 scalar field.
type Scalar struct {
	e fr.Element
}

// ScalarFromBytesCanonical decodes a big-endian scalar, rejecting encodings
// of values outside the field.
func ScalarFromBytesCanonical(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, fmt.Errorf("scalar: expected %d bytes, got %d", ScalarSize, len(b))
	}
	var s Scalar
	if err := s.e.SetBytesCanonical(b); err != nil {
		return Scalar{}, fmt.Errorf("scalar: non-canonical: %v", err)
	}
	return s, nil
}

// Bytes returns the canonical big-endian encoding of s.
func (s Scalar) Bytes() []byte {
	b := s.e.Bytes()
	return b[:]
}

// IsZero reports whether s is the zero scalar.
func (s Scalar) IsZero() bool {
	return s.e.IsZero()
}

// Equal reports whether s and t are the same scalar.
func (s Scalar) Equal(t Scalar) bool {
	return s.e.Equal(&t.e)
}

func scalarAdd(a, b Scalar) Scalar {
	var s Scalar
	s.e.Add(&a.e, &b.e)
	return s
}

func scalarMul(a, b Scalar) Scalar {
	var s Scalar
	s.e.Mul(&a.e, &b.e)
	return s
}

// randomScalar derives a uniform scalar from 64 bytes of entropy read from
// rand, domain separated by dst. The entropy buffer is wiped before return.
func randomScalar(rand io.Reader, dst []byte) (Scalar, error) {
	seed := make([]byte, 64)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return Scalar{}, fmt.Errorf("error reading entropy: %v", err)
	}
	elems, err := fr.Hash(seed, dst, 1)
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		return Scalar{}, fmt.Errorf("error mapping entropy to scalar: %v", err)
	}
	return Scalar{e: elems[0]}, nil
}

// Point is an element of the BN254 G1 group.
type Point struct {
	p bn254.G1Affine
}

// BasePoint returns the canonical G1 generator.
func BasePoint() Point {
	_, _, g1, _ := bn254.Generators()
	return Point{p: g1}
}

// HashToPoint maps msg to a group element under the domain separation tag
// dst. The discrete log of the result is unknown to everyone.
func HashToPoint(msg, dst []byte) (Point, error) {
	p, err := bn254.HashToG1(msg, dst)
	if err != nil {
		return Point{}, fmt.Errorf("error hashing to curve: %v", err)
	}
	return Point{p: p}, nil
}

// PointFromBytesCanonical decodes a compressed group element, rejecting
// encodings that are off curve or outside the prime order subgroup.
func PointFromBytesCanonical(b []byte) (Point, error) {
	if len(b) != PointSize {
		return Point{}, fmt.Errorf("point: expected %d bytes, got %d", PointSize, len(b))
	}
	var p Point
	if _, err := p.p.SetBytes(b); err != nil {
		return Point{}, fmt.Errorf("point: invalid encoding: %v", err)
	}
	return p, nil
}

// Bytes returns the compressed encoding of p.
func (p Point) Bytes() []byte {
	b := p.p.Bytes()
	return b[:]
}

// Equal reports whether p and q are the same group element.
func (p Point) Equal(q Point) bool {
	return p.p.Equal(&q.p)
}

// IsIdentity reports whether p is the group identity.
func (p Point) IsIdentity() bool {
	return p.p.IsInfinity()
}

func pointAdd(a, b Point) Point {
	var p Point
	p.p.Add(&a.p, &b.p)
	return p
}

// mulPoint returns s*a.
func mulPoint(a Point, s Scalar) Point {
	var bi big.Int
	s.e.BigInt(&bi)
	var p Point
	p.p.ScalarMultiplication(&a.p, &bi)
	return p
}
