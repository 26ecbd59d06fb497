package setup

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ondeck-protocol/ondeck/dlcards"

	"golang.org/x/crypto/blake2b"
)

var commitKeyDST = []byte("ondeck/v1/ceremony/commit-key")

// Conf configures a ceremony run. The zero value runs a production ceremony
// with the default deck shape and the operating system's entropy source.
type Conf struct {
	// Rand is the ceremony's entropy source. Leave nil to use crypto/rand.
	// Fixing it makes a run reproducible, which is meant for tests only.
	Rand io.Reader

	// M and N override the deck shape. Leave zero for the default
	// 2x26 deck of 52 cards.
	M int
	N int
}

// Run executes the setup ceremony and returns a validated parameter bundle.
// It draws entropy once, derives the commitment key from it through a
// hash-to-group transcript and wipes the entropy before returning. On any
// failure no bundle is returned; a partial result is never emitted.
func Run(conf Conf) (*ParameterBundle, error) {
	m, n := conf.M, conf.N
	if m == 0 && n == 0 {
		m, n = dlcards.DeckRows, dlcards.DeckColumns
	}
	if m < 1 || n < 1 {
		return nil, fmt.Errorf("invalid deck shape %dx%d", m, n)
	}
	entropy := conf.Rand
	if entropy == nil {
		entropy = rand.Reader
	}

	seed := make([]byte, 64)
	if _, err := io.ReadFull(entropy, seed); err != nil {
		return nil, fmt.Errorf("error reading ceremony entropy: %v", err)
	}
	transcript := newTranscript(seed, m, n)
	for i := range seed {
		seed[i] = 0
	}

	commitKey := make([]dlcards.Point, n+1)
	for i := range commitKey {
		p, err := transcript.drawPoint(i)
		if err != nil {
			return nil, fmt.Errorf("error deriving commitment key element %d: %v", i, err)
		}
		commitKey[i] = p
	}

	params := dlcards.Params{
		M:         m,
		N:         n,
		Generator: dlcards.BasePoint(),
		CommitKey: commitKey,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("ceremony output failed validation: %v", err)
	}
	return NewParameterBundle(params)
}

// transcript is the ceremony's running state. Its digest seeds every drawn
// element, so the whole commitment key is determined by the initial entropy
// and the deck shape.
type transcript struct {
	state [32]byte
}

func newTranscript(seed []byte, m, n int) *transcript {
	header := make([]byte, 0, len(commitKeyDST)+16+len(seed))
	header = append(header, commitKeyDST...)
	header = binary.BigEndian.AppendUint64(header, uint64(m))
	header = binary.BigEndian.AppendUint64(header, uint64(n))
	header = append(header, seed...)
	return &transcript{state: blake2b.Sum256(header)}
}

// drawPoint derives the i-th commitment key element. The digest fed to the
// hash-to-group map is public once the bundle is; unknowability of the
// element's discrete log comes from the map, not from keeping seeds secret.
func (t *transcript) drawPoint(i int) (dlcards.Point, error) {
	msg := make([]byte, 0, len(t.state)+9)
	msg = append(msg, t.state[:]...)
	msg = append(msg, []byte("point")...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(i))
	digest := blake2b.Sum256(msg)

	p, err := dlcards.HashToPoint(digest[:], commitKeyDST)
	if err != nil {
		return dlcards.Point{}, err
	}
	if p.IsIdentity() {
		return dlcards.Point{}, fmt.Errorf("derived the identity element")
	}
	return p, nil
}
