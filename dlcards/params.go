package dlcards

import (
	"fmt"
)

// Default deck shape. The deck is laid out as DeckRows rows of DeckColumns
// cards each, 52 cards in total.
const (
	DeckRows    = 2
	DeckColumns = 26
)

var cardDST = []byte("ondeck/v1/card-element")

// Params are the public parameters of the card protocol: the encryption
// generator and the commitment key the shuffle argument commits under.
// They come out of a setup ceremony and must not be constructed by hand.
type Params struct {
	// M and N are the deck shape, M rows by N columns.
	M int
	N int

	// Generator is the encryption generator all player keys are taken
	// against.
	Generator Point

	// CommitKey holds the N+1 commitment key elements. Their discrete logs
	// with respect to each other and to Generator must be unknown, which is
	// what the setup ceremony guarantees.
	CommitKey []Point
}

// NumCards returns the deck size M*N.
func (p Params) NumCards() int {
	return p.M * p.N
}

// Validate checks the structural and group validity of p: positive deck
// shape, a commitment key of exactly N+1 elements, no identity elements,
// and no duplicates among the commitment key and the generator.
func (p Params) Validate() error {
	if p.M < 1 || p.N < 1 {
		return fmt.Errorf("invalid deck shape %dx%d", p.M, p.N)
	}
	if p.Generator.IsIdentity() {
		return fmt.Errorf("generator is the identity")
	}
	if len(p.CommitKey) != p.N+1 {
		return fmt.Errorf("commitment key has %d elements, expected %d",
			len(p.CommitKey), p.N+1)
	}
	seen := map[string]int{string(p.Generator.Bytes()): -1}
	for i, q := range p.CommitKey {
		if q.IsIdentity() {
			return fmt.Errorf("commitment key element %d is the identity", i)
		}
		enc := string(q.Bytes())
		if j, ok := seen[enc]; ok {
			if j == -1 {
				return fmt.Errorf("commitment key element %d equals the generator", i)
			}
			return fmt.Errorf("commitment key elements %d and %d are equal", j, i)
		}
		seen[enc] = i
	}
	return nil
}

// CardElements derives the deck's card group elements from the deck shape.
// Element i stands for card i, with i/13 selecting the suit and i%13 the
// rank for a standard 52 card deck. The derivation is deterministic, so
// every party computes the same mapping from the same parameters.
func CardElements(p Params) ([]Point, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %v", err)
	}
	elems := make([]Point, p.NumCards())
	for i := range elems {
		msg := append([]byte("card"), u32be(uint32(i))...)
		q, err := HashToPoint(msg, cardDST)
		if err != nil {
			return nil, fmt.Errorf("error deriving card element %d: %v", i, err)
		}
		elems[i] = q
	}
	return elems, nil
}
