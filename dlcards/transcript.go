package dlcards

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	transcriptPrefix       = []byte("ondeck/v1/transcript|")
	transcriptChallengeDST = []byte("ondeck/v1/transcript/challenge")
)

// transcript is a Fiat-Shamir transcript. It accumulates length-framed
// messages and derives challenge scalars from the accumulated state, so a
// challenge commits to everything appended before it.
type transcript struct {
	state []byte
}

func newTranscript(domainSep string) *transcript {
	dst := []byte(domainSep)
	st := make([]byte, 0, len(transcriptPrefix)+4+len(dst))
	st = append(st, transcriptPrefix...)
	st = append(st, u32be(uint32(len(dst)))...)
	st = append(st, dst...)
	return &transcript{state: st}
}

func (t *transcript) appendMessage(label string, msg []byte) {
	lb := []byte(label)
	t.state = append(t.state, []byte("msg")...)
	t.state = append(t.state, u32be(uint32(len(lb)))...)
	t.state = append(t.state, lb...)
	t.state = append(t.state, u32be(uint32(len(msg)))...)
	t.state = append(t.state, msg...)
}

func (t *transcript) challengeScalar(label string) (Scalar, error) {
	lb := []byte(label)
	msg := make([]byte, 0, len(t.state)+9+4+len(lb))
	msg = append(msg, t.state...)
	msg = append(msg, []byte("challenge")...)
	msg = append(msg, u32be(uint32(len(lb)))...)
	msg = append(msg, lb...)
	elems, err := fr.Hash(msg, transcriptChallengeDST, 1)
	if err != nil {
		return Scalar{}, fmt.Errorf("error deriving challenge: %v", err)
	}
	return Scalar{e: elems[0]}, nil
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
