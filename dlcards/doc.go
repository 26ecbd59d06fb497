/*
package dlcards implements the key layer of a discrete-log based card protocol
over the BN254 curve.

The shuffle-and-reveal protocol itself lives outside this module; dlcards
covers the pieces the bootstrap contract needs to admit players before a hand
starts:

  - player key generation against the ceremony parameters
  - Schnorr proofs that a player knows the secret key behind a submitted
    public key, bound to the player's account identity
  - aggregation of the admitted players' public keys into the table key the
    protocol encrypts against
  - derivation of the per-card group elements from the deck shape

All group elements travel as 32-byte compressed encodings and every decoding
path rejects non-canonical or off-curve input.
*/
package dlcards
