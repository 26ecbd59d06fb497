/*
package setup runs the trusted setup ceremony for the card protocol and
defines the canonical exchange form of its output, the parameter bundle.

Design of the ceremony
====================================================================================================
The card protocol needs a commitment key whose elements have unknown discrete
logs with respect to each other and to the encryption generator. If anyone
knew such a relation they could forge shuffle arguments, so the way these
elements are produced is what the whole scheme's soundness rests on.

The ceremony derives every commitment key element by hashing to the curve:
each element is the image of a transcript digest under a hash-to-group map,
so its discrete log is unknown to every party, including the party that ran
the ceremony. There is no secret exponent behind the output and therefore no
trapdoor to destroy; the only sensitive by-product is the raw entropy drawn
at the start, and the ceremony wipes it from memory before returning.

Each run draws fresh entropy, so two honest runs produce different bundles.
A bundle's fingerprint, on the other hand, is computed over its payload
alone, so any single bundle can be checked for integrity at every later
stage, from the ceremony output file to the copy a contract stores on chain.

A run either returns a fully validated bundle or an error with no bundle at
all. Every produced element is checked for group membership and degeneracy,
and the elements are checked to be pairwise distinct. A failed or canceled
run leaves nothing behind that a later run could pick up by accident.

Exchange form
====================================================================================================
Bundles travel as canonical CBOR, so equal bundles always serialize to equal
bytes and the fingerprint survives a round trip through the wire form. The
serialized form carries the fingerprint alongside the payload and Decode
recomputes and compares it, rejecting bundles whose payload was altered
after generation.
*/
package setup
