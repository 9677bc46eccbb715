// Cryptographic keys and operations for the OAuth client engine.
//
// This package abstracts away curve, compression, and signature details. The
// engine only ever needs NIST P-256 / secp256r1 (the "ES256" JOSE algorithm),
// which is the mandatory DPoP signing algorithm for atproto OAuth, so that is
// the only key type implemented.
//
// "Low-S" signatures are produced when signing, as required by the atproto
// cryptography specification. Verification has both strict (low-S required)
// and lenient (JWT-style) variants.
//
// Private keys are concrete types; the secret key material is present in
// process memory for the lifetime of a session and is never persisted except
// through the explicit multibase export used for auth-flow checkpointing.
package crypto
