package crypto

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidSignature = errors.New("crypto: invalid signature")
)

// Common interface for private keys, as used for DPoP proof and client
// assertion signing.
type PrivateKey interface {
	Equal(other PrivateKey) bool

	// Outputs the corresponding [PublicKey].
	PublicKey() (PublicKey, error)

	// First hashes the raw bytes with SHA-256, then signs the digest,
	// returning a binary signature.
	HashAndSign(content []byte) ([]byte, error)

	// Raw binary serialization of the secret key material.
	Bytes() []byte

	// Multibase string encoding of the secret key, including a multicodec
	// type indicator.
	Multibase() string
}

// Common interface for public keys.
type PublicKey interface {
	Equal(other PublicKey) bool

	// Compressed binary serialization of the key.
	Bytes() []byte

	// Hashes the raw bytes with SHA-256, then verifies the signature against
	// the digest. Requires a "low-S" signature.
	HashAndVerify(content, sig []byte) error

	// Same as HashAndVerify, but does not require "low-S". Used for JWT
	// validation, where peers may emit either variant.
	HashAndVerifyLenient(content, sig []byte) error

	// Public key as a JWK structure, for embedding in DPoP proof headers.
	JWK() (*JWK, error)

	// Multibase string encoding, including a multicodec type indicator.
	Multibase() string
}

// multicodec varint prefixes for P-256 keys
var (
	prefixP256Priv = []byte{0x86, 0x26} // p256-priv, code 0x1306
	prefixP256Pub  = []byte{0x80, 0x24} // p256-pub, code 0x1200
)

// Parses a private key from multibase string encoding, as exported by the
// PrivateKey.Multibase method.
func ParsePrivateMultibase(encoded string) (PrivateKey, error) {
	if len(encoded) < 2 || encoded[0] != 'z' {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string")
	}
	data, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid multibase encoding: %w", err)
	}
	if len(data) < 2 || data[0] != prefixP256Priv[0] || data[1] != prefixP256Priv[1] {
		return nil, fmt.Errorf("crypto: unsupported private key multicodec type")
	}
	return ParsePrivateBytesP256(data[2:])
}

// Parses a public key from multibase string encoding, as exported by the
// PublicKey.Multibase method.
func ParsePublicMultibase(encoded string) (PublicKey, error) {
	if len(encoded) < 2 || encoded[0] != 'z' {
		return nil, fmt.Errorf("crypto: not a multibase base58btc string")
	}
	data, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid multibase encoding: %w", err)
	}
	if len(data) < 2 || data[0] != prefixP256Pub[0] || data[1] != prefixP256Pub[1] {
		return nil, fmt.Errorf("crypto: unsupported public key multicodec type")
	}
	return ParsePublicBytesP256(data[2:])
}
