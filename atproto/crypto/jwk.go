package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// Representation of a JSON Web Key (JWK), as relevant to the keys supported by
// this package.
//
// Only public key material is ever represented. No capability metadata fields
// (`ext`, `key_ops`, etc) exist on this struct, so they can not leak in to
// DPoP proof headers.
//
// Expected to be marshalled/unmarshalled as JSON.
type JWK struct {
	KeyType string  `json:"kty"`
	Curve   string  `json:"crv"`
	X       string  `json:"x"` // base64url, no padding
	Y       string  `json:"y"` // base64url, no padding
	Use     string  `json:"use,omitempty"`
	KeyID   *string `json:"kid,omitempty"`
}

// Loads a [PublicKey] from a JWK (serialized as JSON bytes).
func ParsePublicJWKBytes(jwkBytes []byte) (PublicKey, error) {
	var jwk JWK
	if err := json.Unmarshal(jwkBytes, &jwk); err != nil {
		return nil, fmt.Errorf("parsing JWK JSON: %w", err)
	}
	return ParsePublicJWK(jwk)
}

// Loads a [PublicKey] from a JWK struct.
func ParsePublicJWK(jwk JWK) (PublicKey, error) {

	if jwk.KeyType != "EC" {
		return nil, fmt.Errorf("unsupported JWK key type: %s", jwk.KeyType)
	}
	if jwk.Curve != "P-256" {
		return nil, fmt.Errorf("unsupported JWK curve: %s", jwk.Curve)
	}

	// base64url with no padding
	xbuf, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK base64 encoding: %w", err)
	}
	ybuf, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK base64 encoding: %w", err)
	}

	curve := elliptic.P256()
	var x, y big.Int
	x.SetBytes(xbuf)
	y.SetBytes(ybuf)

	if !curve.Params().IsOnCurve(&x, &y) {
		return nil, fmt.Errorf("invalid P-256 public key (not on curve)")
	}
	pub := PublicKeyP256{pubP256: ecdsa.PublicKey{
		Curve: curve,
		X:     &x,
		Y:     &y,
	}}
	if err := pub.checkCurve(); err != nil {
		return nil, err
	}
	return &pub, nil
}

func (k *PublicKeyP256) JWK() (*JWK, error) {
	// Coordinates are fixed-width 32 bytes; big.Int.Bytes() would drop
	// leading zeros.
	var xbuf, ybuf [32]byte
	k.pubP256.X.FillBytes(xbuf[:])
	k.pubP256.Y.FillBytes(ybuf[:])
	jwk := JWK{
		KeyType: "EC",
		Curve:   "P-256",
		X:       base64.RawURLEncoding.EncodeToString(xbuf[:]),
		Y:       base64.RawURLEncoding.EncodeToString(ybuf[:]),
	}
	return &jwk, nil
}
