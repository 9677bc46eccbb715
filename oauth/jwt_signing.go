package oauth

import (
	"crypto"
	"fmt"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"

	"github.com/golang-jwt/jwt/v5"
)

// signingMethodP256 bridges [atcrypto.PrivateKeyP256] into the golang-jwt
// signing-method registry under the standard "ES256" name, replacing the
// default implementation (which expects *ecdsa.PrivateKey directly).
type signingMethodP256 struct {
	alg    string
	hash   crypto.Hash
	keyLen int
}

var signingMethodES256 *signingMethodP256

func init() {
	signingMethodES256 = &signingMethodP256{
		alg:    "ES256",
		hash:   crypto.SHA256,
		keyLen: 32,
	}
	jwt.RegisterSigningMethod(signingMethodES256.Alg(), func() jwt.SigningMethod {
		return signingMethodES256
	})
	// single-entry aud claims serialize as a plain string
	jwt.MarshalSingleStringAsArray = false
}

func (m *signingMethodP256) Alg() string {
	return m.alg
}

func (m *signingMethodP256) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(atcrypto.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != 2*m.keyLen {
		return jwt.ErrTokenSignatureInvalid
	}
	if err := pub.HashAndVerifyLenient([]byte(signingString), sig); err != nil {
		return fmt.Errorf("%w: %w", jwt.ErrTokenSignatureInvalid, err)
	}
	return nil
}

func (m *signingMethodP256) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(atcrypto.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return priv.HashAndSign([]byte(signingString))
}
