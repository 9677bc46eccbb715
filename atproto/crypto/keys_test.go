package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBasics(t *testing.T) {
	assert := assert.New(t)

	// try signing/verifying a couple different message sizes. these all just get hashed.
	msg := []byte("test-message")
	midMsg := make([]byte, 13*1024)
	_, err := rand.Read(midMsg)
	assert.NoError(err)

	priv, err := GeneratePrivateKeyP256()
	require.NoError(t, err)

	// private key bytes round-trip
	privBytes := priv.Bytes()
	assert.Equal(32, len(privBytes))
	privFromBytes, err := ParsePrivateBytesP256(privBytes)
	assert.NoError(err)
	assert.True(priv.Equal(privFromBytes))

	pub, err := priv.PublicKey()
	require.NoError(t, err)

	sig, err := priv.HashAndSign(msg)
	assert.NoError(err)
	assert.NoError(pub.HashAndVerify(msg, sig))
	assert.NoError(pub.HashAndVerifyLenient(msg, sig))

	midSig, err := priv.HashAndSign(midMsg)
	assert.NoError(err)
	assert.NoError(pub.HashAndVerify(midMsg, midSig))

	// tampered content must not verify
	assert.ErrorIs(pub.HashAndVerify([]byte("other-message"), sig), ErrInvalidSignature)

	// compressed public key size
	assert.Equal(33, len(pub.Bytes()))
}

func TestMultibaseRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := GeneratePrivateKeyP256()
	assert.NoError(err)

	enc := priv.Multibase()
	assert.Equal(uint8('z'), enc[0])
	privParsed, err := ParsePrivateMultibase(enc)
	assert.NoError(err)
	assert.True(priv.Equal(privParsed))

	pub, err := priv.PublicKey()
	assert.NoError(err)
	pubParsed, err := ParsePublicMultibase(pub.Multibase())
	assert.NoError(err)
	assert.True(pub.Equal(pubParsed))

	_, err = ParsePrivateMultibase("not-multibase")
	assert.Error(err)
	_, err = ParsePrivateMultibase(pub.Multibase())
	assert.Error(err)
}

func TestJWKRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := GeneratePrivateKeyP256()
	assert.NoError(err)
	pub, err := priv.PublicKey()
	assert.NoError(err)

	jwk, err := pub.JWK()
	assert.NoError(err)
	assert.Equal("EC", jwk.KeyType)
	assert.Equal("P-256", jwk.Curve)
	assert.Empty(jwk.Use)
	assert.Nil(jwk.KeyID)

	pubParsed, err := ParsePublicJWK(*jwk)
	assert.NoError(err)
	assert.True(pub.Equal(pubParsed))

	msg := []byte("jwk-round-trip")
	sig, err := priv.HashAndSign(msg)
	assert.NoError(err)
	assert.NoError(pubParsed.HashAndVerify(msg, sig))
}

// a large number of sign/verify cycles, to try and hit any bad high-S signatures
func TestLowSMany(t *testing.T) {
	assert := assert.New(t)

	msg := make([]byte, 1024)
	for i := 0; i < 128; i++ {
		priv, err := GeneratePrivateKeyP256()
		assert.NoError(err)
		pub, err := priv.PublicKey()
		assert.NoError(err)

		_, err = rand.Read(msg)
		assert.NoError(err)

		sig, err := priv.HashAndSign(msg)
		assert.NoError(err)
		err = pub.HashAndVerify(msg, sig)
		assert.NoError(err)
		// bail out early instead of looping
		if err != nil {
			break
		}
	}
}
