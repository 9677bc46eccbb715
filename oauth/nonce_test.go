package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonceStoreLifecycle(t *testing.T) {
	assert := assert.New(t)

	s := NewNonceStore("")
	assert.Equal("", s.Consume())
	assert.Equal("", s.Used())

	// first server announcement rotates
	assert.True(s.Observe("n1"))
	assert.Equal("n1", s.Received())
	assert.Equal("", s.Used(), "used slot lags until next proof")

	assert.Equal("n1", s.Consume())
	assert.Equal("n1", s.Used())

	// repeat announcement of the same nonce is not a rotation
	assert.False(s.Observe("n1"))
	assert.True(s.Observe("n2"))
	assert.Equal("n2", s.Consume())

	// empty header values are ignored
	assert.False(s.Observe(""))
	assert.Equal("n2", s.Received())
}

func TestNonceStoreSeeded(t *testing.T) {
	assert := assert.New(t)

	s := NewNonceStore("persisted")
	assert.Equal("persisted", s.Consume())
	assert.False(s.Observe("persisted"))
	assert.True(s.Observe("fresh"))
}
