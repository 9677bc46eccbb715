package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var handleResolution = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atproto_identity_resolve_handle",
	Help: "ATProto handle resolutions",
}, []string{"method", "status"})

var didResolution = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atproto_identity_resolve_did",
	Help: "ATProto DID resolutions",
}, []string{"method", "status"})
