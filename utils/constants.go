package utils

import (
	"time"
)

// Request context keys set by the HTTP layer and read by flows and logging.
const (
	RequestIDKey  = "X-Request-ID"
	UserAgentKey  = "User-Agent"
	IPAddressKey  = "IP-Address"
	EndpointKey   = "Endpoint"
	TimeoutKey    = "Timeout"
	CancelFuncKey = "CancelFunc"
)

// Merge engine constants
const (
	// DefaultSuggestionTTL is how long a suggestion stays live when the
	// producer does not specify a TTL (24 hours)
	DefaultSuggestionTTL = 24 * time.Hour

	// DefaultPendingTake is the pending-list page size when the caller does
	// not specify one or specifies one out of range
	DefaultPendingTake = 50

	// MaxPendingTake is the largest accepted pending-list page size
	MaxPendingTake = 500

	// MaxResolveBatchSize is the largest accepted batch for id resolution
	MaxResolveBatchSize = 1000
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
