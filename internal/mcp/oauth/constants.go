package oauth

import "time"

// Token and cache timeouts
const (
	// DefaultCleanupInterval is how often to cleanup expired cached tokens (1 minute)
	DefaultCleanupInterval = 1 * time.Minute

	// DefaultRateLimitCleanupInterval is how often to cleanup inactive rate limiters
	DefaultRateLimitCleanupInterval = 5 * time.Minute

	// InactiveLimiterCleanupWindow is the time after which inactive limiters are removed
	InactiveLimiterCleanupWindow = 10 * time.Minute

	// JWKSRefreshInterval is how long fetched signing keys are reused before
	// the key set is fetched again
	JWKSRefreshInterval = 1 * time.Hour

	// ClockSkewGrace is the leeway applied when validating token expiration,
	// covering typical NTP drift between this server and the issuer
	ClockSkewGrace = 5 * time.Second
)

// Rate limit defaults
const (
	// DefaultRateLimitRate is the default requests per second per IP
	DefaultRateLimitRate = 10

	// DefaultRateLimitBurst is the default burst size for rate limiting
	DefaultRateLimitBurst = 20
)
