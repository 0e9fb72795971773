package workflow

// ShouldRetry reports whether another Plan round trip is allowed after a
// structured execution failure. Bounded retries absorb transient or
// malformed-query failures without risking an unbounded loop; past the
// cap the router degrades to semantic fallback instead.
func ShouldRetry(attemptCount, maxRetries int) bool {
	return attemptCount < maxRetries
}
