package ports

// RateLimiter applies sliding-window admission control per caller
// identifier.
type RateLimiter interface {
	// Allow prunes expired timestamps for id, then admits and records the
	// request only if capacity remains.
	Allow(id string) bool
	// Remaining reports capacity left for id without mutating state.
	Remaining(id string) int
	Reset(id string)
	Close()
}
