package telegram

import "time"

const (
	// maxFloodWait caps how long a provider-supplied wait hint is honored.
	maxFloodWait = 300 * time.Second
	// maxBackoff caps the exponential delay between transient retries.
	maxBackoff = 64 * time.Second
)

// NextDelay returns how long to sleep before the retry following a failed
// attempt (zero-based). A positive provider hint (flood wait) overrides the
// exponential schedule and is capped at maxFloodWait; otherwise the delay is
// 2^attempt seconds, capped at maxBackoff.
func NextDelay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if hint > maxFloodWait {
			return maxFloodWait
		}
		return hint
	}
	if attempt < 0 {
		attempt = 0
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
