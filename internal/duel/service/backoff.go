package service

import "time"

// computeBackoff doubles base for every retry and caps the result at max.
func computeBackoff(retry int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if max > 0 && base > max {
		return max
	}
	delay := base
	for i := 0; i < retry; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	return delay
}
