package transport

import "time"

// breaker suppresses reconnection after repeated consecutive failures so an
// unreachable endpoint is not hammered. Not safe for concurrent use on its
// own; the Manager guards it with its mutex.
type breaker struct {
	threshold int
	cooldown  time.Duration

	failures int
	open     bool
	openedAt time.Time
}

// recordFailure counts one failed connection attempt and reports whether
// this failure opened the circuit.
func (b *breaker) recordFailure(now time.Time) (opened bool) {
	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openedAt = now
		return true
	}
	return false
}

// recordSuccess resets the failure streak and closes the circuit.
func (b *breaker) recordSuccess() {
	b.failures = 0
	b.open = false
}

// close force-closes the circuit without clearing the failure streak's
// history of having tripped; the streak restarts from zero.
func (b *breaker) close() {
	b.open = false
	b.failures = 0
}

// isOpen reports whether the circuit is still open at the given time. A
// circuit whose cooldown has elapsed counts as closed even if no timer has
// cleared it yet (the cooldown timer may have been cancelled by a disconnect).
func (b *breaker) isOpen(now time.Time) bool {
	if !b.open {
		return false
	}
	if now.Sub(b.openedAt) >= b.cooldown {
		b.close()
		return false
	}
	return true
}
