package transport

import "time"

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultBreakerThreshold  = 3
	defaultBreakerCooldown   = 30 * time.Second

	// heartbeatWriteTimeout bounds a single keepalive write.
	heartbeatWriteTimeout = 5 * time.Second
)

// Option is a functional option for configuring a [Manager].
type Option func(*Manager)

// WithConnectTimeout bounds how long a single connection attempt may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithHeartbeatInterval sets the keepalive interval used while connected.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// WithMaxReconnectAttempts caps automatic reconnect attempts. 0 means
// unlimited.
func WithMaxReconnectAttempts(n int) Option {
	return func(m *Manager) { m.maxReconnectAttempts = n }
}

// WithReconnectDelay sets the base backoff delay for the first reconnect
// attempt. Subsequent attempts grow by a factor of 1.5 per attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.reconnectDelay = d }
}

// WithMaxReconnectDelay caps the backoff delay.
func WithMaxReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.maxReconnectDelay = d }
}

// WithAutoReconnect enables or disables automatic reconnection. Default: on.
// May also be toggled at runtime via [Manager.SetAutoReconnect].
func WithAutoReconnect(enabled bool) Option {
	return func(m *Manager) { m.autoReconnect = enabled }
}

// WithCircuitBreaker tunes the circuit breaker: the circuit opens after
// threshold consecutive failed attempts and stays open for cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(m *Manager) {
		m.breaker.threshold = threshold
		m.breaker.cooldown = cooldown
	}
}

// WithDialer substitutes the dialer that opens connections. Primarily used
// in tests to inject a scripted transport.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}
