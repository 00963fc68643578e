// Package config provides the configuration schema, loader, and file
// watcher for the audiolink streaming client.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamlation/audiolink/pkg/transport"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. An empty or invalid level
// maps to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration wraps [time.Duration] so YAML configs can use values like "10s"
// or "1500ms".
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for audiolink. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Queue      QueueConfig      `yaml:"queue"`
	Stream     StreamConfig     `yaml:"stream"`
}

// ServerConfig holds the endpoint and operational settings.
type ServerConfig struct {
	// URL is the ws:// or wss:// streaming endpoint. Required.
	URL string `yaml:"url"`

	// LogLevel selects log verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the listen address for the /metrics and /healthz
	// endpoints. Empty disables the diagnostics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ConnectionConfig tunes the resilience engine. Zero values select the
// transport package defaults.
type ConnectionConfig struct {
	ConnectTimeout       Duration `yaml:"connect_timeout"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval"`
	ReconnectDelay       Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay    Duration `yaml:"max_reconnect_delay"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`

	// AutoReconnect enables automatic reconnection. Defaults to true; set
	// explicitly to false to disable.
	AutoReconnect *bool `yaml:"auto_reconnect"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes reconnection suppression after consecutive
// failures.
type CircuitBreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold int `yaml:"threshold"`

	// Cooldown is how long the circuit stays open.
	Cooldown Duration `yaml:"cooldown"`
}

// QueueConfig bounds the outbound message queue.
type QueueConfig struct {
	// MaxSize is the maximum number of queued messages. Zero selects the
	// queue package default.
	MaxSize int `yaml:"max_size"`
}

// StreamConfig tunes the audio streaming bridge.
type StreamConfig struct {
	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// BinaryMode selects the binary envelope wire format instead of
	// JSON/base64.
	BinaryMode bool `yaml:"binary_mode"`

	// MaxBufferBytes is the PCM byte count that triggers an immediate flush.
	MaxBufferBytes int `yaml:"max_buffer_bytes"`

	// FlushInterval is the longest buffered audio may wait before a timed
	// flush.
	FlushInterval Duration `yaml:"flush_interval"`

	// ConnectWait bounds how long a flush waits for the connection before
	// abandoning its audio.
	ConnectWait Duration `yaml:"connect_wait"`

	// TargetLanguage is the two-letter translation target requested after
	// connecting. Empty keeps the server default.
	TargetLanguage string `yaml:"target_language"`
}

// TransportOptions converts the connection settings into transport options,
// skipping zero values so library defaults apply.
func (c ConnectionConfig) TransportOptions() []transport.Option {
	var opts []transport.Option
	if c.ConnectTimeout > 0 {
		opts = append(opts, transport.WithConnectTimeout(c.ConnectTimeout.Std()))
	}
	if c.HeartbeatInterval > 0 {
		opts = append(opts, transport.WithHeartbeatInterval(c.HeartbeatInterval.Std()))
	}
	if c.ReconnectDelay > 0 {
		opts = append(opts, transport.WithReconnectDelay(c.ReconnectDelay.Std()))
	}
	if c.MaxReconnectDelay > 0 {
		opts = append(opts, transport.WithMaxReconnectDelay(c.MaxReconnectDelay.Std()))
	}
	if c.MaxReconnectAttempts > 0 {
		opts = append(opts, transport.WithMaxReconnectAttempts(c.MaxReconnectAttempts))
	}
	if c.AutoReconnect != nil {
		opts = append(opts, transport.WithAutoReconnect(*c.AutoReconnect))
	}
	if c.CircuitBreaker.Threshold > 0 && c.CircuitBreaker.Cooldown > 0 {
		opts = append(opts, transport.WithCircuitBreaker(c.CircuitBreaker.Threshold, c.CircuitBreaker.Cooldown.Std()))
	}
	return opts
}
