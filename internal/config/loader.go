package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/streamlation/audiolink/pkg/wire"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(cfg.Server.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.url %q is invalid; want a ws:// or wss:// URL", cfg.Server.URL))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Connection
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"connection.connect_timeout", cfg.Connection.ConnectTimeout},
		{"connection.heartbeat_interval", cfg.Connection.HeartbeatInterval},
		{"connection.reconnect_delay", cfg.Connection.ReconnectDelay},
		{"connection.max_reconnect_delay", cfg.Connection.MaxReconnectDelay},
		{"connection.circuit_breaker.cooldown", cfg.Connection.CircuitBreaker.Cooldown},
		{"stream.flush_interval", cfg.Stream.FlushInterval},
		{"stream.connect_wait", cfg.Stream.ConnectWait},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if cfg.Connection.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("connection.max_reconnect_attempts must not be negative (0 = unlimited)"))
	}
	if cfg.Connection.CircuitBreaker.Threshold < 0 {
		errs = append(errs, errors.New("connection.circuit_breaker.threshold must not be negative"))
	}
	if cfg.Connection.MaxReconnectDelay > 0 && cfg.Connection.ReconnectDelay > cfg.Connection.MaxReconnectDelay {
		errs = append(errs, errors.New("connection.reconnect_delay must not exceed connection.max_reconnect_delay"))
	}

	// Queue
	if cfg.Queue.MaxSize < 0 {
		errs = append(errs, errors.New("queue.max_size must not be negative"))
	}

	// Stream
	if cfg.Stream.SampleRate < 0 {
		errs = append(errs, errors.New("stream.sample_rate must not be negative"))
	}
	if cfg.Stream.MaxBufferBytes < 0 {
		errs = append(errs, errors.New("stream.max_buffer_bytes must not be negative"))
	}
	if cfg.Stream.TargetLanguage != "" && !wire.ValidLanguageCode(cfg.Stream.TargetLanguage) {
		errs = append(errs, fmt.Errorf("stream.target_language %q is invalid; want a two-letter lowercase code", cfg.Stream.TargetLanguage))
	}

	return errors.Join(errs...)
}
