package api

import (
	"fmt"
	"os"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port              int
	CorpusDir         string        // Directory session and render paths resolve against
	RateLimitRequests int           // Requests per minute (0 = disabled)
	RateLimitBurst    int           // Burst size
	SessionIdle       time.Duration // Idle time before a session is dropped (0 = never)
	MaxSessions       int           // Open session cap (0 = unlimited)
	AllowedOrigins    []string      // CORS and websocket origins (empty = allow all)
	Auth              AuthConfig
	TLS               TLSConfig
	WebSocket         WebSocketConfig
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// WebSocketConfig limits caret traffic per connection.
type WebSocketConfig struct {
	MaxMessageRate int   // Messages per second per client
	MaxMessageSize int64 // Bytes per message
}

// DefaultConfig returns the configuration used by "teisync serve".
func DefaultConfig() Config {
	return Config{
		Port:        8080,
		CorpusDir:   ".",
		SessionIdle: 30 * time.Minute,
		MaxSessions: 256,
		WebSocket: WebSocketConfig{
			MaxMessageRate: 30,
			MaxMessageSize: 4096,
		},
	}
}

// Validate checks the configuration before the server starts.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := ValidateAuthConfig(c.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	info, err := os.Stat(c.CorpusDir)
	if err != nil {
		return fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus directory %s is not a directory", c.CorpusDir)
	}
	return nil
}
