package transport

import (
	"time"

	"github.com/danmuck/redclient/internal/protocol/resp"
)

// TLSConfig configures an optional TLS layer on dialed connections.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines connection timeouts and decode limits. Zero timeouts mean
// no bound beyond the caller's context.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Limits         resp.Limits
	TLS            TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   15 * time.Second,
		Limits:         resp.DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.Limits == (resp.Limits{}) {
		c.Limits = def.Limits
	}
	return c
}
