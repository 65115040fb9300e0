// Package config loads client settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/redclient/internal/transport"
	"github.com/elmq0022/gohan/set"
)

var (
	ErrHostRequired    = errors.New("config: host required")
	ErrInvalidPort     = errors.New("config: port out of range")
	ErrInvalidCapacity = errors.New("config: queue capacity must be positive")
)

// Config is the resolved client configuration.
type Config struct {
	Host          string
	Port          int
	Transport     transport.Config
	Channels      []string
	QueueCapacity int
	AdminAddr     string
	LogLevel      string
}

func Default() Config {
	return Config{
		Host:          "127.0.0.1",
		Port:          6379,
		Transport:     transport.DefaultConfig(),
		Channels:      []string{},
		QueueCapacity: 64,
		LogLevel:      "info",
	}
}

type fileConfig struct {
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Timeouts struct {
		Connect string `toml:"connect"`
		Read    string `toml:"read"`
		Write   string `toml:"write"`
	} `toml:"timeouts"`
	TLS struct {
		Enabled            bool   `toml:"enabled"`
		Mutual             bool   `toml:"mutual"`
		CAFile             string `toml:"ca_file"`
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		ServerName         string `toml:"server_name"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`
	Limits struct {
		MaxLineBytes int `toml:"max_line_bytes"`
		MaxBulkBytes int `toml:"max_bulk_bytes"`
		MaxArrayLen  int `toml:"max_array_len"`
		MaxDepth     int `toml:"max_depth"`
	} `toml:"limits"`
	Subscriber struct {
		Channels      []string `toml:"channels"`
		QueueCapacity int      `toml:"queue_capacity"`
	} `toml:"subscriber"`
	Admin struct {
		Listen string `toml:"listen"`
	} `toml:"admin"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load reads path and applies every key it defines on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("server", "host") {
		cfg.Host = strings.TrimSpace(raw.Server.Host)
	}
	if meta.IsDefined("server", "port") {
		cfg.Port = raw.Server.Port
	}

	durations := []struct {
		key  string
		raw  string
		dest *time.Duration
	}{
		{"connect", raw.Timeouts.Connect, &cfg.Transport.ConnectTimeout},
		{"read", raw.Timeouts.Read, &cfg.Transport.ReadTimeout},
		{"write", raw.Timeouts.Write, &cfg.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("timeouts", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse timeouts.%s: %w", d.key, err)
		}
		*d.dest = v
	}

	if meta.IsDefined("tls") {
		cfg.Transport.TLS = transport.TLSConfig{
			Enabled:            raw.TLS.Enabled,
			Mutual:             raw.TLS.Mutual,
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
		}
	}

	applyLimit(meta, "max_line_bytes", raw.Limits.MaxLineBytes, &cfg.Transport.Limits.MaxLineBytes)
	applyLimit(meta, "max_bulk_bytes", raw.Limits.MaxBulkBytes, &cfg.Transport.Limits.MaxBulkBytes)
	applyLimit(meta, "max_array_len", raw.Limits.MaxArrayLen, &cfg.Transport.Limits.MaxArrayLen)
	applyLimit(meta, "max_depth", raw.Limits.MaxDepth, &cfg.Transport.Limits.MaxDepth)

	if meta.IsDefined("subscriber", "channels") {
		cfg.Channels = normalizeChannels(raw.Subscriber.Channels)
	}
	if meta.IsDefined("subscriber", "queue_capacity") {
		cfg.QueueCapacity = raw.Subscriber.QueueCapacity
	}
	if meta.IsDefined("admin", "listen") {
		cfg.AdminAddr = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}

	return cfg, nil
}

func applyLimit(meta toml.MetaData, key string, v int, dest *int) {
	if meta.IsDefined("limits", key) {
		*dest = v
	}
}

// Validate checks the fields a client needs before dialing.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostRequired
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, c.QueueCapacity)
	}
	l := c.Transport.Limits
	if l.MaxLineBytes < 0 || l.MaxBulkBytes < 0 || l.MaxArrayLen < 0 || l.MaxDepth < 0 {
		return fmt.Errorf("config: limits must not be negative: %+v", l)
	}
	return c.Transport.ValidateClientTransport()
}

// normalizeChannels trims, drops empty names and removes duplicates. The
// result is sorted.
func normalizeChannels(in []string) []string {
	seen := set.NewSet[string]()
	for _, ch := range in {
		if v := strings.TrimSpace(ch); v != "" {
			seen.Add(v)
		}
	}
	out := seen.Slice()
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out
}
