package main

import (
	"strings"

	"github.com/danmuck/redclient/internal/config"
)

// overrides holds command-line values that win over the config file. Zero
// values leave the file setting alone.
type overrides struct {
	host     string
	port     int
	channels string
	admin    string
	logLevel string
}

func resolveConfig(path string, o overrides) (config.Config, error) {
	cfg := config.Default()
	if p := strings.TrimSpace(path); p != "" {
		loaded, err := config.Load(p)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if h := strings.TrimSpace(o.host); h != "" {
		cfg.Host = h
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.channels != "" {
		cfg.Channels = splitChannels(o.channels)
	}
	if a := strings.TrimSpace(o.admin); a != "" {
		cfg.AdminAddr = a
	}
	if l := strings.TrimSpace(o.logLevel); l != "" {
		cfg.LogLevel = l
	}
	return cfg, cfg.Validate()
}

func splitChannels(raw string) []string {
	out := []string{}
	for _, ch := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(ch); v != "" {
			out = append(out, v)
		}
	}
	return out
}
