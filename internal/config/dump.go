package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

type dumpConfig struct {
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
		CAFile             string `toml:"ca_file,omitempty"`
		CertFile           string `toml:"cert_file,omitempty"`
		KeyFile            string `toml:"key_file,omitempty"`
		ServerName         string `toml:"server_name,omitempty"`
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
		Listen string `toml:"listen,omitempty"`
	} `toml:"admin"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Dump renders c as TOML that Load reads back to the same Config.
func Dump(c Config) ([]byte, error) {
	var out dumpConfig
	out.Server.Host = c.Host
	out.Server.Port = c.Port
	out.Timeouts.Connect = c.Transport.ConnectTimeout.String()
	out.Timeouts.Read = c.Transport.ReadTimeout.String()
	out.Timeouts.Write = c.Transport.WriteTimeout.String()

	tls := c.Transport.TLS
	out.TLS.Enabled = tls.Enabled
	out.TLS.Mutual = tls.Mutual
	out.TLS.CAFile = tls.CAFile
	out.TLS.CertFile = tls.CertFile
	out.TLS.KeyFile = tls.KeyFile
	out.TLS.ServerName = tls.ServerName
	out.TLS.InsecureSkipVerify = tls.InsecureSkipVerify

	l := c.Transport.Limits
	out.Limits.MaxLineBytes = l.MaxLineBytes
	out.Limits.MaxBulkBytes = l.MaxBulkBytes
	out.Limits.MaxArrayLen = l.MaxArrayLen
	out.Limits.MaxDepth = l.MaxDepth

	out.Subscriber.Channels = c.Channels
	if out.Subscriber.Channels == nil {
		out.Subscriber.Channels = []string{}
	}
	out.Subscriber.QueueCapacity = c.QueueCapacity
	out.Admin.Listen = c.AdminAddr
	out.Log.Level = c.LogLevel

	data, err := toml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("dump config: %w", err)
	}
	return data, nil
}
