package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter config for kind: "subscriber" or "publisher".
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "subscriber", "subctl":
		return subscriberTemplate, nil
	case "publisher", "pubctl":
		return publisherTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const subscriberTemplate = `[server]
host = "127.0.0.1"
port = 6379

[timeouts]
connect = "5s"
write = "15s"

[subscriber]
channels = ["news"]
queue_capacity = 64

[admin]
listen = "127.0.0.1:7070"

[log]
level = "info"
`

const publisherTemplate = `[server]
host = "127.0.0.1"
port = 6379

[timeouts]
connect = "5s"
read = "5s"
write = "5s"

[log]
level = "info"
`
