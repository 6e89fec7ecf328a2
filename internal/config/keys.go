package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Get returns the value at a dotted key such as "relay.port" or
// "provider.openrouter.api_key". Secrets come back masked.
func (c *Config) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "defaults":
		if len(parts) == 1 {
			return c.Defaults, true
		}
		switch parts[1] {
		case "models":
			return c.Defaults.Models, true
		case "system_prompt":
			return c.Defaults.SystemPrompt, true
		}

	case "relay":
		if len(parts) == 1 {
			return c.Relay, true
		}
		switch parts[1] {
		case "host":
			return c.Relay.Host, true
		case "port":
			return c.Relay.Port, true
		case "upstream_url":
			return c.Relay.UpstreamURL, true
		case "provider_name":
			return c.Relay.ProviderName, true
		case "timeout":
			return c.Relay.Timeout.String(), true
		case "referer":
			return c.Relay.Referer, true
		case "title":
			return c.Relay.Title, true
		}

	case "orchestrator":
		if len(parts) == 1 {
			return c.Orchestrator, true
		}
		switch parts[1] {
		case "flush_interval":
			return c.Orchestrator.FlushInterval.String(), true
		case "flush_bytes":
			return c.Orchestrator.FlushBytes, true
		case "relay_url":
			return c.Orchestrator.RelayURL, true
		}

	case "provider":
		if len(parts) == 1 {
			return c.Provider, true
		}
		p, ok := c.Provider[parts[1]]
		if !ok {
			return nil, false
		}
		if len(parts) == 2 {
			return p, true
		}
		switch parts[2] {
		case "api_key":
			return MaskToken(p.APIKey), true
		case "base_url":
			return p.BaseURL, true
		case "model":
			return p.Model, true
		}

	case "logging":
		if len(parts) == 1 {
			return c.Logging, true
		}
		switch parts[1] {
		case "level":
			return c.Logging.Level, true
		case "file":
			return c.Logging.File, true
		case "format":
			return c.Logging.Format, true
		}
	}

	return nil, false
}

// Set assigns value to a dotted key.
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "defaults":
		if len(parts) != 2 {
			return fmt.Errorf("invalid key: %s", key)
		}
		switch parts[1] {
		case "models":
			c.Defaults.Models = splitList(value)
		case "system_prompt":
			c.Defaults.SystemPrompt = value
		default:
			return fmt.Errorf("unknown key: %s", key)
		}

	case "relay":
		if len(parts) != 2 {
			return fmt.Errorf("invalid key: %s", key)
		}
		switch parts[1] {
		case "host":
			c.Relay.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", value, err)
			}
			c.Relay.Port = port
		case "upstream_url":
			c.Relay.UpstreamURL = value
		case "provider_name":
			c.Relay.ProviderName = value
		case "timeout":
			return setDuration(&c.Relay.Timeout, value)
		case "referer":
			c.Relay.Referer = value
		case "title":
			c.Relay.Title = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	case "orchestrator":
		if len(parts) != 2 {
			return fmt.Errorf("invalid key: %s", key)
		}
		switch parts[1] {
		case "flush_interval":
			return setDuration(&c.Orchestrator.FlushInterval, value)
		case "flush_bytes":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid flush_bytes %q", value)
			}
			c.Orchestrator.FlushBytes = n
		case "relay_url":
			c.Orchestrator.RelayURL = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	case "provider":
		if len(parts) != 3 {
			return fmt.Errorf("invalid key: %s (use provider.<name>.<field>)", key)
		}
		if c.Provider == nil {
			c.Provider = make(map[string]ProviderConfig)
		}
		p := c.Provider[parts[1]]
		switch parts[2] {
		case "api_key":
			p.APIKey = value
		case "base_url":
			p.BaseURL = value
		case "model":
			p.Model = value
		default:
			return fmt.Errorf("unknown field: %s", parts[2])
		}
		c.Provider[parts[1]] = p

	case "logging":
		if len(parts) != 2 {
			return fmt.Errorf("invalid key: %s", key)
		}
		switch parts[1] {
		case "level":
			c.Logging.Level = value
		case "file":
			c.Logging.File = value
		case "format":
			c.Logging.Format = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	default:
		return fmt.Errorf("unknown section: %s", parts[0])
	}

	return nil
}

func setDuration(d *Duration, value string) error {
	v, err := time.ParseDuration(value)
	if err != nil || v <= 0 {
		return fmt.Errorf("invalid duration %q", value)
	}
	d.Duration = v
	return nil
}

// MaskToken hides all but the edges of a secret.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
