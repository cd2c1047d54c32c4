package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/memlock"
)

const envPrefix = "MEMLOCK_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides file values with MEMLOCK_* variables. MEMLOCK_SERVERS
// is a comma-separated address list and replaces the whole servers section.
// Durations accept bare seconds or Go duration strings.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []string
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = b
		}
	}
	setSeconds := func(name string, dst *Seconds) {
		if v, ok := get(name); ok {
			d, err := parseSeconds(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = d
		}
	}

	setString("BACKEND", &c.Backend)
	setBool("DEBUG", &c.Debug)
	setInt("MAX_KEY_LENGTH", &c.MaxKeyLength)
	setInt("MAX_VALUE_LENGTH", &c.MaxValueLength)
	setSeconds("DEAD_RETRY", &c.DeadRetry)
	setBool("CHECK_KEYS", &c.CheckKeys)
	setSeconds("TIMEOUT", &c.Timeout)
	setString("NAMESPACE", &c.Namespace)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setInt("REDIS_DB", &c.Redis.DB)
	setInt("LOCAL_MAX_ITEM_SIZE", &c.Local.MaxItemSize)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if v, ok := get("SERVERS"); ok {
		servers, err := parseServerList(v)
		if err != nil {
			return &memlock.ConfigError{Field: envPrefix + "SERVERS", Reason: err.Error()}
		}
		c.Servers = servers
	}
	if len(errs) > 0 {
		return &memlock.ConfigError{Field: strings.Join(errs, ","), Reason: "invalid value"}
	}
	return nil
}

func parseServerList(v string) (Servers, error) {
	var out Servers
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		e, err := parseServer(part)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseServer accepts "unix:/path", a memcache:// URI or host:port.
func parseServer(s string) (ServerEntry, error) {
	switch {
	case strings.HasPrefix(s, "unix:"):
		return ServerEntry{Socket: strings.TrimPrefix(s, "unix:")}, nil
	case strings.Contains(s, "://"):
		return ServerEntry{URI: s}, nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return ServerEntry{}, fmt.Errorf("bad server address %q: %w", s, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return ServerEntry{}, fmt.Errorf("bad port in %q", s)
	}
	return ServerEntry{Host: host, Port: p}, nil
}
