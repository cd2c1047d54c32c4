// Package config loads memlock settings from a YAML file and MEMLOCK_*
// environment variables.
//
//	backend: memcache
//	namespace: billing
//	timeout: 2s
//	servers:
//	  primary:
//	    host: 10.0.0.1
//	    port: 11211
//	    weight: 2
//	  local:
//	    socket: /run/memcached.sock
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/unkn0wn-root/memlock"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemcache = "memcache"
	BackendRedis    = "redis"
	BackendLocal    = "local"
)

type Config struct {
	Backend        string  `yaml:"backend"`
	Debug          bool    `yaml:"debug"`
	MaxKeyLength   int     `yaml:"max_key_length"`
	MaxValueLength int     `yaml:"max_value_length"`
	DeadRetry      Seconds `yaml:"dead_retry"`
	CheckKeys      bool    `yaml:"check_keys"`
	Timeout        Seconds `yaml:"timeout"`
	Namespace      string  `yaml:"namespace"`

	Servers Servers     `yaml:"servers"`
	Redis   RedisConfig `yaml:"redis"`
	Local   LocalConfig `yaml:"local"`
	Log     LogConfig   `yaml:"log"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LocalConfig struct {
	MaxItemSize   int     `yaml:"max_item_size"`
	SweepInterval Seconds `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendMemcache,
		Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional), then applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend and, for memcache, resolves the server list.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemcache:
		if _, err := memlock.ResolveServers(c.Servers.Specs()); err != nil {
			return err
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return &memlock.ConfigError{Field: "redis.addr", Reason: "required for the redis backend"}
		}
	case BackendLocal:
	default:
		return &memlock.ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return &memlock.ConfigError{Field: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}
