package memlock

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/memlock/store"
)

// ServerSpec is one configured backend.
//
// Host+Port is the baseline address, Socket overrides it and a URI with a
// memcache scheme overrides both. A URI with any other scheme is ignored.
type ServerSpec struct {
	Name   string
	URI    string // memcache://host:port or memcached://host:port
	Socket string // unix socket path
	Host   string
	Port   int
	Weight int // <= 0 => 1
}

// Server is a resolved backend. Addr is "host:port" or "unix:<path>".
type Server = store.Server

var cacheSchemes = map[string]bool{"memcache": true, "memcached": true}

// ResolveServers turns specs into one Server per spec, in declaration order.
// With no specs it returns the single default server 127.0.0.1:11211.
// A spec that yields no address, or an address already used by an earlier
// spec, is a *ConfigError.
func ResolveServers(specs []ServerSpec) ([]Server, error) {
	if len(specs) == 0 {
		specs = []ServerSpec{{Host: DefaultHost, Port: DefaultPort, Weight: DefaultWeight}}
	}
	out := make([]Server, 0, len(specs))
	seen := make(map[string]string, len(specs))
	for i, sp := range specs {
		name := coalesce(sp.Name, strconv.Itoa(i))
		addr, err := resolveAddr(name, sp)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[addr]; dup {
			return nil, &ConfigError{Server: name, Reason: "address " + addr + " already used by server " + strconv.Quote(prev)}
		}
		seen[addr] = name
		out = append(out, Server{Name: name, Addr: addr, Weight: max(sp.Weight, DefaultWeight)})
	}
	return out, nil
}

// ResolveAddresses is ResolveServers without names and weights.
func ResolveAddresses(specs []ServerSpec) ([]string, error) {
	servers, err := ResolveServers(specs)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(servers))
	for i, s := range servers {
		addrs[i] = s.Addr
	}
	return addrs, nil
}

func resolveAddr(name string, sp ServerSpec) (string, error) {
	var addr string

	if sp.Host != "" || sp.Port != 0 {
		if sp.Host != "" && sp.Port != 0 {
			if err := checkPort(name, "port", sp.Port); err != nil {
				return "", err
			}
			addr = net.JoinHostPort(sp.Host, strconv.Itoa(sp.Port))
		} else if sp.Socket == "" && sp.URI == "" {
			return "", &ConfigError{Server: name, Field: "host/port", Reason: "host and port must be set together"}
		}
	}

	if sp.Socket != "" {
		addr = "unix:" + sp.Socket
	}

	if sp.URI != "" {
		u, err := url.Parse(sp.URI)
		if err != nil {
			return "", &ConfigError{Server: name, Field: "uri", Reason: err.Error()}
		}
		if cacheSchemes[strings.ToLower(u.Scheme)] {
			port := DefaultPort
			if p := u.Port(); p != "" {
				if port, err = strconv.Atoi(p); err != nil {
					return "", &ConfigError{Server: name, Field: "uri", Reason: "bad port " + strconv.Quote(p)}
				}
				if err := checkPort(name, "uri", port); err != nil {
					return "", err
				}
			}
			addr = net.JoinHostPort(coalesce(u.Hostname(), DefaultHost), strconv.Itoa(port))
		}
	}

	if addr == "" {
		return "", &ConfigError{Server: name, Reason: "no host/port, socket or memcache:// uri"}
	}
	return addr, nil
}

func checkPort(name, field string, port int) error {
	if port < 1 || port > 65535 {
		return &ConfigError{Server: name, Field: field, Reason: "port " + strconv.Itoa(port) + " out of range"}
	}
	return nil
}
