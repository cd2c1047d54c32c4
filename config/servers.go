package config

import (
	"fmt"

	"github.com/unkn0wn-root/memlock"
	"gopkg.in/yaml.v3"
)

type ServerEntry struct {
	Name   string `yaml:"-"`
	URI    string `yaml:"uri"`
	Socket string `yaml:"socket"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Weight int    `yaml:"weight"`
}

// Servers keeps the named sub-sections of "servers:" in file order, which
// decides server order and therefore key placement.
type Servers []ServerEntry

func (s *Servers) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		out := make(Servers, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var e ServerEntry
			if err := n.Content[i+1].Decode(&e); err != nil {
				return fmt.Errorf("servers.%s: %w", n.Content[i].Value, err)
			}
			e.Name = n.Content[i].Value
			out = append(out, e)
		}
		*s = out
	case yaml.SequenceNode:
		// "- 10.0.0.1:11211" shorthand.
		out := make(Servers, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: server list entries must be addresses", c.Line)
			}
			e, err := parseServer(c.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", c.Line, err)
			}
			out = append(out, e)
		}
		*s = out
	default:
		return fmt.Errorf("line %d: servers must be a mapping or a list", n.Line)
	}
	return nil
}

// Specs converts the entries for memlock.Options. A missing host or port
// takes its default; socket and uri still override both.
func (s Servers) Specs() []memlock.ServerSpec {
	if len(s) == 0 {
		return nil
	}
	out := make([]memlock.ServerSpec, len(s))
	for i, e := range s {
		out[i] = memlock.ServerSpec{
			Name:   e.Name,
			URI:    e.URI,
			Socket: e.Socket,
			Host:   e.Host,
			Port:   e.Port,
			Weight: e.Weight,
		}
		if out[i].Host == "" {
			out[i].Host = memlock.DefaultHost
		}
		if out[i].Port == 0 {
			out[i].Port = memlock.DefaultPort
		}
	}
	return out
}
