// Package config loads per-instance cache settings from YAML.
//
// The file maps instance names to their tuning knobs, plus a listen address
// for the Prometheus endpoint when the embedding application serves one:
//
//	metrics_addr: ":9090"
//	instances:
//	  address_sum:
//	    ttl: 1h
//	    sweep_interval: 1m
//	    refresh_timeout: 30s
//	  gas_usage:
//	    ttl: 10m
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/refreshcache/cache"
)

// Duration parses YAML scalars either as Go duration strings ("90s", "1h")
// or as bare integers, which are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
// yaml.v3 happily decodes an integer scalar into a string, so the dispatch
// must go by the node tag, not by which Decode succeeds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("config: bad duration %q: %w", node.Value, err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string or integer seconds, got %q", node.Value)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Instance is the tunable surface of one cache instance.
// Zero values keep the cache defaults (infinite TTL, no sweep, default
// refresh deadline, auto shard count).
type Instance struct {
	TTL            Duration `yaml:"ttl"`
	SweepInterval  Duration `yaml:"sweep_interval"`
	RefreshTimeout Duration `yaml:"refresh_timeout"`
	Shards         int      `yaml:"shards"`
}

// File is the top-level configuration document.
type File struct {
	MetricsAddr string              `yaml:"metrics_addr"`
	Instances   map[string]Instance `yaml:"instances"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Parse parses a YAML document and validates it.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for name, in := range f.Instances {
		if in.TTL < 0 || in.SweepInterval < 0 || in.RefreshTimeout < 0 {
			return nil, fmt.Errorf("instance %q: durations must not be negative", name)
		}
		if in.Shards < 0 {
			return nil, fmt.Errorf("instance %q: shards must not be negative", name)
		}
	}
	return &f, nil
}

// Lookup returns the settings for name, falling back to the zero Instance
// (cache defaults) when the file does not mention it.
func (f *File) Lookup(name string) Instance {
	if f == nil {
		return Instance{}
	}
	return f.Instances[name]
}

// Apply copies the instance settings onto opt, leaving the rest of the
// options (keys, fallback, merge, metrics) to the caller.
func Apply[K comparable, V any](in Instance, opt *cache.Options[K, V]) {
	opt.TTL = time.Duration(in.TTL)
	opt.SweepInterval = time.Duration(in.SweepInterval)
	opt.RefreshTimeout = time.Duration(in.RefreshTimeout)
	opt.Shards = in.Shards
}
