// Package config loads the settings shared by the reader, simulator and tap.
//
// Files are YAML (.yaml, .yml) or TOML (.toml). Durations are kept as strings
// in the file and parsed by Validate. Environment overrides are applied on
// top of the file, and command line flags on top of both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

type Config struct {
	Relay  RelayConfig  `yaml:"relay" toml:"relay"`
	Reader ReaderConfig `yaml:"reader" toml:"reader"`
	Feed   FeedConfig   `yaml:"feed" toml:"feed"`
	Sim    SimConfig    `yaml:"sim" toml:"sim"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

type RelayConfig struct {
	Address     string `yaml:"address" toml:"address"`
	Port        int    `yaml:"port" toml:"port"`
	EveryN      uint32 `yaml:"every_n" toml:"every_n"`
	CallTimeout string `yaml:"call_timeout" toml:"call_timeout"`
}

type ReaderConfig struct {
	Node      string   `yaml:"node" toml:"node"`
	Types     []string `yaml:"types" toml:"types"`
	SinkPoll  string   `yaml:"sink_poll" toml:"sink_poll"`
	Backoff   string   `yaml:"backoff" toml:"backoff"`
	Threshold string   `yaml:"threshold" toml:"threshold"`
}

type FeedConfig struct {
	HTTPAddr   string `yaml:"http_addr" toml:"http_addr"`
	SocketAddr string `yaml:"socket_addr" toml:"socket_addr"`
	Interval   string `yaml:"interval" toml:"interval"`
	// Print writes readings to stdout. It counts as a consumer on its own.
	Print bool `yaml:"print" toml:"print"`
}

type SimConfig struct {
	Nodes         []string `yaml:"nodes" toml:"nodes"`
	FlushInterval string   `yaml:"flush_interval" toml:"flush_interval"`
	// FlapUp and FlapDown enable state flapping when both are set.
	FlapUp   string `yaml:"flap_up" toml:"flap_up"`
	FlapDown string `yaml:"flap_down" toml:"flap_down"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

func Default() Config {
	return Config{
		Relay: RelayConfig{
			Address:     "localhost",
			CallTimeout: "2s",
		},
		Reader: ReaderConfig{
			Node:      "sdk",
			Types:     []string{packet.TypeLoadCellTpdo1.Name},
			SinkPoll:  "10ms",
			Backoff:   "100ms",
			Threshold: "500ms",
		},
		Feed: FeedConfig{
			HTTPAddr: "127.0.0.1:8765",
			Interval: "50ms",
		},
		Sim: SimConfig{
			Nodes:         []string{"load_cell?node=sdk&wave=sine", "chatter?node=brain&period=5ms"},
			FlushInterval: "5ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
// The result is not validated; call ApplyEnv and Validate afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LOADCELL_ADDRESS, LOADCELL_CANBUS_PORT,
// LOADCELL_NODE, LOADCELL_STREAM_EVERY_N, LOG_LEVEL and LOG_FORMAT.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		return v, ok && v != ""
	}

	if v, ok := get("LOADCELL_ADDRESS"); ok {
		c.Relay.Address = v
	}
	if v, ok := get("LOADCELL_CANBUS_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOADCELL_CANBUS_PORT: %w", err)
		}
		c.Relay.Port = p
	}
	if v, ok := get("LOADCELL_NODE"); ok {
		c.Reader.Node = v
	}
	if v, ok := get("LOADCELL_STREAM_EVERY_N"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("LOADCELL_STREAM_EVERY_N: %w", err)
		}
		c.Relay.EveryN = uint32(n)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Relay.Address == "" {
		return fmt.Errorf("relay.address is required")
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port is required and must be in 1..65535, got %d", c.Relay.Port)
	}
	if _, err := c.NodeID(); err != nil {
		return fmt.Errorf("reader.node: %w", err)
	}
	if _, err := c.PacketTypes(); err != nil {
		return err
	}
	if c.Feed.HTTPAddr == "" && c.Feed.SocketAddr == "" && !c.Feed.Print {
		return fmt.Errorf("feed needs http_addr, socket_addr or print")
	}

	durations := []struct {
		name     string
		value    string
		optional bool
	}{
		{"relay.call_timeout", c.Relay.CallTimeout, false},
		{"reader.sink_poll", c.Reader.SinkPoll, false},
		{"reader.backoff", c.Reader.Backoff, false},
		{"reader.threshold", c.Reader.Threshold, false},
		{"feed.interval", c.Feed.Interval, false},
		{"sim.flush_interval", c.Sim.FlushInterval, false},
		{"sim.flap_up", c.Sim.FlapUp, true},
		{"sim.flap_down", c.Sim.FlapDown, true},
	}
	for _, d := range durations {
		if d.optional && d.value == "" {
			continue
		}
		if _, err := parsePositive(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if (c.Sim.FlapUp == "") != (c.Sim.FlapDown == "") {
		return fmt.Errorf("sim.flap_up and sim.flap_down must be set together")
	}
	return nil
}

// NodeID resolves Reader.Node.
func (c *Config) NodeID() (uint32, error) {
	return domain.ParseNode(c.Reader.Node)
}

// PacketTypes resolves Reader.Types against the packet registry.
func (c *Config) PacketTypes() ([]packet.Type, error) {
	if len(c.Reader.Types) == 0 {
		return nil, fmt.Errorf("reader.types is empty")
	}
	out := make([]packet.Type, 0, len(c.Reader.Types))
	for _, name := range c.Reader.Types {
		t, ok := packet.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("reader.types: unknown packet type %q (known: %s)", name, strings.Join(packet.Names(), ", "))
		}
		out = append(out, t)
	}
	return out, nil
}

// Duration accessors. They assume Validate succeeded and return zero for an
// unparsable or empty value.

func (r RelayConfig) CallTimeoutDuration() time.Duration { return mustDuration(r.CallTimeout) }
func (r ReaderConfig) SinkPollDuration() time.Duration   { return mustDuration(r.SinkPoll) }
func (r ReaderConfig) BackoffDuration() time.Duration    { return mustDuration(r.Backoff) }
func (r ReaderConfig) ThresholdDuration() time.Duration  { return mustDuration(r.Threshold) }
func (f FeedConfig) IntervalDuration() time.Duration     { return mustDuration(f.Interval) }
func (s SimConfig) FlushIntervalDuration() time.Duration { return mustDuration(s.FlushInterval) }

// Flap returns the flap windows and whether flapping is enabled.
func (s SimConfig) Flap() (up, down time.Duration, ok bool) {
	up, down = mustDuration(s.FlapUp), mustDuration(s.FlapDown)
	return up, down, up > 0 && down > 0
}

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func mustDuration(s string) time.Duration {
	d, err := parsePositive(s)
	if err != nil {
		return 0
	}
	return d
}
