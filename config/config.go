// Package config loads the TOML file shared by the bridge and the peer.
//
//	[bridge]     plugin identity, id source, inbound parsing and rate limits
//	[transport]  peer address, timeouts, reconnect backoff
//	[discovery]  static address or etcd service lookup
//	[log]        level, format, optional rotating file
//	[peer]       listen addresses and history depth of madigan-peer
//
// Every key is optional; Default documents the values used when absent.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Bridge    Bridge    `toml:"bridge"`
	Transport Transport `toml:"transport"`
	Discovery Discovery `toml:"discovery"`
	Log       Log       `toml:"log"`
	Peer      Peer      `toml:"peer"`
}

type Bridge struct {
	PluginURI     string  `toml:"plugin_uri"`
	PortManifest  string  `toml:"port_manifest"`
	IDSource      string  `toml:"id_source"` // counter | uuid
	FramesPerTick int     `toml:"frames_per_tick"`
	MaxFrame      uint32  `toml:"max_frame"`
	MaxMessage    int     `toml:"max_message"`
	MaxFields     int     `toml:"max_fields"`
	StrictFields  bool    `toml:"strict_fields"`
	MidiChannel   int     `toml:"midi_channel"`
	InboundRate   float64 `toml:"inbound_rate"` // commands per second, 0 disables
	InboundBurst  int     `toml:"inbound_burst"`
}

type Transport struct {
	Addr             string        `toml:"addr"`
	ConnectTimeout   time.Duration `toml:"connect_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	PollWait         time.Duration `toml:"poll_wait"`
	ReconnectOnError bool          `toml:"reconnect_on_error"`
	Backoff          Backoff       `toml:"backoff"`
}

type Backoff struct {
	InitialDelay time.Duration `toml:"initial_delay"`
	Multiplier   float64       `toml:"multiplier"`
	MaxDelay     time.Duration `toml:"max_delay"`
	Jitter       bool          `toml:"jitter"`
}

type Discovery struct {
	Mode          string        `toml:"mode"` // static | etcd
	EtcdEndpoints []string      `toml:"etcd_endpoints"`
	DialTimeout   time.Duration `toml:"dial_timeout"`
	Service       string        `toml:"service"`
	Balancer      string        `toml:"balancer"` // round_robin | weighted | hash
	TTL           int64         `toml:"ttl"`
}

type Log struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console | json
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Peer struct {
	ID          string   `toml:"id"`
	Listen      string   `toml:"listen"`
	HTTPListen  string   `toml:"http_listen"`
	History     int      `toml:"history"`
	CorsOrigins []string `toml:"cors_origins"`
	Weight      int      `toml:"weight"`
}

func Default() Config {
	return Config{
		Bridge: Bridge{
			IDSource:      "counter",
			FramesPerTick: 1,
			MaxFrame:      2047,
			MaxMessage:    2047,
			MaxFields:     15,
			InboundBurst:  16,
		},
		Transport: Transport{
			Addr:             "127.0.0.1:5555",
			ConnectTimeout:   2 * time.Second,
			ReadTimeout:      time.Second,
			WriteTimeout:     time.Second,
			PollWait:         time.Millisecond,
			ReconnectOnError: true,
			Backoff: Backoff{
				InitialDelay: 250 * time.Millisecond,
				Multiplier:   2.0,
				MaxDelay:     5 * time.Second,
				Jitter:       true,
			},
		},
		Discovery: Discovery{
			Mode:          "static",
			EtcdEndpoints: []string{"localhost:2379"},
			DialTimeout:   2 * time.Second,
			Service:       "madigan",
			Balancer:      "round_robin",
			TTL:           10,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Peer: Peer{
			Listen:     "127.0.0.1:5555",
			HTTPListen: "127.0.0.1:8080",
			History:    50,
			Weight:     1,
		},
	}
}

// Load reads path over Default. An empty path yields the defaults. Unknown
// keys are an error, so a typo does not silently fall back to a default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return finish(cfg, meta)
}

// Parse is Load for an in-memory document.
func Parse(data string) (Config, error) {
	cfg := Default()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return finish(cfg, meta)
}

func finish(cfg Config, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Bridge.PluginURI = strings.TrimSpace(c.Bridge.PluginURI)
	c.Bridge.IDSource = strings.ToLower(strings.TrimSpace(c.Bridge.IDSource))
	c.Transport.Addr = strings.TrimSpace(c.Transport.Addr)
	c.Discovery.Mode = strings.ToLower(strings.TrimSpace(c.Discovery.Mode))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Discovery.EtcdEndpoints = normalizeList(c.Discovery.EtcdEndpoints)
	c.Peer.CorsOrigins = normalizeList(c.Peer.CorsOrigins)
}

func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	b := c.Bridge
	if b.FramesPerTick < 1 {
		add("bridge.frames_per_tick must be at least 1")
	}
	if b.MaxFrame == 0 {
		add("bridge.max_frame must be positive")
	}
	if b.MaxMessage <= 0 || uint32(b.MaxMessage) > b.MaxFrame {
		add("bridge.max_message must be in 1..max_frame")
	}
	if b.MaxFields < 1 {
		add("bridge.max_fields must be at least 1")
	}
	if b.MidiChannel < 0 || b.MidiChannel > 15 {
		add("bridge.midi_channel must be in 0..15")
	}
	if b.InboundRate < 0 {
		add("bridge.inbound_rate must not be negative")
	}
	if b.InboundRate > 0 && b.InboundBurst < 1 {
		add("bridge.inbound_burst must be at least 1 when inbound_rate is set")
	}
	switch b.IDSource {
	case "counter", "uuid":
	default:
		add("bridge.id_source %q is not counter or uuid", b.IDSource)
	}

	switch c.Discovery.Mode {
	case "static":
		if c.Transport.Addr == "" {
			add("transport.addr is required in static discovery mode")
		}
	case "etcd":
		if len(c.Discovery.EtcdEndpoints) == 0 {
			add("discovery.etcd_endpoints is required in etcd mode")
		}
	default:
		add("discovery.mode %q is not static or etcd", c.Discovery.Mode)
	}
	switch c.Discovery.Balancer {
	case "", "round_robin", "weighted", "hash":
	default:
		add("discovery.balancer %q is not round_robin, weighted or hash", c.Discovery.Balancer)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format %q is not console or json", c.Log.Format)
	}
	if c.Peer.History < 1 {
		add("peer.history must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
