package config

import (
	"madigan/codec"
	"madigan/transport"
)

func (c Config) TransportConfig() transport.Config {
	t := c.Transport
	return transport.Config{
		ConnectTimeout:   t.ConnectTimeout,
		ReadTimeout:      t.ReadTimeout,
		WriteTimeout:     t.WriteTimeout,
		PollWait:         t.PollWait,
		MaxFrame:         c.Bridge.MaxFrame,
		FramesPerTick:    c.Bridge.FramesPerTick,
		ReconnectOnError: t.ReconnectOnError,
		Backoff: transport.BackoffConfig{
			InitialDelay: t.Backoff.InitialDelay,
			Multiplier:   t.Backoff.Multiplier,
			MaxDelay:     t.Backoff.MaxDelay,
			Jitter:       t.Backoff.Jitter,
		},
	}
}

func (c Config) Limits() codec.Limits {
	return codec.Limits{MaxFields: c.Bridge.MaxFields, StrictFields: c.Bridge.StrictFields}
}
