// Package utils holds the flags and setup shared by the madigan binaries.
package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/urfave/cli.v1"

	"madigan/config"
	"madigan/logging"
	"madigan/registry"
)

var (
	// Config settings
	ConfigFileFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "TOML configuration file",
		EnvVar: "MADIGAN_CONFIG",
	}

	// Log settings
	LogLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "Log level: trace, debug, info, warn, error",
	}
	LogFormatFlag = cli.StringFlag{
		Name:  "logformat",
		Usage: "Log format: console or json",
	}
	LogFileFlag = cli.StringFlag{
		Name:  "logfile",
		Usage: "Also write JSON logs to this rotating file",
	}

	// Discovery settings
	DiscoveryFlag = cli.StringFlag{
		Name:  "discovery",
		Usage: "Peer discovery: static or etcd",
	}
	EtcdFlag = cli.StringSliceFlag{
		Name:  "etcd",
		Usage: "etcd endpoint (repeatable)",
	}
	ServiceFlag = cli.StringFlag{
		Name:  "service",
		Usage: "Service name peers register under",
	}
)

var CommonFlags = []cli.Flag{
	ConfigFileFlag,
	LogLevelFlag,
	LogFormatFlag,
	LogFileFlag,
	DiscoveryFlag,
	EtcdFlag,
	ServiceFlag,
}

// MergeFlags concatenates flag groups.
func MergeFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// LoadConfig reads --config and applies the common overrides. edit applies
// binary-specific flags before validation.
func LoadConfig(ctx *cli.Context, edit func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(ctx.GlobalString(ConfigFileFlag.Name))
	if err != nil {
		return config.Config{}, err
	}
	if ctx.GlobalIsSet(LogLevelFlag.Name) {
		cfg.Log.Level = ctx.GlobalString(LogLevelFlag.Name)
	}
	if ctx.GlobalIsSet(LogFormatFlag.Name) {
		cfg.Log.Format = ctx.GlobalString(LogFormatFlag.Name)
	}
	if ctx.GlobalIsSet(LogFileFlag.Name) {
		cfg.Log.File = ctx.GlobalString(LogFileFlag.Name)
	}
	if ctx.GlobalIsSet(DiscoveryFlag.Name) {
		cfg.Discovery.Mode = ctx.GlobalString(DiscoveryFlag.Name)
	}
	if ctx.GlobalIsSet(EtcdFlag.Name) {
		cfg.Discovery.EtcdEndpoints = ctx.GlobalStringSlice(EtcdFlag.Name)
	}
	if ctx.GlobalIsSet(ServiceFlag.Name) {
		cfg.Discovery.Service = ctx.GlobalString(ServiceFlag.Name)
	}
	if edit != nil {
		edit(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Logger builds the process logger for app.
func Logger(cfg config.Config, app string) (zerolog.Logger, io.Closer, error) {
	return logging.New(cfg.Log, app, os.Stderr)
}

// Registry opens the etcd registry in etcd mode. In static mode it returns
// nil and a no-op closer.
func Registry(cfg config.Config) (registry.Registry, io.Closer, error) {
	if cfg.Discovery.Mode != "etcd" {
		return nil, nopCloser{}, nil
	}
	reg, err := registry.NewEtcdRegistry(cfg.Discovery.EtcdEndpoints, cfg.Discovery.DialTimeout)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("etcd %v: %w", cfg.Discovery.EtcdEndpoints, err)
	}
	return reg, reg, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
