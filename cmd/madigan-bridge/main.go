// madigan-bridge runs one bridge outside a plugin host. Deliveries that a
// host would route to plugin ports are logged instead, which makes it a
// stand-in UI for exercising a peer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"gopkg.in/urfave/cli.v1"

	"madigan/atom"
	"madigan/bridge"
	"madigan/cmd/utils"
	"madigan/config"
	"madigan/instance"
	"madigan/ports"
	"madigan/registry"
	"madigan/urid"
)

var (
	app = cli.NewApp()

	PluginFlag = cli.StringFlag{
		Name:  "plugin",
		Usage: "Plugin URI announced in the handshake",
	}
	ManifestFlag = cli.StringFlag{
		Name:  "manifest",
		Usage: "TOML port manifest used to find the patch and MIDI ports",
	}
	AddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "Peer address in static discovery mode",
	}
	IDSourceFlag = cli.StringFlag{
		Name:  "id-source",
		Usage: "Instance id source: counter or uuid",
	}
	TickFlag = cli.DurationFlag{
		Name:  "tick",
		Usage: "Idle interval, the host's UI refresh period",
		Value: 30 * time.Millisecond,
	}

	bridgeFlags = []cli.Flag{
		PluginFlag,
		ManifestFlag,
		AddrFlag,
		IDSourceFlag,
		TickFlag,
	}

	classifyCommand = cli.Command{
		Name:      "classify",
		Usage:     "Print the patch and MIDI destination ports of a plugin",
		ArgsUsage: "<plugin-uri>",
		Action:    classify,
	}
)

func init() {
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "plugin UI bridge to a madigan peer"
	app.Version = "0.1.0"
	app.Flags = utils.MergeFlags(utils.CommonFlags, bridgeFlags)
	app.Commands = []cli.Command{classifyCommand}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	return utils.LoadConfig(ctx, func(c *config.Config) {
		if ctx.GlobalIsSet(PluginFlag.Name) {
			c.Bridge.PluginURI = ctx.GlobalString(PluginFlag.Name)
		}
		if ctx.GlobalIsSet(ManifestFlag.Name) {
			c.Bridge.PortManifest = ctx.GlobalString(ManifestFlag.Name)
		}
		if ctx.GlobalIsSet(AddrFlag.Name) {
			c.Transport.Addr = ctx.GlobalString(AddrFlag.Name)
		}
		if ctx.GlobalIsSet(IDSourceFlag.Name) {
			c.Bridge.IDSource = ctx.GlobalString(IDSourceFlag.Name)
		}
	})
}

// destinations classifies the plugin's ports. A missing manifest or an
// unknown plugin leaves both destinations absent.
func destinations(cfg config.Config, logger zerolog.Logger) ports.Destinations {
	if cfg.Bridge.PortManifest == "" {
		return ports.Absent()
	}
	m, err := ports.LoadManifest(cfg.Bridge.PortManifest)
	if err != nil {
		logger.Warn().Err(err).Msg("port manifest")
		return ports.Absent()
	}
	d, err := m.Destinations(cfg.Bridge.PluginURI)
	if err != nil {
		logger.Warn().Err(err).Str("plugin", cfg.Bridge.PluginURI).Msg("port classification")
	}
	return d
}

func run(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Bridge.PluginURI == "" {
		return errors.New("a plugin URI is required (--plugin or bridge.plugin_uri)")
	}
	logger, logCloser, err := utils.Logger(cfg, app.Name)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	reg, regCloser, err := utils.Registry(cfg)
	if err != nil {
		return err
	}
	defer regCloser.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := instance.ByName(cfg.Bridge.IDSource, atomic.NewUint32(0))
	if err != nil {
		return err
	}
	opts := []bridge.Option{bridge.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, bridge.WithResolver(registry.ServiceResolver{Registry: reg, Service: cfg.Discovery.Service}))
		go watchPeers(sigCtx, reg, cfg.Discovery.Service, logger)
	}

	m := urid.New()
	b, err := bridge.New(cfg, logHost{logger: logger}, m, destinations(cfg, logger), ids, opts...)
	if err != nil {
		return err
	}
	defer b.Close()

	vocab := atom.NewVocabulary(m)
	ticker := time.NewTicker(ctx.GlobalDuration(TickFlag.Name))
	defer ticker.Stop()
	asked := false
	for {
		select {
		case <-sigCtx.Done():
			logger.Info().Msg("terminating")
			return nil
		case <-ticker.C:
		}
		if err := b.Idle(sigCtx); err != nil {
			logger.Warn().Err(err).Msg("idle")
			continue
		}
		if !asked {
			asked = true
			if err := askState(b, vocab); err != nil {
				logger.Warn().Err(err).Msg("patch:Get")
			}
		}
	}
}

// askState sends a patch:Get, which a plugin UI does once to learn the
// current parameter values.
func askState(b *bridge.Bridge, vocab atom.Vocabulary) error {
	f := atom.NewForge(vocab)
	f.Object(0, vocab.PatchGet)
	if err := f.Pop(); err != nil {
		return err
	}
	buf, err := f.Bytes()
	if err != nil {
		return err
	}
	return b.PortEvent(0, uint32(vocab.EventTransfer), buf)
}

func watchPeers(ctx context.Context, reg registry.Registry, service string, logger zerolog.Logger) {
	for eps := range reg.Watch(ctx, service) {
		addrs := make([]string, len(eps))
		for i, ep := range eps {
			addrs[i] = ep.Addr
		}
		logger.Info().Strs("peers", addrs).Msg("peers changed")
	}
}

type logHost struct{ logger zerolog.Logger }

func (h logHost) Deliver(port int, format uint32, payload []byte) {
	h.logger.Info().
		Int("port", port).
		Uint32("format", format).
		Int("bytes", len(payload)).
		Hex("payload", payload).
		Msg("deliver")
}

func classify(ctx *cli.Context) error {
	uri := ctx.Args().First()
	if uri == "" {
		return errors.New("usage: classify <plugin-uri>")
	}
	path := ctx.GlobalString(ManifestFlag.Name)
	if path == "" {
		cfg, err := config.Load(ctx.GlobalString(utils.ConfigFileFlag.Name))
		if err != nil {
			return err
		}
		path = cfg.Bridge.PortManifest
	}
	if path == "" {
		return errors.New("a port manifest is required (--manifest or bridge.port_manifest)")
	}
	m, err := ports.LoadManifest(path)
	if err != nil {
		return err
	}
	d, err := m.Destinations(uri)
	if err != nil {
		return err
	}
	fmt.Printf("patch=%d midi=%d\n", d.Patch, d.MIDI)
	return nil
}
