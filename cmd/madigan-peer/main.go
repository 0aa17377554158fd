// madigan-peer accepts plugin UI bridges and exposes them over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"madigan/cmd/utils"
	"madigan/config"
	"madigan/server"
)

var (
	app = cli.NewApp()

	ListenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "TCP address bridges connect to",
	}
	HTTPFlag = cli.StringFlag{
		Name:  "http",
		Usage: "HTTP API address, empty to disable",
	}
	IDFlag = cli.StringFlag{
		Name:  "id",
		Usage: "Peer id advertised in the registry",
	}
	ShutdownTimeoutFlag = cli.DurationFlag{
		Name:  "shutdown-timeout",
		Usage: "How long to wait for connections on shutdown",
		Value: 5 * time.Second,
	}

	peerFlags = []cli.Flag{
		ListenFlag,
		HTTPFlag,
		IDFlag,
		ShutdownTimeoutFlag,
	}
)

func init() {
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "peer server for madigan plugin UI bridges"
	app.Version = "0.1.0"
	app.Flags = utils.MergeFlags(utils.CommonFlags, peerFlags)
	app.Action = action
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func action(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := utils.LoadConfig(ctx, func(c *config.Config) {
		if ctx.GlobalIsSet(ListenFlag.Name) {
			c.Peer.Listen = ctx.GlobalString(ListenFlag.Name)
		}
		if ctx.GlobalIsSet(HTTPFlag.Name) {
			c.Peer.HTTPListen = ctx.GlobalString(HTTPFlag.Name)
		}
		if ctx.GlobalIsSet(IDFlag.Name) {
			c.Peer.ID = ctx.GlobalString(IDFlag.Name)
		}
	})
	if err != nil {
		return err
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

	srv := server.New(server.OptionsFrom(cfg), reg, logger)
	if err := srv.Listen(sigCtx); err != nil {
		return err
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	select {
	case err := <-served:
		return err
	case <-sigCtx.Done():
	}
	logger.Info().Msg("terminating")
	if err := srv.Shutdown(ctx.GlobalDuration(ShutdownTimeoutFlag.Name)); err != nil {
		return err
	}
	return <-served
}
