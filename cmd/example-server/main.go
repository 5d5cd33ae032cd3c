package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-bench/examples/statusserver"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var Version = "v0.1.0"

var (
	HostFlag = &cli.StringFlag{
		Name:    "host",
		Value:   "0.0.0.0",
		EnvVars: []string{"APP_HOST"},
		Usage:   "Listening address",
	}
	PortFlag = &cli.IntFlag{
		Name:    "port",
		Value:   8080,
		EnvVars: []string{"APP_PORT"},
		Usage:   "Listening port",
	}
)

func main() {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Version = Version
	app.Name = statusserver.Name
	app.Usage = "Example service answering GET /status"
	app.Flags = append([]cli.Flag{HostFlag, PortFlag}, oplog.CLIFlags("APP")...)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger := oplog.NewLogger(oplog.AppOut(ctx), oplog.ReadCLIConfig(ctx))
	oplog.SetGlobalLogHandler(logger.Handler())

	server := statusserver.New(Version, logger)
	addr := net.JoinHostPort(ctx.String(HostFlag.Name), strconv.Itoa(ctx.Int(PortFlag.Name)))
	if _, err := server.Start(addr); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Close(shutdownCtx)
}
