package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/forkdevnode/chaincore/client"
	"github.com/forkdevnode/chaincore/internal/logging"
	"github.com/forkdevnode/chaincore/sources"
	"github.com/forkdevnode/chaincore/store"
)

const (
	UpstreamRPCFlagName  = "upstream-rpc-url"
	ForkHeightFlagName   = "fork-height"
	DialAttemptsFlagName = "dial-attempts"
)

func main() {
	app := cli.NewApp()
	app.Name = "forkdevnode"
	app.Usage = "In-memory forking devnode core: RBS/HBS/TM over a remote Ethereum endpoint"
	app.Flags = append([]cli.Flag{
		&cli.StringFlag{
			Name:     UpstreamRPCFlagName,
			Required: true,
			Usage:    "JSON-RPC URL of the upstream node to fork from",
			EnvVars:  []string{"FORKDEVNODE_UPSTREAM_RPC_URL"},
		},
		&cli.Uint64Flag{
			Name:     ForkHeightFlagName,
			Required: true,
			Usage:    "Block height to fork at (the immutable boundary F)",
			EnvVars:  []string{"FORKDEVNODE_FORK_HEIGHT"},
		},
		&cli.IntFlag{
			Name:  DialAttemptsFlagName,
			Value: 10,
			Usage: "How many attempts to make at the initial upstream dial",
		},
	}, logging.Flags...)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		gethlog.Crit("forkdevnode failed", "err", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := logging.NewLogger(cliCtx)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	upstreamURL := cliCtx.String(UpstreamRPCFlagName)
	forkHeight := cliCtx.Uint64(ForkHeightFlagName)
	dialAttempts := cliCtx.Int(DialAttemptsFlagName)

	logger.Info("dialing upstream", "url", upstreamURL)
	rpcClient, err := client.Dial(ctx, logger, upstreamURL, client.WithDialAttempts(dialAttempts))
	if err != nil {
		return fmt.Errorf("dialing upstream %s: %w", upstreamURL, err)
	}
	defer rpcClient.Close()

	rbs := sources.New(rpcClient, logger, sources.Config{})
	hbs := store.New(forkHeight, rbs, logger)

	logger.Info("fork devnode core ready", "fork_height", hbs.ForkHeight(), "latest", hbs.LatestHeight())

	base, err := hbs.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("loading fork base block: %w", err)
	}
	logger.Info("loaded fork base block", "number", base.Number(), "hash", base.Hash())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
