// Package logging wires the CLI's --log.level/--log.format flags into a
// github.com/ethereum/go-ethereum/log logger, the way cp-program/host/cmd
// wires its own oplog.ReadCLIConfig/oplog.NewLogger pair. This module's
// retrieved pack doesn't carry that package's source, so this is a small
// reconstruction against log's own public handler API rather than an
// import of it.
package logging

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

const (
	LevelFlagName  = "log.level"
	FormatFlagName = "log.format"
)

// Flags are appended to every command's flag set.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:    LevelFlagName,
		Value:   "info",
		Usage:   "Log level: trace, debug, info, warn, error, crit",
		EnvVars: []string{"FORKDEVNODE_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    FormatFlagName,
		Value:   "terminal",
		Usage:   "Log format: terminal, json",
		EnvVars: []string{"FORKDEVNODE_LOG_FORMAT"},
	},
}

// NewLogger builds and installs a logger from the CLI context, returning it
// for the caller to pass down into the core's components.
func NewLogger(ctx *cli.Context) (log.Logger, error) {
	var handler log.Handler
	switch ctx.String(FormatFlagName) {
	case "json":
		handler = log.JSONHandler(os.Stderr)
	case "terminal", "":
		handler = log.NewTerminalHandler(os.Stderr, false)
	default:
		return nil, fmt.Errorf("invalid %s: %q", FormatFlagName, ctx.String(FormatFlagName))
	}

	glogger := log.NewGlogHandler(handler)
	switch ctx.String(LevelFlagName) {
	case "trace":
		glogger.Verbosity(log.LevelTrace)
	case "debug":
		glogger.Verbosity(log.LevelDebug)
	case "info", "":
		glogger.Verbosity(log.LevelInfo)
	case "warn":
		glogger.Verbosity(log.LevelWarn)
	case "error":
		glogger.Verbosity(log.LevelError)
	case "crit":
		glogger.Verbosity(log.LevelCrit)
	default:
		return nil, fmt.Errorf("invalid %s: %q", LevelFlagName, ctx.String(LevelFlagName))
	}

	logger := log.NewLogger(glogger)
	log.SetDefault(logger)
	return logger, nil
}
