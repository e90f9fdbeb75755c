// Command op-move-node is the main entry point for the op-move L2
// execution node.
//
// Usage:
//
//	op-move-node [flags]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/umi-network/op-move/log"
	"github.com/umi-network/op-move/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

var mainLog = log.Default().Module("cmd")

func main() {
	cfg := node.DefaultConfig()
	var configPath, corsOrigins string

	app := &cli.App{
		Name:    "op-move-node",
		Usage:   "run an op-move L2 execution node",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{Destination: &configPath, Name: "config", Usage: "path to a TOML-like config file, overlaid below CLI flags and above built-in defaults"},
			&cli.StringFlag{Destination: &cfg.DataDir, Name: "datadir", Value: cfg.DataDir, Usage: "data directory path"},
			&cli.StringFlag{Destination: &cfg.Network, Name: "network", Value: cfg.Network, Usage: "network (mainnet, sepolia, holesky)"},
			&cli.Uint64Flag{Destination: &cfg.NetworkID, Name: "networkid", Value: cfg.NetworkID, Usage: "network identifier"},
			&cli.Uint64Flag{Destination: &cfg.ChainID, Name: "chainid", Value: cfg.ChainID, Usage: "chain identifier transactions are signed against"},
			&cli.StringFlag{Destination: &cfg.SyncMode, Name: "syncmode", Value: cfg.SyncMode, Usage: "sync mode (full, snap)"},
			&cli.IntFlag{Destination: &cfg.P2PPort, Name: "port", Value: cfg.P2PPort, Usage: "P2P listening port"},
			&cli.IntFlag{Destination: &cfg.RPCPort, Name: "http.port", Value: cfg.RPCPort, Usage: "HTTP-RPC server port"},
			&cli.IntFlag{Destination: &cfg.EnginePort, Name: "engine.port", Value: cfg.EnginePort, Usage: "Engine API server port"},
			&cli.IntFlag{Destination: &cfg.MaxPeers, Name: "maxpeers", Value: cfg.MaxPeers, Usage: "maximum number of P2P peers"},
			&cli.IntFlag{Destination: &cfg.Verbosity, Name: "verbosity", Value: cfg.Verbosity, Usage: "log level 0-5 (0=silent, 5=trace)"},
			&cli.BoolFlag{Destination: &cfg.Metrics, Name: "metrics", Value: cfg.Metrics, Usage: "enable metrics collection"},
			&cli.IntFlag{Destination: &cfg.BufferedCommandsCapacity, Name: "actor.queue", Value: cfg.BufferedCommandsCapacity, Usage: "state actor command queue capacity"},
			&cli.IntFlag{Destination: &cfg.ConcurrentQueriesLimit, Name: "actor.queries", Value: cfg.ConcurrentQueriesLimit, Usage: "concurrent read-query limit"},
			&cli.StringFlag{Destination: &cfg.L2GenesisPath, Name: "genesis", Value: cfg.L2GenesisPath, Usage: "path to L2 genesis change-set file"},
			&cli.StringFlag{Destination: &cfg.JWTSecretPath, Name: "authrpc.jwtsecret", Value: cfg.JWTSecretPath, Usage: "path to the Engine API JWT secret (default: <datadir>/jwt.hex)"},
			&cli.StringFlag{Destination: &corsOrigins, Name: "rpc.corsdomain", Usage: "comma-separated list of origins to allow RPC CORS requests from"},
			&cli.StringFlag{Destination: &cfg.LogFilePath, Name: "log.file", Value: cfg.LogFilePath, Usage: "write rotated log files here instead of stderr"},
		},
		Before: func(c *cli.Context) error {
			explicit := make(map[string]bool)
			for _, name := range c.FlagNames() {
				if c.IsSet(name) {
					explicit[name] = true
				}
			}
			applyEnvironment(&cfg, explicit)
			if configPath != "" {
				if err := applyConfigFile(&cfg, configPath, explicit); err != nil {
					return fmt.Errorf("load config file: %w", err)
				}
			}
			if corsOrigins != "" {
				cfg.RPCCorsOrigins = strings.Split(corsOrigins, ",")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(&cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		mainLog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

// run applies resolved flags, validates configuration, and drives the node
// through its full startup/shutdown lifecycle.
func run(cfg *node.Config) error {
	cfg.LogLevel = node.VerbosityToLogLevel(cfg.Verbosity)

	mainLog.Info("op-move-node starting",
		"version", version,
		"datadir", cfg.DataDir,
		"network", cfg.Network,
		"chainid", cfg.ChainID,
		"p2p_port", cfg.P2PPort,
		"http_port", cfg.RPCPort,
		"engine_port", cfg.EnginePort,
		"verbosity", cfg.Verbosity,
	)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.InitDataDir(); err != nil {
		return fmt.Errorf("init datadir: %w", err)
	}
	mainLog.Info("data directory initialized", "path", cfg.DataDir)

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	mainLog.Info("received signal, shutting down", "signal", sig)

	if err := n.Stop(); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}

	mainLog.Info("shutdown complete")
	return nil
}
