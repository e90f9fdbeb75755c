package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/umi-network/op-move/node"
)

// applyConfigFile reads a TOML-like config file at path and overlays its
// values onto cfg, for every field the caller has not already set via an
// explicit CLI flag (tracked in explicit). CLI flags always win over the
// config file; the config file always wins over node.DefaultConfig.
func applyConfigFile(cfg *node.Config, path string, explicit map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	nodeCfg, err := node.LoadConfig(data)
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if !explicit["datadir"] {
		cfg.DataDir = nodeCfg.DataDir
	}
	if !explicit["networkid"] {
		cfg.NetworkID = nodeCfg.NetworkID
	}
	if !explicit["chainid"] {
		cfg.ChainID = nodeCfg.ChainID
	}
	if !explicit["syncmode"] {
		cfg.SyncMode = nodeCfg.SyncMode
	}
	if !explicit["genesis"] {
		cfg.L2GenesisPath = nodeCfg.Genesis
	}
	if !explicit["port"] {
		cfg.P2PPort = nodeCfg.P2P.Port
	}
	if !explicit["maxpeers"] {
		cfg.MaxPeers = nodeCfg.P2P.MaxPeers
	}
	if !explicit["http.port"] {
		cfg.RPCPort = nodeCfg.RPC.Port
	}
	if !explicit["verbosity"] {
		cfg.LogLevel = nodeCfg.Log.Level
	}
	if !explicit["actor.queue"] {
		cfg.BufferedCommandsCapacity = nodeCfg.Actor.QueueCapacity
	}
	if !explicit["actor.queries"] {
		cfg.ConcurrentQueriesLimit = nodeCfg.Actor.QueryLimit
	}

	return nil
}

// applyEnvironment reads OP_MOVE_-prefixed environment variables and
// overrides cfg fields the caller has not already set via an explicit CLI
// flag. Environment variables sit between the config file and CLI flags in
// priority: CLI flags win, then environment, then the config file.
func applyEnvironment(cfg *node.Config, explicit map[string]bool) {
	if v, ok := os.LookupEnv("OP_MOVE_DATADIR"); ok && !explicit["datadir"] {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("OP_MOVE_NETWORK"); ok && !explicit["network"] {
		cfg.Network = v
	}
	if v, ok := os.LookupEnv("OP_MOVE_CHAIN_ID"); ok && !explicit["chainid"] {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}
	if v, ok := os.LookupEnv("OP_MOVE_LOG_LEVEL"); ok && !explicit["verbosity"] {
		cfg.LogLevel = v
	}
}
