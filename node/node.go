package node

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/umi-network/op-move/actor"
	"github.com/umi-network/op-move/core"
	"github.com/umi-network/op-move/core/rawdb"
	"github.com/umi-network/op-move/core/state"
	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/engine"
	"github.com/umi-network/op-move/kv"
	"github.com/umi-network/op-move/log"
	"github.com/umi-network/op-move/p2p"
	"github.com/umi-network/op-move/rpc"
	"github.com/umi-network/op-move/storage"
	"github.com/umi-network/op-move/txpool"
)

var nodeLog = log.Default().Module("node")

// Node is the top-level ETH2030 node that manages all subsystems.
type Node struct {
	config *Config

	// Subsystems.
	db           rawdb.Database
	store        *storage.Store
	blockchain   *core.Blockchain
	txPool       *txpool.TxPool
	rpcServer    *http.Server
	rpcHandler   *rpc.Server
	engineServer *engine.EngineAPI
	p2pServer    *p2p.Server
	actor        *actor.Actor
	dirLock      *flock.Flock

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// New creates a new Node with the given configuration. It initializes
// all subsystems but does not start any network services.
func New(config *Config) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := log.LevelFromName(config.LogLevel)
	if config.LogFilePath != "" {
		log.SetDefault(log.NewRotatingFile(log.FileRotationConfig{
			Path:       config.LogFilePath,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		}, level))
	} else {
		log.SetDefault(log.New(level))
	}
	nodeLog = log.Default().Module("node")

	n := &Node{
		config: config,
		stop:   make(chan struct{}),
	}

	// Initialize in-memory database.
	n.db = rawdb.NewMemoryDB()

	// Initialize the persisted column store. A Pebble database under
	// chaindata/ backs it when a data directory is usable and not already
	// locked by another running instance; otherwise fall back to an
	// in-memory kv.Store so the node still runs (tests, devnets launched
	// without InitDataDir, or a second instance pointed at a busy datadir).
	var kvStore kv.Store
	if config.DataDir != "" {
		if pebbleStore, err := kv.OpenPebble(filepath.Join(config.DataDir, "chaindata", "store")); err == nil {
			dirLock := flock.New(filepath.Join(config.DataDir, "LOCK"))
			locked, lockErr := dirLock.TryLock()
			if lockErr == nil && locked {
				n.dirLock = dirLock
				kvStore = kv.NewCachedStore(pebbleStore, 32*1024*1024, 1_000_000)
			} else {
				pebbleStore.Close()
				nodeLog.Error("datadir already locked by another instance, falling back to in-memory store", "datadir", config.DataDir)
			}
		}
	}
	if kvStore == nil {
		kvStore = kv.NewMemory()
	}
	n.store = storage.New(kvStore)
	n.actor = actor.New(config.BufferedCommandsCapacity, config.ConcurrentQueriesLimit)

	// Initialize blockchain with a genesis block.
	chainConfig := chainConfigForNetwork(config.Network)
	genesis := makeGenesisBlock()
	statedb := state.NewMemoryStateDB()

	bc, err := core.NewBlockchain(chainConfig, genesis, statedb, n.db)
	if err != nil {
		return nil, fmt.Errorf("init blockchain: %w", err)
	}
	n.blockchain = bc

	if err := n.store.PutBlock(genesis); err != nil {
		return nil, fmt.Errorf("persist genesis block: %w", err)
	}
	if err := n.store.PutStateRoot(genesis.NumberU64(), genesis.Header().Root); err != nil {
		return nil, fmt.Errorf("persist genesis state root: %w", err)
	}
	n.actor.StoreSnapshot(&actor.Snapshot{
		Head:   genesis.Hash(),
		Number: genesis.NumberU64(),
		Root:   genesis.Header().Root,
	})

	// Initialize transaction pool.
	poolCfg := txpool.DefaultConfig()
	n.txPool = txpool.New(poolCfg, bc.State())

	// Initialize P2P server.
	n.p2pServer = p2p.NewServer(p2p.Config{
		ListenAddr: config.P2PAddr(),
		MaxPeers:   config.MaxPeers,
	})

	// Initialize RPC server with blockchain backend.
	backend := newNodeBackend(n)
	n.rpcHandler = rpc.NewServer(backend)
	n.rpcHandler.SetCORSOrigins(config.RPCCorsOrigins)

	// Initialize Engine API server.
	engineBackend := newEngineBackend(n)
	n.engineServer = engine.NewEngineAPI(engineBackend)

	jwtSecretPath := config.JWTSecretPath
	if jwtSecretPath == "" {
		jwtSecretPath = config.ResolvePath("jwt.hex")
	}
	if config.DataDir != "" {
		secret, err := engine.LoadOrCreateJWTSecret(jwtSecretPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt secret: %w", err)
		}
		n.engineServer.SetJWTSecret(secret)
	}

	return n, nil
}

// Start starts all node subsystems in order.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return errors.New("node already running")
	}

	nodeLog.Info("starting node", "network", n.config.Network)

	n.actor.Start()

	// Start P2P server.
	if err := n.p2pServer.Start(); err != nil {
		return fmt.Errorf("start p2p: %w", err)
	}
	nodeLog.Info("p2p server listening", "addr", n.p2pServer.ListenAddr())

	// Start JSON-RPC server.
	n.rpcServer = &http.Server{
		Addr:    n.config.RPCAddr(),
		Handler: n.rpcHandler.Handler(),
	}
	go func() {
		nodeLog.Info("rpc server listening", "addr", n.config.RPCAddr())
		if err := n.rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nodeLog.Error("rpc server error", "err", err)
		}
	}()

	// Start Engine API server.
	go func() {
		nodeLog.Info("engine api server listening", "addr", n.config.EngineAddr())
		if err := n.engineServer.Start(n.config.EngineAddr()); err != nil {
			nodeLog.Error("engine api error", "err", err)
		}
	}()

	n.running = true
	nodeLog.Info("node started")
	return nil
}

// Stop gracefully shuts down all subsystems in reverse order.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	nodeLog.Info("stopping node")

	// Stop Engine API.
	if err := n.engineServer.Stop(); err != nil {
		nodeLog.Error("engine api stop error", "err", err)
	}

	// Stop RPC server.
	if n.rpcServer != nil {
		if err := n.rpcServer.Close(); err != nil {
			nodeLog.Error("rpc server stop error", "err", err)
		}
	}

	// Stop P2P server.
	n.p2pServer.Stop()

	n.actor.Shutdown()

	// Close database.
	if err := n.db.Close(); err != nil {
		nodeLog.Error("database close error", "err", err)
	}
	if err := n.store.Close(); err != nil {
		nodeLog.Error("store close error", "err", err)
	}
	if n.dirLock != nil {
		if err := n.dirLock.Unlock(); err != nil {
			nodeLog.Error("datadir unlock error", "err", err)
		}
	}

	n.running = false
	close(n.stop)
	nodeLog.Info("node stopped")
	return nil
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() {
	<-n.stop
}

// Blockchain returns the blockchain instance.
func (n *Node) Blockchain() *core.Blockchain {
	return n.blockchain
}

// Store returns the node's persisted column store.
func (n *Node) Store() *storage.Store {
	return n.store
}

// Actor returns the node's single-writer command/query actor.
func (n *Node) Actor() *actor.Actor {
	return n.actor
}

// TxPool returns the transaction pool.
func (n *Node) TxPool() *txpool.TxPool {
	return n.txPool
}

// Config returns the node configuration.
func (n *Node) Config() *Config {
	return n.config
}

// Running reports whether the node is currently running.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// chainConfigForNetwork returns the chain config for the given network name.
func chainConfigForNetwork(network string) *core.ChainConfig {
	switch network {
	case "mainnet":
		return core.MainnetConfig
	case "sepolia":
		return core.SepoliaConfig
	case "holesky":
		return core.HoleskyConfig
	default:
		return core.MainnetConfig
	}
}

// genesisForNetwork returns the genesis specification for the given network.
func genesisForNetwork(network string) *core.Genesis {
	switch network {
	case "mainnet":
		return core.DefaultGenesisBlock()
	case "sepolia":
		return core.DefaultSepoliaGenesisBlock()
	case "holesky":
		return core.DefaultHoleskyGenesisBlock()
	default:
		return core.DefaultGenesisBlock()
	}
}

// makeGenesisBlock creates a minimal genesis block.
func makeGenesisBlock() *types.Block {
	header := &types.Header{
		Number:     big.NewInt(0),
		GasLimit:   30_000_000,
		GasUsed:    0,
		Time:       0,
		Difficulty: new(big.Int),
		BaseFee:    big.NewInt(1_000_000_000), // 1 gwei
		UncleHash:  types.EmptyUncleHash,
	}
	return types.NewBlock(header, nil)
}
