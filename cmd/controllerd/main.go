// Controller node daemon: the integration point between consensus,
// network, storage, KMS, and executor.
//
// Usage:
//
//	controllerd [--config controller-config.toml] [--local]
//	controllerd --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klingnet-chain/controller/internal/archive"
	"github.com/klingnet-chain/controller/internal/auth"
	"github.com/klingnet-chain/controller/internal/badgerstore"
	"github.com/klingnet-chain/controller/internal/chain"
	"github.com/klingnet-chain/controller/internal/config"
	"github.com/klingnet-chain/controller/internal/identity"
	klog "github.com/klingnet-chain/controller/internal/log"
	"github.com/klingnet-chain/controller/internal/mempool"
	"github.com/klingnet-chain/controller/internal/p2p"
	"github.com/klingnet-chain/controller/internal/rpcserver"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// registerRetryInterval paces the network-registration and readiness
// probes at boot.
const registerRetryInterval = 3 * time.Second

// reconfigureRetryInterval paces the boot-time push of the initial
// consensus configuration.
const reconfigureRetryInterval = 30 * time.Second

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Println("controllerd", version)
		return
	}
	if flags.Help {
		fmt.Println("controllerd [--config controller-config.toml] [--local] [--datadir DIR]")
		return
	}

	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")
	logger.Info().Str("version", version).Bool("local", cfg.Local).Msg("starting controller node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Collaborator façades ────────────────────────────────────────────
	var (
		storage   services.Storage
		kms       services.KMS
		executor  services.Executor
		consensus services.Consensus
		network   services.Network
		p2pNode   *p2p.Node
	)
	if cfg.Local {
		db, err := badgerstore.NewBadger(cfg.ChainDataDir())
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ChainDataDir()).Msg("open database failed")
		}
		defer db.Close()
		storage = badgerstore.NewRegionStore(db)
		kms = services.NewLocalKMS()
		executor = services.NewLocalExecutor()
		consensus = services.NewLocalConsensus()
		p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			NetworkID:  cfg.P2P.NetworkID,
			NoDiscover: cfg.P2P.NoDiscover,
		})
		network = p2pNode
	} else {
		endpoint := func(port int) string { return fmt.Sprintf("http://127.0.0.1:%d", port) }
		storage = services.NewStorageClient(endpoint(cfg.StoragePort))
		kms = services.NewKMSClient(endpoint(cfg.KmsPort))
		executor = services.NewExecutorClient(endpoint(cfg.ExecutorPort))
		consensus = services.NewConsensusClient(endpoint(cfg.ConsensusPort))
		network = services.NewNetworkClient(endpoint(cfg.NetworkPort), "127.0.0.1", cfg.RPC.Port)
	}

	authenticator := auth.New(kms, storage)
	pool := mempool.New(0)

	if p2pNode != nil {
		if err := p2pNode.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start p2p node failed")
		}
		defer p2pNode.Stop()
	}

	// ── Register as the network's controller module ─────────────────────
	for {
		if err := network.RegisterHandler(ctx, "controller", "127.0.0.1", cfg.RPC.Port); err == nil {
			logger.Info().Msg("network msg handler registered")
			break
		}
		logger.Warn().Msg("register network msg handler failed, retrying")
		time.Sleep(registerRetryInterval)
	}

	// ── Wait for KMS readiness ──────────────────────────────────────────
	for {
		if _, err := kms.Hash(ctx, make([]byte, types.HashSize)); err == nil {
			logger.Info().Msg("kms is ready")
			break
		}
		logger.Warn().Msg("kms not ready, retrying")
		time.Sleep(registerRetryInterval)
	}

	// ── Node identity ───────────────────────────────────────────────────
	var passphrase []byte
	if pw := os.Getenv("CONTROLLER_KEY_PASSPHRASE"); pw != "" {
		passphrase = []byte(pw)
	}
	nodeIdentity, err := identity.LoadOrCreate(cfg.DataDir, passphrase)
	if err != nil {
		logger.Fatal().Err(err).Msg("load node identity failed")
	}
	logger.Info().
		Uint64("key_id", nodeIdentity.KeyID).
		Str("node_address", nodeIdentity.Address.String()).
		Msg("node identity loaded")

	// ── Current chain head ──────────────────────────────────────────────
	var currentHeight uint64
	for {
		heightBytes, err := storage.LoadMaybeEmpty(ctx, chain.RegionMeta, encodeUint64(0))
		if err != nil {
			logger.Warn().Err(err).Msg("get current block number failed, retrying")
			time.Sleep(registerRetryInterval)
			continue
		}
		if len(heightBytes) == 0 {
			logger.Info().Msg("this is a new chain")
			currentHeight = 0
		} else {
			r := types.NewReader(heightBytes)
			if currentHeight, err = r.Uint64(); err != nil {
				logger.Fatal().Err(err).Msg("decode current block number failed")
			}
			logger.Info().Uint64("height", currentHeight).Msg("this is an old chain")
		}
		break
	}

	// ── System config: genesis file, then recorded-slot replay ──────────
	sysConfigPath := configSibling(flags.Config, "init-sys-config.toml")
	sysConfigFile, err := config.LoadSystemConfigFile(sysConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", sysConfigPath).Msg("load init sys config failed")
	}
	if err := sysConfigFile.Apply(authenticator.SystemConfig()); err != nil {
		logger.Fatal().Err(err).Msg("install genesis system config failed")
	}
	if currentHeight != 0 {
		replaySystemConfig(ctx, storage, authenticator.SystemConfig(), logger)
	}

	// ── Push the initial consensus configuration in the background ──────
	snap := authenticator.SystemConfigSnapshot()
	go func() {
		for {
			ok, err := consensus.Reconfigure(ctx, types.ConsensusConfiguration{
				Height:        currentHeight,
				BlockInterval: snap.BlockInterval,
				Validators:    snap.Validators,
			})
			if err == nil && ok {
				logger.Info().Msg("initial consensus reconfigure accepted")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconfigureRetryInterval):
			}
		}
	}()

	// ── Genesis block ───────────────────────────────────────────────────
	genesisPath := configSibling(flags.Config, "genesis.toml")
	genesisFile, err := config.LoadGenesis(genesisPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", genesisPath).Msg("load genesis failed")
	}
	emptyRoot, err := kms.Hash(ctx, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash empty transactions root failed")
	}
	genesisBlock, err := genesisFile.ToBlock(emptyRoot)
	if err != nil {
		logger.Fatal().Err(err).Msg("build genesis block failed")
	}

	// ── Chain ───────────────────────────────────────────────────────────
	archiveWriter, err := archive.NewWriter(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create sync archive failed")
	}

	ch := chain.New(chain.Config{
		BlockDelayNumber: uint64(cfg.BlockDelayNumber),
		Authenticator:    authenticator,
		Pool:             pool,
		Storage:          storage,
		KMS:              kms,
		Executor:         executor,
		Consensus:        consensus,
		Network:          network,
		NodeAddress:      nodeIdentity.Address,
		Genesis:          genesisBlock,
		Archive:          archiveWriter,
	})
	if err := ch.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("chain init failed")
	}

	if p2pNode != nil {
		p2pNode.SetHandler(func(msg services.NetworkMsg) {
			if err := ch.ProcessNetworkMsg(ctx, msg); err != nil {
				klog.P2P.Debug().Err(err).Str("type", string(msg.Type)).Msg("process network msg failed")
			}
		})
	}

	// ── RPC server ──────────────────────────────────────────────────────
	rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
	rpcServer := rpcserver.New(rpcAddr, ch, network)
	if err := rpcServer.Start(); err != nil {
		logger.Fatal().Err(err).Str("addr", rpcAddr).Msg("start rpc server failed")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = rpcServer.Stop(shutdownCtx)
	}()

	// ── Proposal / status loop ──────────────────────────────────────────
	blockInterval := time.Duration(snap.BlockInterval) * time.Second
	if blockInterval == 0 {
		blockInterval = 3 * time.Second
	}
	go func() {
		ticker := time.NewTicker(blockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ch.AddProposal(ctx); err != nil {
					logger.Warn().Err(err).Msg("add proposal failed")
				}
				if err := ch.BroadcastStatus(ctx); err != nil {
					logger.Debug().Err(err).Msg("broadcast chain status failed")
				}
			}
		}
	}()

	logger.Info().
		Uint64("height", ch.BlockNumber()).
		Str("rpc", rpcServer.Addr()).
		Msg("controller node running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()
}

// replaySystemConfig deterministically rebuilds the six slots from the
// recorded utxo transactions in regions 0 and 1. Any malformed record
// panics via Update(strict=true).
func replaySystemConfig(ctx context.Context, storage services.Storage, sc *sysconfig.SystemConfig, logger zerolog.Logger) {
	for _, id := range []sysconfig.LockID{
		sysconfig.LockIDVersion, sysconfig.LockIDChainID, sysconfig.LockIDAdmin,
		sysconfig.LockIDBlockInterval, sysconfig.LockIDValidators, sysconfig.LockIDEmergencyBrake,
	} {
		txHashBytes, err := storage.LoadMaybeEmpty(ctx, chain.RegionMeta, encodeUint64(uint64(id)))
		if err != nil {
			logger.Fatal().Err(err).Stringer("lock_id", id).Msg("load recorded slot head failed")
		}
		if len(txHashBytes) == 0 {
			continue
		}
		rawBytes, err := storage.Load(ctx, chain.RegionTx, txHashBytes)
		if err != nil {
			logger.Fatal().Err(err).Stringer("lock_id", id).Msg("load recorded slot transaction failed")
		}
		raw, err := types.DecodeRawTransaction(rawBytes)
		if err != nil {
			logger.Fatal().Err(err).Stringer("lock_id", id).Msg("decode recorded slot transaction failed")
		}
		if raw.Kind != types.TxKindUtxo || raw.Utxo == nil || raw.Utxo.Transaction == nil {
			logger.Fatal().Stringer("lock_id", id).Msg("recorded slot transaction is not a utxo tx")
		}
		sc.Update(raw.Utxo.Transaction, raw.Utxo.TransactionHash, true)
	}
}

func encodeUint64(v uint64) []byte {
	w := types.NewWriter()
	w.PutUint64(v)
	return w.Bytes()
}

// configSibling resolves a file next to the config file, or in the
// working directory when no config path was given.
func configSibling(configPath, name string) string {
	if configPath == "" {
		return name
	}
	return filepath.Join(filepath.Dir(configPath), name)
}
