package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/config"
	"github.com/aerostream/indexer/internal/modules/amm"
	"github.com/aerostream/indexer/internal/store"
)

func main() {
	var (
		configPath   string
		manifestPath string
		fromBlock    uint64
		toBlock      uint64
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&manifestPath, "manifest", "manifests/aerodrome.yaml", "Path to module manifest")
	flag.Uint64Var(&fromBlock, "from", 0, "Starting block")
	flag.Uint64Var(&toBlock, "to", 0, "Ending block")
	flag.Parse()

	if toBlock == 0 {
		fmt.Fprintf(os.Stderr, "Ending block is required\n")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	ctx := context.Background()

	connString := cfg.Database.ConnectionString()
	if err := store.RunMigrations(ctx, connString, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	st, err := store.Connect(ctx, connString, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer st.Close()

	client, err := ethclient.Dial(cfg.Chain.RPCEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to RPC")
	}
	defer client.Close()

	reader, err := chain.NewEthReader(
		client,
		common.HexToAddress(cfg.Contracts.Factory),
		common.HexToAddress(cfg.Contracts.Voter),
		common.HexToAddress(cfg.Contracts.Oracle),
		cfg.Aggregator.CallTimeout,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build chain reader")
	}

	module, err := amm.New(manifestPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create AMM module")
	}
	module.SetEthClient(client)
	module.SetReader(reader)

	if err := module.Initialize(ctx, st); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize module")
	}

	// Resume from the checkpoint when no explicit start is given
	if fromBlock == 0 {
		lastBlock, err := module.GetSyncState(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to read sync state")
		}
		if lastBlock > 0 {
			fromBlock = lastBlock + 1
		} else {
			fromBlock = module.GetStartBlock()
		}
	}

	if fromBlock > toBlock {
		logger.Info().
			Uint64("from", fromBlock).
			Uint64("to", toBlock).
			Msg("Nothing to backfill")
		return
	}

	logger.Info().
		Str("module", module.Name()).
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Msg("Starting backfill")

	if err := module.Backfill(ctx, fromBlock, toBlock); err != nil {
		logger.Fatal().Err(err).Msg("Backfill failed")
	}

	logger.Info().Msg("Backfill completed")
}
