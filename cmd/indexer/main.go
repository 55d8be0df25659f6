package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/aerostream/indexer/internal/chain"
	"github.com/aerostream/indexer/internal/config"
	"github.com/aerostream/indexer/internal/modules/amm"
	"github.com/aerostream/indexer/internal/modules/core"
	"github.com/aerostream/indexer/internal/realtime"
	"github.com/aerostream/indexer/internal/scheduler"
	"github.com/aerostream/indexer/internal/store"
)

func main() {
	var (
		configPath   string
		manifestPath string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&manifestPath, "manifest", "manifests/aerodrome.yaml", "Path to module manifest")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", "0.1.0").
		Str("config", configPath).
		Str("chain", cfg.Chain.Name).
		Msg("Starting Aerostream Indexer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	var publisher *realtime.Publisher
	if cfg.Realtime.Enabled {
		publisher = realtime.NewPublisher(realtime.PublishConfig{
			APIURL: cfg.Realtime.APIURL,
			APIKey: cfg.Realtime.APIKey,
		}, st, logger)
		defer publisher.Close()
		module.SetPublisher(publisher)
	}

	registry := core.NewModuleRegistry(st, logger)
	if err := registry.RegisterModule(module); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register AMM module")
	}
	if err := registry.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start module registry")
	}
	defer registry.Stop()

	emissions, err := scheduler.NewEmissionsScheduler(st, reader, cfg.Scheduler.EmissionsInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create emissions scheduler")
	}
	if err := emissions.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start emissions scheduler")
	}
	defer emissions.Stop()

	go func() {
		if err := streamLogs(ctx, client, registry, module, publisher, logger); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Log stream terminated")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}

	logger.Info().Msg("Indexer shutdown complete")
}

// streamLogs subscribes to the topics the registered modules filter on and
// feeds matching logs through the registry. Reconnects on subscription
// failure with a flat backoff.
func streamLogs(ctx context.Context, client *ethclient.Client, registry *core.ModuleRegistry, module *amm.Module, publisher *realtime.Publisher, logger zerolog.Logger) error {
	var topics []common.Hash
	for _, filter := range module.GetEventFilters() {
		if filter.Topic0 != "" {
			topics = append(topics, common.HexToHash(filter.Topic0))
		}
	}

	query := ethereum.FilterQuery{Topics: [][]common.Hash{topics}}

	for {
		logs := make(chan types.Log, 256)
		sub, err := client.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			logger.Warn().Err(err).Msg("Log subscription failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				continue
			}
		}

		logger.Info().Int("topics", len(topics)).Msg("Subscribed to event logs")

	stream:
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return ctx.Err()
			case err := <-sub.Err():
				logger.Warn().Err(err).Msg("Log subscription dropped, resubscribing")
				sub.Unsubscribe()
				break stream
			case log := <-logs:
				if publisher != nil {
					publisher.SetCurrentBlock(log.BlockNumber)
				}
				if err := registry.ProcessEvent(ctx, &log); err != nil {
					logger.Error().Err(err).Uint64("block", log.BlockNumber).Msg("Failed to process event")
				}
			}
		}
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}

	return logger
}
