// Command stratflowd runs the strategy execution service: the REST API,
// the run queue workers, and the chain connections they share.
package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"StratFlow-Chain/internal/api"
	"StratFlow-Chain/internal/compile"
	"StratFlow-Chain/internal/config"
	"StratFlow-Chain/internal/exec"
	"StratFlow-Chain/internal/observability/alerting"
	"StratFlow-Chain/internal/run"
	"StratFlow-Chain/internal/storage"
	"StratFlow-Chain/internal/storage/mysql"
	"StratFlow-Chain/internal/wallet"
	"StratFlow-Chain/internal/web3/ens"
	"StratFlow-Chain/internal/web3/provider"
	"StratFlow-Chain/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx); err != nil {
		log.Fatalf("stratflowd failed: %v", err)
	}
}

func runDaemon(ctx context.Context) error {
	configPath := os.Getenv("STRATFLOW_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "stratflow.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Exec: logger.ExecLogConfig{
			Enabled: cfg.Logging.ExecLogPath != "",
			Path:    cfg.Logging.ExecLogPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Runtime.DataDir != "" {
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return err
		}
	}

	strategies, err := openStrategyRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer strategies.Close()

	runStore, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer runStore.Close()

	runQueue, err := openRunQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := runQueue.Close(); err != nil {
			logger.L().Error("close run queue failed", slog.Any("error", err))
		}
	}()

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	reader, err := chainRegistry.DefaultReader()
	if err != nil {
		return err
	}
	defaultChain := chainRegistry.DefaultChain()
	chainID, ok := chainRegistry.ChainID(defaultChain)
	if !ok {
		return fmt.Errorf("default chain %s has no chain id", defaultChain)
	}
	nameReader, ensRegistry, err := chainRegistry.NameServiceReader()
	if err != nil {
		return err
	}

	walletClient, err := wallet.Dial(ctx, cfg.Web3.WalletRPCURL)
	if err != nil {
		return err
	}
	defer walletClient.Close()

	chainContext := compile.ChainContext{
		ChainID:      chainID,
		NativeSymbol: chainRegistry.NativeSymbol(defaultChain),
		Tokens:       chainRegistry.Tokens(),
		Resolver:     ens.NewResolver(nameReader, ensRegistry),
		Routers:      chainRegistry.Routers(defaultChain),
	}

	controller := exec.NewController(
		walletClient,
		exec.NewEvaluator(reader),
		chainContext,
		cfg.Web3.Account,
		exec.WithPollInterval(time.Duration(cfg.Executor.PollIntervalSeconds)*time.Second),
		exec.WithMaxPolls(cfg.Executor.MaxPolls),
		exec.WithRequireAtomic(cfg.Executor.RequireAtomic),
	)

	alerts, err := buildAlertDispatcher(cfg.Alerting)
	if err != nil {
		return err
	}

	runService := run.NewService(runStore, runQueue, cfg.Executor.MaxAttempts)
	processor := run.NewProcessor(controller, strategies, runStore, runQueue, runQueue,
		run.WithWorkerCount(cfg.Executor.Workers),
		run.WithProcessorLogger(logger.Named("run")),
		run.WithAlertDispatcher(alerts),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !stdErrors.Is(err, context.Canceled) {
			logger.L().Error("run processor exited", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, strategies, runService, cfg.Server.AuthToken)
	logger.L().Info("stratflowd listening",
		slog.String("address", cfg.Server.Address),
		slog.String("default_chain", defaultChain),
	)

	if err := server.Start(ctx); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStrategyRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	store := cfg.Storage.Strategies
	switch store.Driver {
	case "", "memory":
		return storage.NewMemoryRepository(), nil
	case "file":
		path := store.Path
		if path == "" {
			path = filepath.Join(cfg.Runtime.DataDir, "strategies.jsonl")
		}
		return storage.NewFileRepository(path)
	case "mysql":
		return mysql.NewStrategyRepository(ctx, mysql.Config{DSN: store.DSN})
	default:
		return nil, fmt.Errorf("unknown strategy store driver: %s", store.Driver)
	}
}

func buildAlertDispatcher(cfg config.AlertingConfig) (alerting.Dispatcher, error) {
	notifiers := make([]alerting.Notifier, 0, len(cfg.Channels))
	for _, channel := range cfg.Channels {
		switch alerting.Channel(channel) {
		case alerting.ChannelLog:
			notifiers = append(notifiers, alerting.NewLogNotifier())
		case alerting.ChannelEmail:
			if cfg.Email.SMTPAddr == "" || len(cfg.Email.To) == 0 {
				return nil, fmt.Errorf("email alert channel needs smtp_addr and recipients")
			}
			notifiers = append(notifiers, &alerting.EmailNotifier{
				Sender:        alerting.NewSMTPEmailSender(cfg.Email.SMTPAddr, cfg.Email.From, cfg.Email.Username, cfg.Email.Password),
				To:            cfg.Email.To,
				SubjectPrefix: cfg.Email.SubjectPrefix,
			})
		case alerting.ChannelSlack:
			if cfg.Slack.WebhookURL == "" {
				return nil, fmt.Errorf("slack alert channel needs a webhook_url")
			}
			notifiers = append(notifiers, &alerting.SlackNotifier{
				Sender:    alerting.NewWebhookSlackSender(cfg.Slack.WebhookURL),
				ChannelID: cfg.Slack.Channel,
			})
		default:
			return nil, fmt.Errorf("unknown alert channel: %s", channel)
		}
	}
	return alerting.NewFanout(notifiers...), nil
}

func openRunStore(cfg *config.Config) (run.Store, error) {
	switch cfg.Storage.Runs.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.Storage.Runs.DSN)
	default:
		return nil, fmt.Errorf("unknown run store driver: %s", cfg.Storage.Runs.Driver)
	}
}

func openRunQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(1024), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Key,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:   cfg.Queue.RabbitMQ.URL,
			Queue: cfg.Queue.RabbitMQ.Queue,
		})
	default:
		return nil, fmt.Errorf("unknown queue driver: %s", cfg.Queue.Driver)
	}
}
