package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/collector"
	"github.com/blockedby/telememo/internal/config"
	"github.com/blockedby/telememo/internal/database"
	"github.com/blockedby/telememo/internal/logger"
	"github.com/blockedby/telememo/internal/nats"
	"github.com/blockedby/telememo/internal/publisher"
	"github.com/blockedby/telememo/internal/repository"
	"github.com/blockedby/telememo/internal/telegram"
)

// app holds what the commands share. Everything past the config is opened on first use.
type app struct {
	cfg *config.Config
	log *logger.Logger

	dbFlag       string
	logLevelFlag string

	db     *database.DB
	tg     *telegram.Manager
	client *telegram.Client
	nc     *nats.Client
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "telememo",
		Short:         "Dump Telegram channels into a local database and keep them in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.SetFlagErrorFunc(flagError)
	root.PersistentFlags().StringVar(&a.dbFlag, "db", "", "database file path or postgres:// URL (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newDumpCmd(a),
		newSyncCmd(a),
		newInfoCmd(a),
		newSearchCmd(a),
		newShowCmd(a),
		newRunsCmd(a),
		newLoginCmd(a),
		newServeCmd(a),
		newEventsCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbFlag != "" {
		if database.IsPostgresURL(a.dbFlag) {
			cfg.DatabaseURL = a.dbFlag
		} else {
			cfg.DatabaseURL = ""
			cfg.DatabasePath = a.dbFlag
		}
	}
	if a.logLevelFlag != "" {
		cfg.LogLevel = a.logLevelFlag
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = logger.Get()
	return nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.tg != nil {
		a.tg.Stop()
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) store(ctx context.Context) (*repository.Store, error) {
	if a.db == nil {
		dsn := a.cfg.DatabaseURL
		if dsn == "" {
			dsn = a.cfg.DatabasePath
		}
		db, err := database.Open(ctx, dsn, a.log)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	return repository.NewStore(a.db.GORM), nil
}

// telegram restores the stored session. With requireReady the command fails unless a session exists.
func (a *app) telegram(ctx context.Context, requireReady bool) (*telegram.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	sessions, err := telegram.OpenSessionDB(a.cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	a.tg = telegram.NewManager(a.cfg, sessions)
	if err := a.tg.Init(ctx); err != nil {
		return nil, err
	}
	if requireReady && a.tg.GetStatus() != telegram.StatusReady {
		return nil, fmt.Errorf("%w: not logged in, run `telememo login` first", telegram.ErrUnavailable)
	}

	a.client = telegram.NewClient(a.tg, telegram.NewRateLimiter(a.cfg.TGRateLimitRPS, 1))
	return a.client, nil
}

// publisher connects to NATS when configured. Failing to connect disables publishing.
func (a *app) publisher(ctx context.Context) collector.EventPublisher {
	if a.cfg.NatsURL == "" {
		return nil
	}
	nc, err := nats.New(ctx, a.cfg.NatsURL)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		return nil
	}
	if err := nc.EnsureStream(ctx, nats.StreamName, []string{nats.SubjectAll}); err != nil {
		a.log.Warn().Err(err).Msg("failed to ensure nats stream, publishing disabled")
		nc.Close()
		return nil
	}
	a.nc = nc
	return publisher.NewNATSPublisher(nc)
}

func (a *app) serviceConfig() collector.Config {
	return collector.Config{
		PageSize:           a.cfg.SyncPageSize,
		MaxThrottleRetries: a.cfg.SyncMaxThrottleRetries,
	}
}

// manager wires the remote client, the store and the publisher into a collector manager.
func (a *app) manager(ctx context.Context, requireReady bool) (*collector.Manager, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.telegram(ctx, requireReady)
	if err != nil {
		return nil, err
	}
	svc := collector.NewService(client, store, a.publisher(ctx), a.serviceConfig(), a.log)
	return collector.NewManager(svc), nil
}

// local returns a service for commands that only read the store.
func (a *app) local(ctx context.Context) (*collector.Service, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return collector.NewService(nil, store, nil, a.serviceConfig(), a.log), nil
}
