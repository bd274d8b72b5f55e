package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/telhawk-systems/pktwatch/internal/config"
	"github.com/telhawk-systems/pktwatch/internal/logging"
	"github.com/telhawk-systems/pktwatch/internal/messaging"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/repository"
	"github.com/telhawk-systems/pktwatch/internal/statsstore"
	"github.com/telhawk-systems/pktwatch/internal/storage"
)

// sinkFlags turn sinks on for a single run on top of what the config enables.
type sinkFlags struct {
	publish bool
	store   bool
	index   bool
	persist bool
}

func (s *sinkFlags) register(f *pflag.FlagSet) {
	f.BoolVar(&s.publish, "publish", false, "publish threats and the run summary to NATS")
	f.BoolVar(&s.store, "store", false, "add the run's counters to Redis")
	f.BoolVar(&s.index, "index", false, "bulk-index records into OpenSearch")
	f.BoolVar(&s.persist, "persist", false, "save the run to PostgreSQL")
}

// openSinks connects every enabled sink. The returned close func is always
// safe to call, also after an error.
func openSinks(ctx context.Context, cfg *config.Config, flags sinkFlags, logger *logging.Logger) ([]pipeline.Sink, func(), error) {
	var (
		sinks   []pipeline.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]pipeline.Sink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if flags.publish || cfg.NATS.Enabled {
		if cfg.NATS.URL == "" {
			return fail(fmt.Errorf("nats: %w: nats.url is empty", pipeline.ErrSinkDisabled))
		}
		mc := messaging.DefaultConfig()
		mc.URL = cfg.NATS.URL
		mc.MaxReconnects = cfg.NATS.MaxReconnects
		mc.ReconnectWait = cfg.NATS.ReconnectWait
		client, err := messaging.NewClient(mc, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client.Close)
		sinks = append(sinks, messaging.NewThreatSink(client, cfg.NATS.SubjectPrefix, cfg.Analyzer.TopN))
	}

	if flags.store || cfg.Redis.Enabled {
		if cfg.Redis.URL == "" {
			return fail(fmt.Errorf("redis: %w: redis.url is empty", pipeline.ErrSinkDisabled))
		}
		store, err := statsstore.NewStore(cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = store.Close() })
		sinks = append(sinks, store)
	}

	if flags.index || cfg.OpenSearch.Enabled {
		if cfg.OpenSearch.URL == "" {
			return fail(fmt.Errorf("opensearch: %w: opensearch.url is empty", pipeline.ErrSinkDisabled))
		}
		client, err := storage.NewClient(storage.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
		}, logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, client)
	}

	if flags.persist || cfg.Database.Enabled {
		repo, err := openRepository(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, repo.Close)
		sinks = append(sinks, repo)
	}

	return sinks, closeAll, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*repository.PostgresRepository, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("postgres: %w: database.url is empty", pipeline.ErrSinkDisabled)
	}
	if cfg.Database.Migrate {
		if err := repository.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		logger.Debug("database migrations applied")
	}
	return repository.NewPostgresRepository(ctx, cfg.Database.URL)
}
