package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/logging"
	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/startup"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/pgstore"
	"github.com/Ramsey-B/fern/pkg/dupqueue"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/intake"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/migration"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/store/memstore"
)

const (
	depDatabase = "database"
	depKafka    = "kafka"
	depGraph    = "graph"
)

// app is the dependency graph one command runs against.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	closers []func(context.Context) error

	db        database.DB
	store     store.Store
	producer  *kafka.Producer
	projector *graph.Projector

	emitter  *events.Emitter
	matcher  *matching.Engine
	merger   *merging.Engine
	queue    *dupqueue.Queue
	resolver *resolution.Resolver
	pipeline *migration.Pipeline
	intake   *intake.Service
}

// newApp loads configuration, installs tracing, starts database, kafka and
// graph in that order and wires the services on top.
func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, sync, err := logging.New(logging.Config{AppName: cfg.AppName, Level: cfg.LogLevel, PrettyLogs: cfg.PrettyLogs})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
	a.closers = append(a.closers, func(context.Context) error { return sync() })

	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName:  cfg.AppName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPProtocol: cfg.OTLPProtocol,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	var requires []string
	if flags.memory {
		mem := memstore.New()
		if flags.seed != "" {
			if err := loadSeed(ctx, mem, flags.seed); err != nil {
				return nil, err
			}
		}
		a.store = mem
	} else {
		a.startup.AddDependency(a.databaseDependency())
		requires = []string{depDatabase}
	}

	if cfg.KafkaProducerEnabled {
		a.startup.AddDependency(a.kafkaDependency(requires))
		requires = []string{depKafka}
	}
	if cfg.GraphProjectionEnabled {
		a.startup.AddDependency(a.graphDependency(requires))
	}

	if err := a.startup.Start(ctx); err != nil {
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) databaseDependency() startup.StartupDependency {
	return &startup.Func{
		Name: depDatabase,
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.Config{
				Driver:          a.cfg.DatabaseDriver,
				Host:            a.cfg.DatabaseHost,
				Port:            a.cfg.DatabasePort,
				User:            a.cfg.DatabaseUserName,
				Password:        a.cfg.DatabasePassword,
				Name:            a.cfg.DatabaseName,
				SSLMode:         a.cfg.DatabaseSSLMode,
				MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db
			a.store = pgstore.New(db, a.logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
}

func (a *app) kafkaDependency(requires []string) startup.StartupDependency {
	return &startup.Func{
		Name:     depKafka,
		Requires: requires,
		OnStart: func(context.Context) error {
			a.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaOutputTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	}
}

func (a *app) graphDependency(requires []string) startup.StartupDependency {
	var client *graph.Client
	return &startup.Func{
		Name:     depGraph,
		Requires: requires,
		OnStart: func(ctx context.Context) error {
			c, err := graph.NewClient(graph.Config{
				Host:     a.cfg.GraphDBHost,
				Port:     a.cfg.GraphDBPort,
				Username: a.cfg.GraphDBUser,
				Password: a.cfg.GraphDBPassword,
			}, a.logger)
			if err != nil {
				return err
			}
			if err := c.VerifyConnectivity(ctx); err != nil {
				_ = c.Close(ctx)
				return err
			}
			client = c
			a.projector = graph.NewProjector(c, a.logger)
			return a.projector.EnsureIndexes(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close(ctx)
		},
	}
}

func (a *app) wire() error {
	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}
	a.emitter = events.NewEmitter(publisher, a.logger)

	observers := []merging.Observer{a.emitter}
	if a.projector != nil {
		observers = append(observers, a.projector)
	}
	a.merger = merging.NewEngine(a.logger, a.store, observers...)

	matcher, err := matching.NewEngine(a.logger, a.store, matching.Config{
		LinkThreshold:      a.cfg.MatchLinkThreshold,
		ReviewFloor:        a.cfg.MatchReviewFloor,
		NearExactThreshold: a.cfg.MatchNearExactThreshold,
		MaxCandidates:      a.cfg.MatchMaxCandidates,
		PrefixLength:       matching.DefaultConfig().PrefixLength,
		BlockSize:          matching.DefaultConfig().BlockSize,
	})
	if err != nil {
		return err
	}
	a.matcher = matcher

	a.queue = dupqueue.NewQueue(a.logger, a.store, a.merger, a.emitter)
	a.resolver = resolution.NewResolver(a.logger, a.store, a.matcher, a.queue)

	pipeline, err := migration.NewPipeline(a.logger, a.store, a.resolver, a.emitter, migration.Config{WorkerCount: a.cfg.MigrationWorkerCount})
	if err != nil {
		return err
	}
	a.pipeline = pipeline
	a.intake = intake.NewService(a.logger, a.store, a.resolver, a.emitter)
	return nil
}

func (a *app) close(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](ctx)
	}
	return err
}

// withApp runs fn against a started app and always stops it.
func withApp(ctx context.Context, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

	ctx = reqctx.SetSource(ctx, "cli")
	if flags.actor != "" {
		ctx = reqctx.SetUserID(ctx, flags.actor)
	}
	return fn(ctx, a)
}
