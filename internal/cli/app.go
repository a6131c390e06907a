package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/adapters/natskv"
	otelexp "github.com/emiliopalmerini/splitlab/internal/adapters/otel"
	"github.com/emiliopalmerini/splitlab/internal/adapters/turso"
	"github.com/emiliopalmerini/splitlab/internal/assignment"
	"github.com/emiliopalmerini/splitlab/internal/cache"
	"github.com/emiliopalmerini/splitlab/internal/infrastructure/config"
	"github.com/emiliopalmerini/splitlab/internal/ports"
	"github.com/emiliopalmerini/splitlab/internal/relay"
	"github.com/emiliopalmerini/splitlab/internal/results"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config *config.Service
	Log    zerolog.Logger
	DB     *sql.DB

	ExperimentRepo *turso.ExperimentRepository
	AssignmentRepo *turso.AssignmentRepository
	EventRepo      *turso.EventRepository
	ResultsRepo    *turso.ResultsRepository

	Assignments *assignment.Service
	Results     *results.Service
	Relay       ports.EventRelay
	Metrics     ports.AssignmentMetrics

	natsConn *nats.Conn
	queue    *relay.Queue
	ingestor *relay.Ingestor
}

// NewAppContext creates an AppContext with all dependencies initialized.
func NewAppContext(ctx context.Context) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	db, err := turso.NewDB(cfg.DatabaseURL, cfg.DatabaseAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	app := &AppContext{
		Config:         cfg,
		Log:            log,
		DB:             db,
		ExperimentRepo: turso.NewExperimentRepository(db),
		AssignmentRepo: turso.NewAssignmentRepository(db),
		EventRepo:      turso.NewEventRepository(db),
		ResultsRepo:    turso.NewResultsRepository(db),
	}

	cacheBackend, err := app.initCacheBackend(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cacheClient := cache.NewClient(cacheBackend, cfg.ExperimentCacheTTL, cfg.AssignmentCacheTTL, log)

	app.Metrics, err = app.initMetrics(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app.Assignments = assignment.NewService(
		app.ExperimentRepo,
		app.AssignmentRepo,
		cacheClient,
		assignment.NewSelector(),
		app.Metrics,
		log,
	)
	app.Results = results.NewService(app.ExperimentRepo, app.ResultsRepo, log)

	if err := app.initRelay(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return app, nil
}

func (a *AppContext) initCacheBackend(ctx context.Context) (ports.CacheBackend, error) {
	if a.Config.NATSURL == "" {
		a.Log.Info().Msg("no NATS URL configured, using in-process cache backend")
		return cache.NewMemoryBackend(), nil
	}

	nc, js, err := a.connectNATS()
	if err != nil {
		// The cache must tolerate total unavailability; fall back to the
		// in-process backend rather than refusing to start.
		a.Log.Warn().Err(err).Msg("NATS unreachable, falling back to in-process cache backend")
		return cache.NewMemoryBackend(), nil
	}
	backend, err := natskv.NewBackend(ctx, js, "splitlab-cache",
		a.Config.ExperimentCacheTTL, a.Config.AssignmentCacheTTL)
	if err != nil {
		nc.Close()
		a.natsConn = nil
		a.Log.Warn().Err(err).Msg("JetStream KV unavailable, falling back to in-process cache backend")
		return cache.NewMemoryBackend(), nil
	}
	return backend, nil
}

func (a *AppContext) initMetrics(ctx context.Context) (ports.AssignmentMetrics, error) {
	if a.Config.OTELEndpoint == "" {
		return otelexp.NewNoOpExporter(), nil
	}
	exporter, err := otelexp.NewExporter(ctx, otelexp.Config{
		Endpoint: a.Config.OTELEndpoint,
		Insecure: a.Config.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics exporter: %w", err)
	}
	return exporter, nil
}

func (a *AppContext) initRelay(ctx context.Context) error {
	if a.natsConn != nil {
		js, err := jetstream.New(a.natsConn)
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		publisher, err := relay.NewPublisher(ctx, js, a.Metrics, a.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		ingestor, err := relay.NewIngestor(ctx, js, a.EventRepo, a.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize event ingestor: %w", err)
		}
		a.Relay = publisher
		a.ingestor = ingestor
		return nil
	}

	a.queue = relay.NewQueue(a.EventRepo, a.Config.RelayBufferSize, a.Metrics, a.Log)
	a.Relay = a.queue
	return nil
}

func (a *AppContext) connectNATS() (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(a.Config.NATSURL)
	if err != nil {
		return nil, nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	a.natsConn = nc
	return nc, js, nil
}

// StartIngestor begins consuming relayed events when the NATS relay is in
// use. No-op for the in-process queue, which needs no separate consumer.
func (a *AppContext) StartIngestor() error {
	if a.ingestor == nil {
		return nil
	}
	return a.ingestor.Start()
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.ingestor != nil {
		a.ingestor.Stop()
	}
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	if a.Metrics != nil {
		_ = a.Metrics.Close(ctx)
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
