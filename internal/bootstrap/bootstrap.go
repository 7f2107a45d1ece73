package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	httpadapter "github.com/dmkorolev/imageflow/internal/adapters/http"
	"github.com/dmkorolev/imageflow/internal/config"
	"github.com/dmkorolev/imageflow/internal/core/usecase"
	"github.com/dmkorolev/imageflow/internal/infrastructure/classify"
	"github.com/dmkorolev/imageflow/internal/infrastructure/converter"
	natsqueue "github.com/dmkorolev/imageflow/internal/infrastructure/queue/nats"
	"github.com/dmkorolev/imageflow/internal/infrastructure/report"
	"github.com/dmkorolev/imageflow/internal/infrastructure/repository/postgres"
	"github.com/dmkorolev/imageflow/internal/infrastructure/resilience"
	"github.com/dmkorolev/imageflow/internal/infrastructure/storage/localfs"
	"github.com/dmkorolev/imageflow/internal/observability/metrics"
)

const serviceName = "importd"

// App wires every adapter behind the pipeline use cases and owns their
// lifecycles.
type App struct {
	Config config.Config

	Handler        http.Handler
	MetricsHandler http.Handler

	Submitter  *usecase.SubmitBatchUseCase
	Controller *usecase.PipelineController
	Queue      *natsqueue.Queue

	db *sql.DB
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	groups := postgres.NewGroupRepository(db)
	items := postgres.NewItemRepository(db)
	if err := groups.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rules, err := classify.LoadRules(cfg.ClassifierRulesPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	classifier, err := classify.New(rules)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect queue: %w", err)
	}

	converterClient := converter.NewClient(cfg.ConverterURL, converter.ClientOptions{
		Timeout:            time.Duration(cfg.ConverterTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
		RateLimit:          rate.Limit(cfg.ConverterRateRPS),
		RateBurst:          cfg.ConverterRateBurst,
	})
	gateway := converter.NewGateway(storage, converterClient, converter.GatewayOptions{
		QuietWindow: time.Duration(cfg.StallQuietSeconds) * time.Second,
		HardCeiling: time.Duration(cfg.TransferCeilingSecs) * time.Second,
	})

	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)

	registry := usecase.NewSessionRegistry()
	resolver := usecase.NewGroupResolver(groups, pipelineMetrics)
	committer := usecase.NewCommitCoordinator(resolver, items, pipelineMetrics)
	reporter := report.NewExcelReporter(storage)

	controller := usecase.NewPipelineController(
		registry, gateway, resolver, committer, reporter, pipelineMetrics, logger,
	)
	submitter := usecase.NewSubmitBatchUseCase(registry, storage, queue, classifier, cfg.Concurrency)

	router := httpadapter.NewRouter(cfg, submitter, controller, func(next http.Handler) http.Handler {
		return httpMetrics.Middleware(serviceName, next)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", httpMetrics.Handler())
	metricsMux.Handle("/metrics/pipeline", pipelineMetrics.Handler())

	return &App{
		Config:         cfg,
		Handler:        router.Handler(),
		MetricsHandler: metricsMux,
		Submitter:      submitter,
		Controller:     controller,
		Queue:          queue,
		db:             db,
	}, nil
}

func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
