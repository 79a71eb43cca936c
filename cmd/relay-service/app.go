package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"veritas/internal/analyzer"
	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/deduplication"
	"veritas/internal/fetcher"
	"veritas/internal/filtering"
	"veritas/internal/logger"
	"veritas/internal/reply"
	"veritas/internal/router"
	"veritas/internal/sender"
	"veritas/internal/webhook"
	"veritas/pkg/bootstrap"
	"veritas/pkg/health"
	"veritas/pkg/metrics"
	"veritas/pkg/middleware"
	"veritas/pkg/migrations"
	"veritas/pkg/ratelimit"
	"veritas/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	db             *sql.DB
	mongo          *mongo.Client
	dedup          *deduplication.Service
	router         *router.Router
	filter         *filtering.Service
	limiter        *ratelimit.Limiter
	healthRegistry *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:           bootstrap.NewBase(cfg, log),
		dbConnector:    bootstrap.NewDatabaseConnector(cfg, log),
		healthRegistry: health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	repo, err := a.initDedupStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dedup store: %w", err)
	}
	store := deduplication.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
	if breaker, ok := store.(*deduplication.CircuitBreakerRepository); ok {
		a.healthRegistry.RegisterOptional(health.NewCheckerFunc("dedup_circuit_breaker", func(context.Context) error {
			if state := breaker.State(); state == "open" {
				return fmt.Errorf("dedup store circuit breaker is %s", state)
			}
			return nil
		}))
	}
	a.dedup = deduplication.NewService(store, a.Config.Deduplication, a.Logger)

	if a.BrokerEnabled() {
		if err := a.InitBroker(constants.ServiceName, a.Config.Broker.Kafka.InputTopic != ""); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	filter, err := filtering.NewService(a.Config.Filtering, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize filtering: %w", err)
	}
	a.filter = filter
	a.Logger.InfowCtx(ctx, "Ingress filter loaded", "ignore_rules", filter.RuleCount())

	a.initHTTPServer()
	return nil
}

func (a *App) initDedupStore(ctx context.Context) (deduplication.Repository, error) {
	switch a.Config.Deduplication.Store {
	case constants.StoreTypeMemory, "":
		return deduplication.NewMemoryRepository(), nil

	case constants.StoreTypeRedis:
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		a.healthRegistry.Register(health.NewRedisChecker(rdb))
		return deduplication.NewRedisRepository(rdb), nil

	case constants.StoreTypePostgres:
		db, err := a.dbConnector.InitPostgreSQL(ctx)
		if err != nil {
			return nil, err
		}
		a.db = db
		if a.Config.Database.RunMigrations {
			if err := migrations.RunPostgres(db); err != nil {
				return nil, err
			}
		}
		a.healthRegistry.Register(health.NewPostgreSQLChecker(db))
		return deduplication.NewPostgresRepository(db, migrations.PostgresTable), nil

	case constants.StoreTypeMongoDB:
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		mongoCfg := a.Config.Database.MongoDB
		if mongoCfg.Database == "" {
			mongoCfg.Database = constants.DefaultMongoDBName
		}
		if mongoCfg.Collection == "" {
			mongoCfg.Collection = constants.DefaultDedupCollection
		}
		db := client.Database(mongoCfg.Database)
		if a.Config.Database.RunMigrations {
			if err := migrations.EnsureMongoDedupCollection(ctx, db, mongoCfg.Collection, a.Config.Deduplication.Retention); err != nil {
				return nil, err
			}
		}
		a.healthRegistry.Register(health.NewMongoDBChecker(client))
		return deduplication.NewMongoRepository(db, mongoCfg.Collection), nil

	default:
		return nil, fmt.Errorf("unknown dedup store: %q", a.Config.Deduplication.Store)
	}
}

func (a *App) initRouter(ctx context.Context) error {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	formatter, err := reply.NewFormatter(a.Config.Reply)
	if err != nil {
		return err
	}

	out, err := sender.New(a.Config, a.Producer, client, a.Logger)
	if err != nil {
		return err
	}

	analyzers := analyzer.NewSet(a.Config.Analyzers, a.Config.CircuitBreaker, client, a.Logger)

	a.router = router.New(router.OptionsFromConfig(a.Config), router.Deps{
		Dedup:     a.dedup,
		Fetcher:   fetcher.New(a.Config.Fetch, a.Config.WhatsApp, client, a.Logger),
		Text:      analyzers.Text,
		Media:     analyzers.Media,
		Formatter: formatter,
		Sender:    out,
		Logger:    a.Logger,
	})

	a.Logger.InfowCtx(ctx, "Router initialized",
		"dedup_store", a.dedup.StoreName(),
		"sender", out.Name(),
		"max_in_flight", a.Config.Router.MaxInFlight,
	)
	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(a.Logger),
		middleware.RequestIDMiddleware(),
		tracing.GinMiddleware(constants.ServiceName),
		middleware.LoggerMiddleware(a.Logger),
	)

	var webhookMiddleware []gin.HandlerFunc
	if a.Config.RateLimit.Enabled {
		a.limiter = ratelimit.New(ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: a.Config.RateLimit.CleanupInterval,
			MaxAge:          a.Config.RateLimit.MaxAge,
		})
		webhookMiddleware = append(webhookMiddleware, a.limiter.Middleware())
	}

	webhook.NewHandler(a.Config.WhatsApp, a.Config.Webhook, a.router, a.filter, a.Logger).
		RegisterRoutes(engine, webhookMiddleware...)

	engine.GET("/health", a.healthRegistry.Handler())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      engine,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// ListenAndServe only returns once Shutdown is called.
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.dedup.RunSweeper(gCtx)
	})

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.Run(gCtx)
			return nil
		})
	}

	if a.Consumer != nil {
		ingest := newIngestHandler(a.router, a.filter, a.Logger)
		inputTopic := a.Config.Broker.Kafka.InputTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting inbound event consumer", "topic", inputTopic)
			return a.Consumer.Consume(gCtx, inputTopic, ingest.Handle)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down relay service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
			cancel()
		}

		if a.router != nil {
			drainCtx, cancel := context.WithTimeout(ctx, a.Config.Router.DrainTimeout)
			if err := a.router.Shutdown(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("router drain error: %w", err))
			}
			cancel()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
