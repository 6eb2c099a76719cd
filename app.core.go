package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger      *zap.Logger
	config      *Config
	server      *http.Server
	pool        *pgxpool.Pool
	redisClient *redis.Client
	cleanups    []func()
	workers     []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// ensure the logs folder exists and setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{logger: logger, config: config}
	app.cleanups = append(app.cleanups,
		func() {
			if ferr := flusher(); ferr != nil {
				fmt.Println("error during logs flushing: ", ferr)
			}
		},
		func() {
			if cerr := logWriter.Close(); cerr != nil {
				fmt.Println("error during closing of log file: ", cerr)
			}
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	// Setup the relational storage.
	pool, err := GetPostgresPool(ctx, &config.Postgres)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to connect to postgres server: %s", err)
	}
	app.pool = pool
	pgStorage := NewPostgresBookStorage(logger, pool, config.Postgres.TableName)
	if err = pgStorage.EnsureSchema(ctx); err != nil {
		pool.Close()
		app.Clean()
		return nil, fmt.Errorf("failed to prepare books table: %s", err)
	}

	// Setup the change feed and its archive consumer when enabled.
	var queue Queuer = NewNoopQueue()
	var archive BookArchive
	if config.Events.Enable {
		redisClient, rerr := GetRedisClient(ctx, &config.Redis)
		if rerr != nil {
			pool.Close()
			app.Clean()
			return nil, fmt.Errorf("failed to connect to redis server: %s", rerr)
		}
		app.redisClient = redisClient

		boltClient, berr := GetBoltDBClient(&config.BoltDB)
		if berr != nil {
			pool.Close()
			_ = redisClient.Close()
			app.Clean()
			return nil, fmt.Errorf("failed to open archive database: %s", berr)
		}
		boltArchive := NewBoltBookArchive(logger, &config.BoltDB, boltClient)
		archive = boltArchive
		app.cleanups = append([]func(){func() {
			if cerr := boltArchive.Close(); cerr != nil {
				logger.Error("failed to close archive database", zap.Error(cerr))
			}
		}}, app.cleanups...)

		redisQueue := NewRedisQueue(redisClient)
		queue = redisQueue
		consumer := NewArchiveConsumer(logger, clock, redisQueue, boltArchive)
		app.workers = append(app.workers, func(ctx context.Context) error {
			return consumer.Consume(ctx, EventsQueue)
		})
	}

	accounts, err := NewAccounts(config.Auth.Accounts, config.Auth.BcryptCost)
	if err != nil {
		app.closeClients()
		app.Clean()
		return nil, fmt.Errorf("failed to setup accounts: %s", err)
	}

	bookService := NewBookService(logger, clock, pgStorage, queue)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		accounts,
		DefaultAccessPolicy(),
		bookService,
		archive,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	limiter := NewRateLimiter(logger, clock, &config.RateLimit)
	if limiter != nil {
		app.workers = append(app.workers, limiter.Sweep)
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks(limiter)

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           config.Server.Host + ":" + config.Server.Port,
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	return app, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.RunWorkers(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.Bool("app.events", app.config.Events.Enable),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		app.closeClients()
		return nil
	}
}

// RunWorkers runs the queue consumers and the rate limiter sweeper into separate controlled goroutines.
func (app *App) RunWorkers(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, work := range app.workers {
			work := work
			g.Go(func() error {
				return work(gCtx)
			})
		}
		return nil
	}
}

// closeClients releases the connections to the remote stores.
func (app *App) closeClients() {
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("failed to close redis client", zap.Error(err))
		}
	}
	if app.pool != nil {
		app.pool.Close()
	}
}
