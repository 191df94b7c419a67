// Package server initializes and runs the authsync server.
// It wires the account store, the lifecycle event bus, the account service
// and the HTTP endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/auth"
	"github.com/dmitrijs2005/authsync/internal/server/config"
	"github.com/dmitrijs2005/authsync/internal/server/events"
	"github.com/dmitrijs2005/authsync/internal/server/events/kafkabus"
	"github.com/dmitrijs2005/authsync/internal/server/events/membus"
	"github.com/dmitrijs2005/authsync/internal/server/httpapi"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authsync/internal/server/services"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	manager    repomanager.RepositoryManager
	publisher  events.Publisher
	consumer   *events.Consumer
	httpServer *httpapi.HTTPServer
}

// NewApp validates c and builds every component. Configuration faults, such
// as a missing signing secret, are returned before anything is opened.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(c.LogFormat, os.Stdout)

	issuer, err := auth.NewTokenIssuer(c.SecretKey, c.TokenIssuer, c.TokenAudience, c.TokenValidityDuration)
	if err != nil {
		return nil, err
	}

	manager, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, err
	}

	publisher, source := newEventBus(c, logger)

	svc := services.NewAccountService(manager, auth.NewPasswordHasher(c.BcryptCost), issuer, publisher, logger, c.PublishTimeout)
	consumer := events.NewConsumer(source, events.DeletionHandler(svc, logger.With("module", "deletion_handler")), logger)

	return &App{
		config:     c,
		logger:     logger,
		manager:    manager,
		publisher:  publisher,
		consumer:   consumer,
		httpServer: httpapi.NewHTTPServer(c.HTTPAddr, logger, svc, c.ShutdownTimeout),
	}, nil
}

func newRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	if c.Storage == config.StorageMemory {
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.DatabaseTimeout)
	defer cancel()

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func newEventBus(c *config.Config, logger logging.Logger) (events.Publisher, events.Source) {
	if c.Broker == config.BrokerMemory {
		broker := membus.NewBroker()
		return membus.NewPublisher(broker, c.CreatedQueue), membus.NewSource(broker, c.DeletedQueue)
	}

	kc := kafkabus.Config{
		Brokers:      c.KafkaBrokers,
		GroupID:      c.ConsumerGroup,
		DialTimeout:  c.BrokerTimeout,
		WriteTimeout: c.PublishTimeout,
	}
	return kafkabus.NewPublisher(kc, c.CreatedQueue, logger), kafkabus.NewSource(kc, c.DeletedQueue, logger)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is canceled, a termination signal arrives or the
// HTTP server fails. The consumer is stopped before the publisher and the
// store are closed.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	connectCtx, connectCancel := context.WithTimeout(ctx, app.config.BrokerTimeout)
	if err := app.publisher.Connect(connectCtx); err != nil {
		app.logger.Error(ctx, "Publisher unavailable, AccountCreated events will be skipped", "error", err)
	}
	connectCancel()

	if err := app.consumer.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("start consumer: %w", err), app.close(ctx))
	}

	var (
		wg      sync.WaitGroup
		httpErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		httpErr = app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()
	wg.Wait()

	app.logger.Info(ctx, "Shutting down...")
	return errors.Join(httpErr, app.close(ctx))
}

func (app *App) close(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	abandoned := false
	if err := app.consumer.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop consumer: %w", err))
		abandoned = errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	}
	if err := app.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}

	// A handler still running past the deadline keeps using the store.
	// Its message was never acknowledged and will be delivered again.
	if abandoned {
		app.logger.Warn(ctx, "Deletion handler still running, leaving store open")
		return errors.Join(errs...)
	}
	if err := app.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
