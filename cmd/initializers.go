package main

import (
	"fmt"
	"net/http"
	"time"

	"floortrack/app/handler"
	"floortrack/app/router"
	"floortrack/internal/aggregate"
	"floortrack/internal/anomaly"
	"floortrack/internal/realtime"
	"floortrack/internal/schedule"
	"floortrack/internal/service"
	"floortrack/internal/tracking"
	"floortrack/pkg/config"
	"floortrack/pkg/logger"
	asynqq "floortrack/pkg/queue/asynq"
	mysqlstore "floortrack/pkg/store/mysql"
	redisstore "floortrack/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(dsn)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initQueue initializes the write retry queue
func (app *Application) initQueue() error {
	mgr, err := asynqq.NewManager(app.config)
	if err != nil {
		return err
	}

	app.queueMgr = mgr
	app.registerCleanup(func() {
		mgr.Close()
		logger.InfoCtx(app.ctx, "Retry queue client has been closed")
	})

	return nil
}

// initEngine initializes the tracking engine components
func (app *Application) initEngine() error {
	resolver, err := schedule.NewResolver(app.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	app.resolver = resolver

	zones, err := app.mysqlRepo.Zone.List(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to load zones: %w", err)
	}
	cameras, err := app.mysqlRepo.Zone.ListCameras(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to load cameras: %w", err)
	}
	logger.InfoCtx(app.ctx, "loaded %d zones across %d cameras", len(zones), len(cameras))

	app.tracker = tracking.NewZoneTracker()
	app.sessions = tracking.NewSessionManager(resolver, app.config.Tracking)
	app.aggregator = aggregate.New(resolver, app.config.Tracking)
	app.detector = anomaly.NewDetector(app.config.Anomaly, zones)
	app.publisher = realtime.NewPublisher(app.config.Realtime.SubscriberQueueSize)

	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.alertService = service.NewAlertService(app.mysqlRepo, app.publisher, app.detector)

	app.trackingService = service.NewTrackingService(
		*app.config,
		app.resolver,
		app.tracker,
		app.sessions,
		app.aggregator,
		app.detector,
		app.publisher,
		app.mysqlRepo,
		app.queueMgr,
		app.alertService,
	)

	snapshotCache := redisstore.NewSnapshotRepository(app.redisClient)
	app.snapshotService = service.NewSnapshotService(
		app.tracker,
		app.sessions,
		app.aggregator,
		app.resolver,
		app.publisher,
		app.mysqlRepo,
		snapshotCache,
	)

	return nil
}

// initStateRecovery replays today's persisted rows into the in-memory
// aggregates so a restart does not zero out the dashboard mid-shift.
func (app *Application) initStateRecovery() error {
	return app.trackingService.RecoverState(app.ctx, time.Now())
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.ingestHandler = handler.NewIngestHandler(app.trackingService)
	app.dashboardHandler = handler.NewDashboardHandler(app.snapshotService, app.trackingService, app.alertService, app.resolver)
	app.streamHandler = handler.NewStreamHandler(app.publisher)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()

	r := router.NewRouter(app.ingestHandler, app.dashboardHandler, app.streamHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:      app.ginEngine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoint needs no write deadline
	}

	return nil
}
