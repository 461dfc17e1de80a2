package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eamcrm/internal/auth"
	"eamcrm/internal/config"
	"eamcrm/internal/events"
	"eamcrm/internal/httpserver"
	"eamcrm/internal/httpserver/handlers"
	"eamcrm/internal/logger"
	"eamcrm/internal/metrics"
	"eamcrm/internal/models"
	"eamcrm/internal/seed"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()
	lg = lg.With("service", cfg.ServiceName)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		lg.Fatalw("db handle failed", "error", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnLifetime)

	ctx := context.Background()
	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	if err := seed.All(ctx, db, lg, cfg.SeedAdminEmail, cfg.SeedAdminPass); err != nil {
		lg.Fatalw("seed failed", "error", err)
	}

	pub := newPublisher(cfg, lg)
	defer pub.Close()

	env := &handlers.Env{
		DB:      db,
		Log:     lg,
		Issuer:  auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn),
		Events:  pub,
		Metrics: metrics.New(),
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpserver.NewRouter(env),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		lg.Infow("listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("http server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	lg.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Errorw("graceful shutdown failed", "error", err)
	}
}

// newPublisher returns the RabbitMQ publisher, or a no-op one when
// AMQP_URL is unset.
func newPublisher(cfg config.Config, lg *zap.SugaredLogger) events.Publisher {
	if cfg.AMQPURL == "" {
		lg.Infow("AMQP_URL not set, domain events disabled")
		return events.Nop{}
	}
	pub, err := events.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, lg)
	if err != nil {
		lg.Fatalw("amqp connect failed", "error", err)
	}
	return pub
}
