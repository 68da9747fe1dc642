// Command broker runs the on-demand RTSP-to-RTMP transcoding broker: the
// HTTP facade, the session registry, and the idle reaper, wired together
// per the configuration file.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"

	"github.com/kestrelstream/broker/internal/api"
	"github.com/kestrelstream/broker/internal/audit"
	"github.com/kestrelstream/broker/internal/cache"
	"github.com/kestrelstream/broker/internal/config"
	"github.com/kestrelstream/broker/internal/driver"
	"github.com/kestrelstream/broker/internal/events"
	"github.com/kestrelstream/broker/internal/logging"
	"github.com/kestrelstream/broker/internal/origin"
	"github.com/kestrelstream/broker/internal/reaper"
	"github.com/kestrelstream/broker/internal/registry"
	"github.com/kestrelstream/broker/internal/tracing"
	"github.com/kestrelstream/broker/pkg/models"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to initialize logger")
	}

	var tracerCloser io.Closer
	if cfg.Tracing.Enabled() {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("failed to initialize tracer: %v", err)
		}
		tracerCloser = closer
	} else {
		opentracing.SetGlobalTracer(opentracing.NoopTracer{})
	}
	if tracerCloser != nil {
		defer tracerCloser.Close()
	}

	originHost, err := origin.Host(cfg.SRS.APIURL)
	if err != nil {
		logger.Fatalf("failed to derive origin host from srs.api_url: %v", err)
	}

	d := driver.New(driver.Config{BinPath: cfg.Transcoder.BinPath}, logger.Raw())
	reg := registry.New(d, originHost, logger.Raw())

	var probe = origin.Prober(origin.New(cfg.SRS.APIURL))

	var rdb *cache.Cache
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		probe = cache.NewCachingProbe(probe, rdb, time.Second)
		reg = reg.WithLocker(rdb)
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled() {
		publisher, err = events.New(cfg.Events.AMQPURL, cfg.Events.Exchange, logger.Raw())
		if err != nil {
			logger.Fatalf("failed to connect to amqp: %v", err)
		}
		defer publisher.Close()
	}

	var auditSink *audit.Sink
	if cfg.Audit.Enabled() {
		auditSink, err = audit.New(audit.Config{
			Host: cfg.Audit.Host, Port: cfg.Audit.Port, User: cfg.Audit.User,
			Password: cfg.Audit.Password, DBName: cfg.Audit.DBName, SSLMode: cfg.Audit.SSLMode,
		})
		if err != nil {
			logger.Fatalf("failed to connect to audit database: %v", err)
		}
		defer auditSink.Close()
	}

	if publisher != nil || auditSink != nil {
		reg = reg.WithEvents(fanOutSink{publisher: publisher, audit: auditSink})
	}

	r := reaper.New(reg, cfg.Reaper.Interval, cfg.Reaper.IdleThreshold, logger.Raw())

	facade := api.NewFacade(reg, probe, cfg, logger)
	router := api.NewRouter(facade, cfg, logger, "web/static")

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	reaperCtx, cancelReaper := context.WithCancel(context.Background())
	go r.Run(reaperCtx)

	go func() {
		logger.Infof("starting broker on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelReaper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	reg.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// fanOutSink publishes every lifecycle event to both the AMQP exchange and
// the audit table, when each is configured.
type fanOutSink struct {
	publisher *events.Publisher
	audit     *audit.Sink
}

func (f fanOutSink) Publish(ctx context.Context, event models.SessionEvent) {
	if f.publisher != nil {
		f.publisher.Publish(ctx, event)
	}
	if f.audit != nil {
		f.audit.Record(ctx, event)
	}
}
