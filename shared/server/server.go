// Package server holds the bootstrapping every service binary shares.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/utils"
	"github.com/julis-sh/intranet/shared/validation"
)

// shutdownTimeout bounds the drain of in-flight requests
const shutdownTimeout = 30 * time.Second

// Init loads .env and the configuration, configures logging and validation
// and opens the migrated database
func Init() (*config.AppConfig, *gorm.DB, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	config.SetupLogging(cfg)

	if err := validation.Setup(); err != nil {
		return nil, nil, err
	}

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Migrate(db); err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// Sessions connects the token denylist. Without Redis the services keep
// working and logged out tokens stay valid until they expire.
func Sessions(cfg config.RedisConfig) *utils.SessionStore {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := utils.NewRedisClient(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, token revocation disabled")
		return nil
	}
	return utils.NewSessionStore(client)
}

// NewEngine returns a gin engine with request ids, metrics, /health and /metrics
func NewEngine(service string) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.RequestID(), middleware.Metrics(service))

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, service+" service is healthy", nil)
	})
	router.GET("/metrics", middleware.MetricsHandler())
	return router
}

// Run serves handler on port until SIGINT or SIGTERM, then drains
func Run(service, port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// PDF conversion may take up to a minute
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("%s service starting on port %s", service, port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		logrus.WithField("signal", sig.String()).Infof("Shutting down %s service", service)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
