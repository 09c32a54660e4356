package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authdesk/internal/config"
	apphttp "authdesk/internal/http"
	"authdesk/internal/poll"
	"authdesk/internal/repository/kv"
	"authdesk/internal/repository/sqlite"
	"authdesk/internal/service"
	"authdesk/internal/storage"
	"authdesk/internal/tabs"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	var kvStore *sqlite.KVStore
	if cfg.NeedsDatabase() {
		db, err = sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatalf("open database: %v", err)
		}
		defer db.Close()

		kvStore = sqlite.NewKVStore(db)
		if err := kvStore.Init(ctx); err != nil {
			logger.Fatalf("init kv store: %v", err)
		}
	}

	registryStore, err := buildRegistryStore(ctx, cfg, kvStore, logger)
	if err != nil {
		logger.Fatalf("setup registry storage: %v", err)
	}

	var sessionStore storage.Store = storage.NewMemoryStore()
	if cfg.Session.Backend == "sqlite" {
		sessionStore = kvStore
	}

	codec, err := service.CodecByName(cfg.Auth.PasswordStorage)
	if err != nil {
		logger.Fatalf("password storage: %v", err)
	}
	if _, plain := codec.(service.PlainCodec); plain {
		logger.Warn("passwords are stored in plain text; set AUTHDESK_AUTH_PASSWORDSTORAGE=bcrypt to hash them")
	}

	userService := service.NewUserService(
		kv.NewUserRepository(registryStore),
		service.WithPasswordCodec(codec),
		service.WithUserLogger(logger.WithField("component", "users")),
	)

	tabRegistry, err := tabs.NewRegistry(tabs.Config{
		Secret:      []byte(cfg.Auth.TabSecret),
		TokenTTL:    cfg.Auth.TabTTL,
		SubmitDelay: cfg.Auth.SubmitDelay,
		Logger:      logger.WithField("component", "tabs"),
	}, userService, sessionStore)
	if err != nil {
		logger.Fatalf("setup tabs: %v", err)
	}
	if cfg.Session.SweepInterval > 0 && cfg.Session.IdleTimeout > 0 {
		tabRegistry.Start(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	}

	poller := poll.NewPoller(poll.Config{
		Categories: cfg.Poll.Categories,
		Interval:   cfg.Poll.Interval,
		Logger:     logger.WithField("component", "poll"),
	})
	if err := poller.Start(ctx); err != nil {
		logger.Fatalf("start poll: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(tabRegistry, userService, poller, logger.WithField("component", "http"))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	poller.Shutdown()
	tabRegistry.Shutdown()

	logger.Info("bye")
}

func buildRegistryStore(ctx context.Context, cfg config.Config, kvStore *sqlite.KVStore, logger *logrus.Logger) (storage.Store, error) {
	if cfg.Registry.Backend != "s3" {
		logger.Infof("user registry in sqlite at %s", cfg.Database.Path)
		return kvStore, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	store, err := storage.NewS3Store(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
	if err != nil {
		return nil, err
	}
	logger.Infof("user registry at %s (region %s)", store.Location("users"), cfg.Storage.Region)
	return store, nil
}
