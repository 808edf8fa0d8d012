package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"takeover/internal/domain/chat"
	"takeover/internal/infra/broker/kafka"
	"takeover/internal/infra/config"
	catalogdb "takeover/internal/infra/db/mongo"
	ginserver "takeover/internal/infra/http/gin"
	"takeover/internal/infra/obs"
	"takeover/internal/infra/presence"
	"takeover/internal/infra/security"
	"takeover/internal/infra/storage/memory"
	"takeover/internal/infra/storage/s3"
	"takeover/internal/infra/storage/scylla"
	"takeover/internal/infra/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	store, readiness, cleanup, err := buildChatStore(cfg, logger)
	if err != nil {
		logger.Error("chat store init failed", "error", err, "mode", cfg.ChatStoreMode)
		os.Exit(1)
	}
	defer cleanup()

	var catalog *catalogdb.Catalog
	if cfg.MongoURI != "" {
		client, err := catalogdb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(shutdownCtx)
		}()
		catalog = catalogdb.NewCatalog(client, logger)
		logger.Info("listing catalog attached", "db", cfg.MongoDB)
	} else {
		logger.Warn("MONGO_URI not set, conversations served without listing details")
	}

	var events *kafka.ChatEvents
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		events = &kafka.ChatEvents{Producer: producer, TopicPrefix: cfg.KafkaTopicPrefix, Logger: logger}
		logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers)
	}

	var presenceStore *presence.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		presenceStore = presence.NewStore(redisClient, uuid.NewString(), 2*cfg.WSPingInterval)
		logger.Info("cross-instance presence enabled", "addr", cfg.RedisAddr)
	}

	var avatars s3.AvatarResolver
	if cfg.S3Endpoint != "" {
		s3Client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3Bucket, cfg.AvatarTTL, logger)
		if err != nil {
			logger.Error("s3 init failed", "error", err)
			os.Exit(1)
		}
		avatars = s3Client
	}

	verifier := security.TokenVerifier{Secret: []byte(cfg.JWTSecret)}
	liveHandler := &ws.Handler{
		Hub:            ws.NewHub(),
		Store:          store,
		Events:         events,
		Presence:       presenceStore,
		Verifier:       verifier,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		MaxMessage:     cfg.WSMaxMessage,
	}

	handlers := ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Store:   store,
			Catalog: catalog,
			Avatars: avatars,
			Events:  events,
			Logger:  logger,
		},
		Live:           liveHandler.Handle,
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger},
		obs.HealthHandlers{Ready: readiness}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("chat service starting", "addr", cfg.HTTPAddr, "store", cfg.ChatStoreMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chat service stopped")
}

func buildChatStore(cfg config.Config, logger *slog.Logger) (chat.Store, func() error, func(), error) {
	switch cfg.ChatStoreMode {
	case "scylla":
		session, err := scylla.NewSession(cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		readiness := func() error {
			if session.Closed() {
				return errors.New("scylla session closed")
			}
			return nil
		}
		return scylla.NewStore(session, logger), readiness, session.Close, nil
	default:
		logger.Warn("using in-memory chat store, messages do not survive restarts")
		return memory.NewChatStore(), func() error { return nil }, func() {}, nil
	}
}
