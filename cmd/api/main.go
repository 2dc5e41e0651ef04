package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"parley/internal/auth"
	"parley/internal/codec"
	"parley/internal/config"
	"parley/internal/data"
	"parley/internal/db"
	"parley/internal/media"
	"parley/internal/middleware"
	"parley/internal/realtime"
	"parley/internal/revoke"
)

const tokenDuration = 24 * time.Hour

// devContentKey keeps local development runnable without provisioning a
// key. Production refuses to start without CONTENT_KEY.
const devContentKey = "6368616e676520746869732064657620636f6e74656e74206b65792e2e2e2e2e"

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.IsDevelopment() {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoURI := cfg.MongoURI
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	mongoClient, err := db.New(ctx, mongoURI)
	if err != nil {
		log.WithError(err).Fatal("mongodb connection failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("mongodb disconnect failed")
		}
	}()

	if err := mongoClient.CreateIndexes(ctx); err != nil {
		log.WithError(err).Fatal("index creation failed")
	}

	contentKey := cfg.ContentKey
	if contentKey == "" {
		log.Warn("CONTENT_KEY not set, using the development key")
		contentKey = devContentKey
	}
	bodyCodec, err := codec.New(contentKey)
	if err != nil {
		log.WithError(err).Fatal("content codec initialization failed")
	}

	var revoked revoke.Store
	if cfg.RedisURL != "" {
		rs, err := revoke.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		revoked = rs
	} else {
		log.Warn("REDIS_URL not set, session revocation is in-memory and per-process")
		revoked = revoke.NewMemoryStore(time.Minute)
	}
	defer revoked.Close()

	var uploader data.Uploader
	if cfg.MediaUploadURL != "" {
		uploader = media.NewHTTPUploader(cfg.MediaUploadURL)
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		log.Warn("JWT_SECRET not set, using an insecure development secret")
		jwtSecret = "insecure-dev-secret"
	}
	jwtManager := auth.NewJWTManager(jwtSecret, tokenDuration)

	users := data.NewUsersStore(mongoClient.UsersCollection())
	msgs := data.NewMessagesStore(
		mongoClient.MessagesCollection(),
		mongoClient.ConversationsCollection(),
		bodyCodec,
		uploader,
		revoked,
	)
	convos := data.NewConversationsStore(mongoClient.ConversationsCollection(), msgs, users)

	hub := realtime.NewHub()
	coord := realtime.NewCoordinator(hub, log)

	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, cfg.RateLimitRPM, 5*time.Minute)
	defer limiter.Stop()
	authMW := middleware.NewAuthMiddleware(jwtManager, revoked)

	server := newServer(log, users, convos, msgs, jwtManager, revoked, hub, coord)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.routes(authMW, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
}
