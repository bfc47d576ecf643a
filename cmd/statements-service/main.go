package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/princekumarofficial/statements-service/docs"
	"github.com/princekumarofficial/statements-service/internal/cache"
	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/events"
	"github.com/princekumarofficial/statements-service/internal/http/handlers/blobs"
	"github.com/princekumarofficial/statements-service/internal/http/handlers/merges"
	"github.com/princekumarofficial/statements-service/internal/http/handlers/uploads"
	wsHandler "github.com/princekumarofficial/statements-service/internal/http/handlers/websocket"
	"github.com/princekumarofficial/statements-service/internal/http/middleware"
	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/ratelimit"
	"github.com/princekumarofficial/statements-service/internal/services/media"
	"github.com/princekumarofficial/statements-service/internal/services/merge"
	"github.com/princekumarofficial/statements-service/internal/services/transcoder"
	"github.com/princekumarofficial/statements-service/internal/services/upload"
	"github.com/princekumarofficial/statements-service/internal/sessions"
	"github.com/princekumarofficial/statements-service/internal/storage"
	"github.com/princekumarofficial/statements-service/internal/storage/postgres"
	"github.com/princekumarofficial/statements-service/internal/storage/sqlite"
	"github.com/princekumarofficial/statements-service/internal/websocket"
)

// @title Statements Service API
// @version 1.0
// @description Chunked video uploads and merge pipeline for statement sets.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// load config
	cfg := config.MustLoad()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %s", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// session persistence
	backend, err := openStorage(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize storage: %s", err)
	}
	store := sessions.NewStore(backend, logger)
	if err := store.Restore(ctx); err != nil {
		log.Fatalf("failed to restore sessions: %s", err)
	}
	defer store.Close()

	// redis is optional
	var (
		redisClient    *redis.Client
		uploadLimiter  ratelimit.Limiter = ratelimit.Unlimited{}
		mergeLimiter   ratelimit.Limiter = ratelimit.Unlimited{}
		mirror         *cache.StatusMirror
		mergeObservers []merge.Observer
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect to redis: %s", err)
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

		uploadLimiter = ratelimit.NewTokenBucket(redisClient, cfg.Upload.InitiateCapacity, cfg.Upload.InitiateRefill)
		mergeLimiter = ratelimit.NewTokenBucket(redisClient, cfg.Merge.InitiateCapacity, cfg.Merge.InitiateRefill)
		mirror = cache.NewStatusMirror(redisClient, cache.MergeStatusDuration, logger)
		mergeObservers = append(mergeObservers, mirror)
	} else {
		logger.Warn("Redis not configured; upload quotas and the merge status mirror are disabled")
	}

	blobStore, localBlobs, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize blob store: %s", err)
	}

	tc := transcoder.NewFFmpeg(cfg.Transcoder, logger)
	if err := tc.Available(ctx); err != nil {
		// Uploads still work; merges report ToolUnavailable until fixed.
		logger.Warn("transcoder unavailable", "error", err)
	}

	// realtime progress
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	publisher := events.NewEventPublisher(hub)
	mergeObservers = append(mergeObservers, publisher)

	uploadManager := upload.NewManager(cfg, store, uploadLimiter, logger)
	orchestrator := merge.NewOrchestrator(cfg, store, uploadManager, tc, blobStore, logger, mergeObservers...)
	uploadManager.AddListener(publisher)
	if cfg.Merge.AutoMerge {
		uploadManager.AddListener(merge.NewAutoMerger(orchestrator))
	}

	sweeper, err := upload.NewSweeper(uploadManager, cfg.Upload.SweepInterval, cfg.Upload.LockPath)
	if err != nil {
		log.Fatalf("failed to create sweeper: %s", err)
	}
	go sweeper.Start(ctx)

	// setup router
	router := http.NewServeMux()
	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Handle("GET /swagger/", httpSwagger.WrapHandler)

	router.Handle("POST /uploads", auth(uploads.InitiateUpload(uploadManager)))
	router.Handle("PUT /uploads/{id}/chunks/{n}", auth(uploads.UploadChunk(uploadManager, cfg.Upload.ChunkSize)))
	router.Handle("GET /uploads/{id}", auth(uploads.GetUploadStatus(uploadManager)))
	router.Handle("POST /uploads/{id}/complete", auth(uploads.CompleteUpload(uploadManager)))
	router.Handle("DELETE /uploads/{id}", auth(uploads.CancelUpload(uploadManager)))

	var statusMirror merges.StatusMirror
	if mirror != nil {
		statusMirror = mirror
	}
	mergeHandlers := merges.NewMergeHandlers(orchestrator, statusMirror, logger)
	limitMerges := middleware.RateLimit(mergeLimiter, ratelimit.ActionMergeInitiate, logger)
	router.Handle("GET /merges/{id}/readiness", auth(mergeHandlers.Readiness()))
	router.Handle("POST /merges/{id}", auth(limitMerges(mergeHandlers.Initiate())))
	router.Handle("GET /merges/{id}", auth(mergeHandlers.Status()))
	router.Handle("DELETE /merges/{id}", auth(mergeHandlers.Cancel()))

	router.HandleFunc("GET /ws", wsHandler.WebSocketHandler(hub, cfg.JWTSecret, logger))
	if localBlobs != nil {
		router.HandleFunc("GET /blobs/{key...}", blobs.Download(localBlobs, logger))
	}
	if mirror != nil {
		router.Handle("GET /debug/cache", auth(cache.GetCacheStats(mirror)))
		router.Handle("DELETE /debug/cache", auth(cache.ClearCache(mirror)))
	}

	server := http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	go func() {
		logger.Info("server started", "address", cfg.HTTPServer.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown server", "error", err)
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error("merge pipelines did not stop in time", "error", err)
	}

	logger.Info("Server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("Using in-memory session storage; sessions are lost on restart")
		return storage.Nop{}, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite session storage", "path", s.Path())
		return s, nil
	case "postgres":
		return postgres.NewPostgres(ctx, cfg.PGSQL, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// openBlobStore also returns the local store, when selected, so its
// download route can be mounted.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (media.BlobStore, *media.LocalStore, error) {
	switch cfg.Blob.Driver {
	case "local":
		s, err := media.NewLocalStore(cfg.Blob.Local.Root, cfg.Blob.Local.BaseURL, cfg.JWTSecret)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "minio":
		s, err := media.NewMinIOStore(ctx, cfg.Blob)
		return s, nil, err
	case "s3":
		s, err := media.NewS3Store(ctx, cfg.Blob, logger)
		return s, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported blob driver %q", cfg.Blob.Driver)
	}
}
