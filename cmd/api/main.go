package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"parley/core/internal/app"
	"parley/core/internal/cache"
	"parley/core/internal/config"
	"parley/core/internal/convo"
	"parley/core/internal/mailbridge"
	"parley/core/internal/realtime"
	"parley/core/internal/search"
	"parley/core/internal/storage"
	"parley/core/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis connection failed: %v", err)
	}
	cancel()

	notifier := realtime.NewNotifierWithClient(redisClient)
	orgCache := cache.NewOrgCache(redisClient, 5*time.Minute, dataStore.GetOrgByShortcode)

	service := convo.NewService(dataStore, notifier, nil, nil, nil)
	if strings.TrimSpace(cfg.MailBridgeURL) != "" {
		service.SetMailBridge(mailbridge.New(cfg.MailBridgeURL, cfg.MailBridgeKey, cfg.MailBridgeTimeout))
	}
	if strings.TrimSpace(cfg.StorageEndpoint) != "" {
		blobs, err := storage.New(storage.Config{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.StorageUseSSL,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		service.SetBlobStore(blobs)
	}
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		service.SetEntryIndexer(meiliClient)
	}
	directory := app.NewStoreDirectory(orgCache, dataStore)
	httpServer := app.NewHTTPServer(service, directory, db, cfg.CORSOrigin)
	if meiliClient != nil {
		httpServer.SetSearcher(meiliClient)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Parley core API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
