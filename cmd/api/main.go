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

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/app"
	"cohorte/api/internal/archive"
	"cohorte/api/internal/cache"
	"cohorte/api/internal/config"
	"cohorte/api/internal/feedback"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/revisions"
	"cohorte/api/internal/search"
	"cohorte/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	policyCfg, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy load failed: %v", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, 2*cfg.MaxParallel+10)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		log.Fatalf("failed to create revisions dir: %v", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("llm client: %v", err)
	}
	log.Printf("Using model %s", client.Name())

	var analysisCache feedback.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.AnalysisCacheTTL)
		if err != nil {
			log.Printf("WARNING: analysis cache disabled: %v", err)
		} else {
			log.Printf("Using Redis for the analysis cache")
			defer redisCache.Close()
			analysisCache = redisCache
		}
	}
	requester := feedback.NewRequester(client, annotation.NewPolicy(policyCfg), analysisCache)

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var archiver *archive.Archiver
	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		objects, err := archive.NewMinioStore(ctx, cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			log.Printf("WARNING: run archive disabled: %v", err)
		} else {
			log.Printf("Archiving runs to bucket %s", cfg.ArchiveBucket)
			archiver = archive.New(objects)
		}
	}

	service := app.New(cfg, dataStore, requester, revisions.New(cfg.RevisionsDir), searchService, archiver)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	// an analyze response waits on the slowest persona's model call
	writeTimeout := cfg.LLM.Timeout + 30*time.Second
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Cohorte API listening on %s", cfg.Addr)
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
