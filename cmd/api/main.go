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

	"github.com/theBrainly/chatgpt-clone/internal/app"
	"github.com/theBrainly/chatgpt-clone/internal/blob"
	"github.com/theBrainly/chatgpt-clone/internal/config"
	"github.com/theBrainly/chatgpt-clone/internal/email"
	"github.com/theBrainly/chatgpt-clone/internal/events"
	"github.com/theBrainly/chatgpt-clone/internal/llm"
	"github.com/theBrainly/chatgpt-clone/internal/memory"
	"github.com/theBrainly/chatgpt-clone/internal/presence"
	"github.com/theBrainly/chatgpt-clone/internal/search"
	"github.com/theBrainly/chatgpt-clone/internal/store"
)

func main() {
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

	tracker, err := presence.NewRedisTracker(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer tracker.Close()

	streamer := llm.NewClient(cfg.OpenRouterKey, cfg.OpenRouterBaseURL, cfg.BaseURL)
	memoryService := memory.NewService(dataStore)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		// Backfill the index from Postgres; the health loop may still be
		// warming up, so give it a moment first.
		go func() {
			time.Sleep(5 * time.Second)
			searchService.ReindexAllFromPG(ctx)
		}()
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		log.Printf("SMTP not configured, invite emails disabled")
	}

	publisher := events.NewNoopPublisher()
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("rabbitmq connection failed: %v", err)
		}
		publisher = rabbit
	}
	defer publisher.Close()

	var blobService *blob.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobService, err = blob.NewService(blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
	} else {
		log.Printf("MinIO not configured, attachment uploads disabled")
	}

	service := app.New(cfg, dataStore, tracker, streamer, memoryService, searchService, emailService, publisher, blobService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long enough for a full streamed completion.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("chat API listening on %s", cfg.Addr)
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
