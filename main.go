package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propsyncd/config"
	"propsyncd/fetcher"
	"propsyncd/httpapi"
	"propsyncd/httputil"
	"propsyncd/logging"
	"propsyncd/media"
	"propsyncd/notify"
	"propsyncd/scheduler"
	"propsyncd/storage"
	"propsyncd/syncer"
)

var (
	syncNow = flag.Bool("sync", false, "Run one sync pass and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting propsyncd...")
	if cfg.SourceURL() == "" {
		log.Println("Warning: SOURCE_URL not set, sync passes will fetch nothing")
	}

	clients := httputil.NewClients(cfg.MediaProxy)
	ctx := context.Background()

	var store storage.Store
	switch cfg.DBDriver {
	case "postgres":
		store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		log.Println("Connected to Postgres")
	default:
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		log.Printf("SQLite database: %s", cfg.DBPath)
	}
	defer store.Close()

	var variants media.VariantStore
	if cfg.S3.Bucket != "" {
		variants, err = storage.NewS3VariantStore(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to set up S3 variant store: %v", err)
		}
		log.Printf("Image variants uploading to bucket %s", cfg.S3.Bucket)
	} else {
		variants, err = media.NewLocalVariantStore(cfg.MediaDir)
		if err != nil {
			log.Fatalf("Failed to set up media dir: %v", err)
		}
		log.Printf("Image variants stored in %s", cfg.MediaDir)
	}

	f := fetcher.New(clients.Source)
	cfg.OnSourceChange(func(oldURL string) {
		f.Invalidate(oldURL)
	})

	notifier := notify.New(cfg, clients.Webhook)
	controller := syncer.NewController(cfg, store, f, notifier)
	pipeline := media.NewPipeline(store, variants, clients.Media, controller)
	controller.SetReconciler(syncer.NewReconciler(store, pipeline, controller))

	if *syncNow {
		log.Println("Running sync...")
		if err := controller.Start(ctx); err != nil {
			log.Fatalf("Sync failed to start: %v", err)
		}
		for controller.IsRunning() {
			time.Sleep(200 * time.Millisecond)
		}
		stats := controller.Stats()
		log.Printf("Sync complete: %d total, %d created, %d updated, %d deleted, %d errors",
			stats.Total, stats.Created, stats.Updated, stats.Deleted, stats.Errors)
		return
	}

	sched := scheduler.New(cfg, controller)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	mux := httpapi.NewMux(httpapi.Deps{Cfg: cfg, Controller: controller})
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.Chain(mux, httpapi.Recover, httpapi.AccessLog),
	}
	go func() {
		log.Printf("HTTP listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	controller.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	log.Println("Stopped.")
}
