package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"streamgate/api"
	"streamgate/config"
	"streamgate/handlers"
	"streamgate/internal/cache"
	"streamgate/services/addonstore"
	"streamgate/services/aggregate"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	// Determine config path (env or default)
	configPath := os.Getenv("STREAMGATE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Response cache shared by manifest and stream lookups
	responseCache, err := cache.OpenBadger(filepath.Join(settings.Cache.Directory, "responses"))
	if err != nil {
		log.Fatalf("failed to open response cache: %v", err)
	}
	defer responseCache.Close()

	// Addon registry
	store, err := addonstore.NewService(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open addon store: %v", err)
	}
	defer store.Close()

	aggregateSvc := aggregate.NewService(aggregate.Options{
		Cache:                  responseCache,
		FetchTimeout:           time.Duration(settings.Fetch.TimeoutSeconds) * time.Second,
		RetryDelay:             time.Duration(settings.Fetch.RetryDelayMillis) * time.Millisecond,
		ManifestTTL:            time.Duration(settings.Cache.ManifestTTLHours) * time.Hour,
		StreamTTL:              time.Duration(settings.Cache.StreamTTLMinutes) * time.Minute,
		AddonRequestsPerSecond: settings.Fetch.AddonRequestsPerSecond,
	})

	addonsHandler := handlers.NewAddonsHandler(store, aggregateSvc)
	sourcesHandler := handlers.NewSourcesHandler(aggregateSvc, store)
	catalogsHandler := handlers.NewCatalogsHandler(aggregateSvc, store)

	r := mux.NewRouter()
	api.Register(r, addonsHandler, sourcesHandler, catalogsHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No write timeout: source lookups can legitimately take minutes and
		// the events endpoint holds its connection open.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
