package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/journeyboard/pkg/collect"
	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/customer"
	"github.com/nicktill/journeyboard/pkg/export"
	"github.com/nicktill/journeyboard/pkg/source"
	"github.com/nicktill/journeyboard/pkg/source/email"
	"github.com/nicktill/journeyboard/pkg/source/social"
	"github.com/nicktill/journeyboard/pkg/source/web"
	"github.com/nicktill/journeyboard/pkg/store/badger"
	"github.com/nicktill/journeyboard/pkg/trend"
)

var startTime = time.Now()

// handleHealth returns service health status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"uptime":  time.Since(startTime).String(),
	}); err != nil {
		log.Printf("❌ Failed to encode health response: %v", err)
	}
}

// getEnvInt64 gets an int64 from environment variable or returns default
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getPort gets the server port from PORT environment variable or returns default
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}

func main() {
	log.Println("🚀 Starting JourneyBoard Server...")

	// Read configuration from environment variables
	// JOURNEYBOARD_MAX_MEMORY_MB: Maximum BadgerDB memory in MB
	// JOURNEYBOARD_DATA_DIR: database directory
	// JOURNEYBOARD_{WEB,SOCIAL,EMAIL}_ENDPOINT: vendor API overrides
	maxMemoryMB := getEnvInt64("JOURNEYBOARD_MAX_MEMORY_MB", config.DefaultMaxMemoryMB)
	dataDir := os.Getenv("JOURNEYBOARD_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data/journeyboard"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("❌ Failed to create data directory: %v", err)
	}
	log.Printf("📁 Data directory: %s", dataDir)

	// Initialize storage with memory limits
	log.Println("💾 Initializing BadgerDB storage with Snappy compression...")
	store, err := badger.New(badger.Config{
		Path:        dataDir,
		MaxMemoryMB: maxMemoryMB,
	})
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Println("✅ BadgerDB storage initialized successfully")

	// Source adapters over the vendor APIs
	adapters := []source.Adapter{
		web.New(web.NewHTTPClient(os.Getenv("JOURNEYBOARD_WEB_ENDPOINT"))),
		social.New(social.NewHTTPClient(os.Getenv("JOURNEYBOARD_SOCIAL_ENDPOINT"))),
		email.New(email.NewHTTPClient(os.Getenv("JOURNEYBOARD_EMAIL_ENDPOINT"))),
	}
	log.Printf("🔌 Source adapters ready: website, social, email")

	// Collection status tracking + WebSocket streaming
	tracker := collect.NewTracker()
	hub := collect.NewStatusHub()
	tracker.SetNotify(hub.Broadcast)

	collector := collect.NewCollector(store, adapters, tracker)
	log.Println("🗂️  Collection orchestrator ready")

	// Handlers
	customerHandler := customer.NewHandler(store)
	collectHandler := collect.NewHandler(store, collector, tracker)
	trendHandler := trend.NewHandler(store)
	exportHandler := export.NewHandler(store)
	log.Println("📊 Handlers created (customers, collection, trends, export)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("📡 WebSocket hub started for collection-status streaming")

	// Start BadgerDB garbage collection (reclaims disk space)
	stopGC := make(chan bool)
	wg.Add(1)
	go runBadgerGC(store, stopGC, &wg)

	// Create router
	router := mux.NewRouter()

	// CORS middleware for API access
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// API routes
	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/customers", customerHandler.HandleCreate).Methods("POST")
	api.HandleFunc("/customers", customerHandler.HandleList).Methods("GET")
	api.HandleFunc("/customers/{id}", customerHandler.HandleGet).Methods("GET")
	api.HandleFunc("/customers/{id}", customerHandler.HandleUpdate).Methods("PUT")
	api.HandleFunc("/customers/{id}", customerHandler.HandleDelete).Methods("DELETE")
	api.HandleFunc("/customers/{id}/credentials", customerHandler.HandleGetCredentials).Methods("GET")
	api.HandleFunc("/customers/{id}/credentials/{platform}", customerHandler.HandleSetCredentials).Methods("PUT")
	api.HandleFunc("/customers/{id}/collect", collectHandler.HandleCollect).Methods("POST")
	api.HandleFunc("/customers/{id}/collect/status", collectHandler.HandleStatus).Methods("GET")
	api.HandleFunc("/customers/{id}/collect/ws", hub.HandleWebSocket).Methods("GET")
	api.HandleFunc("/customers/{id}/metrics", trendHandler.HandleLatest).Methods("GET")
	api.HandleFunc("/customers/{id}/metrics/history", trendHandler.HandleHistory).Methods("GET")
	api.HandleFunc("/customers/{id}/export", exportHandler.HandleExport).Methods("GET")
	api.HandleFunc("/customers/{id}/import", exportHandler.HandleImport).Methods("POST")
	api.HandleFunc("/health", handleHealth).Methods("GET")

	// Create server
	server := &http.Server{
		Addr:         ":" + getPort(),
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", getPort())
		log.Println("📡 API endpoints:")
		log.Println("   POST /v1/customers                        - Create customer")
		log.Println("   PUT  /v1/customers/{id}/credentials/{p}   - Store platform credentials")
		log.Println("   POST /v1/customers/{id}/collect           - Trigger collection run")
		log.Println("   GET  /v1/customers/{id}/collect/status    - Run status")
		log.Println("   GET  /v1/customers/{id}/metrics/history   - KPI history + trend")
		log.Println("   GET  /v1/customers/{id}/export            - Backup (JSON/CSV)")
		log.Println("✅ Server ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	// Cancel context first so the hub goroutine can exit before wg.Wait()
	log.Println("⏸️  Stopping background tasks...")
	cancel()
	close(stopGC)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	// Wait for background goroutines to finish
	log.Println("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 JourneyBoard server exited cleanly")
}

// runBadgerGC runs BadgerDB value-log garbage collection periodically.
// BadgerDB's LSM tree accumulates overwritten records in the value log;
// without GC, monthly re-collection grows the disk unboundedly.
func runBadgerGC(store *badger.Storage, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	log.Printf("🗑️  BadgerDB GC scheduler started (runs every %v)", config.BadgerGCInterval)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// Reclaim a value-log file once half of it is garbage. One
			// iteration per tick keeps the pause bounded.
			if err := store.RunGC(0.5); err != nil {
				log.Printf("🗑️  GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			} else {
				log.Printf("✅ GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			}
		case <-stop:
			log.Println("🛑 Stopping BadgerDB GC scheduler")
			return
		}
	}
}
