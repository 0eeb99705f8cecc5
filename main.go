package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/occupancy.report/internal/api"
	"github.com/banshee-data/occupancy.report/internal/config"
	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitor"
	"github.com/banshee-data/occupancy.report/internal/notify"
	"github.com/banshee-data/occupancy.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "occupancy.db", "SQLite database path")
	tuningFile    = flag.String("config", config.DefaultConfigPath, "Tuning config path (JSON)")
	webhookURL    = flag.String("webhook", "", "Alert webhook URL (empty to disable delivery)")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "Migrations directory")
	recordEvery   = flag.Duration("record-interval", 10*time.Second, "Occupancy sampling interval")
)

func main() {
	flag.Parse()

	log.Printf("occupancyd %s (commit %s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning, err := config.LoadTuningConfig(*tuningFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	cfg := tuning.EngineConfig()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	if err := database.SyncRooms(cfg.Rooms); err != nil {
		log.Fatalf("failed to sync room config: %v", err)
	}

	eng, err := engine.New(cfg, log.Default())
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	notifier := notify.NewWebhookNotifier(*webhookURL, &httputil.StandardClient{}, log.Default())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// engine routine: camera workers and the eviction sweeper
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// persist periodic occupancy samples for history and rollup queries
	recorder := db.NewRecorder(database, eng, *recordEvery, log.Default())
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := recorder.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("recorder stopped: %v", err)
		}
		log.Print("recorder routine terminated")
	}()

	// drain alert intents: log to the database, then deliver to the webhook
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.DeliverAll(eng.AlertIntents(), func(intent engine.AlertIntent) {
			if err := database.RecordAlert(intent); err != nil {
				log.Printf("failed to record alert for room %s: %v", intent.RoomID, err)
			}
		})
		log.Print("alert routine terminated")
	}()

	// drain identity lifecycle events into the audit log
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range eng.Events() {
			if err := database.RecordIdentityEvent(ev); err != nil {
				log.Printf("failed to record identity event %s: %v", ev.EventID, err)
			}
		}
		log.Print("event routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only over Tailscale)
		database.AttachAdminRoutes(mux)
		monitor.NewMonitor(eng, database, log.Default()).Attach(mux)

		apiServer := api.NewServer(eng, database, log.Default())
		mux.Handle("/api/", apiServer.LogRequests(apiServer.ServeMux()))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
