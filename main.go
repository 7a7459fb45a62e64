package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"camrig/api"
	"camrig/camera"
	"camrig/config"
	"camrig/cron"
	"camrig/database"
	"camrig/metadata"
	"camrig/monitoring"
	"camrig/recording"
	"camrig/service"
	"camrig/session"
	"camrig/storage"
	"camrig/trigger"
)

func main() {
	// .env is optional; deployed rigs carry one, dev machines usually don't.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment overrides from .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "camera_config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.EnsurePaths(cfg); err != nil {
		log.Fatalf("Failed to prepare directories: %v", err)
	}

	// The registry supplements the YAML ledger; a broken registry must not
	// block recording, so its absence is a warning, not a startup error.
	var db database.Database
	sqliteDB, err := database.NewSQLiteDB(cfg.Paths.DatabasePath)
	if err != nil {
		log.Printf("WARNING: session registry unavailable, continuing without it: %v", err)
	} else {
		db = sqliteDB
		defer sqliteDB.Close()
	}

	startTime := time.Now()
	sess, err := session.New(cfg.Paths.VideoSavePath, cfg.SubjectName, cfg.PiIdentifier, startTime)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	// Everything below also lands in the per-session log file.
	logFile, err := os.OpenFile(sess.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: could not open session log file: %v", err)
	} else {
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	}

	log.Printf("Starting recording session %d for subject %s on device %s",
		sess.ID, sess.Subject, sess.DeviceID)

	ledger, err := metadata.Create(sess, startTime, cfg)
	if err != nil {
		// Duplicate metadata means this session directory is already in use.
		log.Fatalf("Failed to create session metadata: %v", err)
	}

	if db != nil {
		rec := database.SessionRecord{
			ID:         sess.Key(),
			Subject:    sess.Subject,
			Date:       sess.Date,
			SessionNum: sess.ID,
			DeviceID:   sess.DeviceID,
			Dir:        sess.Dir,
			StartTime:  startTime,
			Status:     database.StatusRecording,
		}
		if err := db.CreateSession(rec); err != nil {
			log.Printf("WARNING: could not register session: %v", err)
		}
	}

	// Shutdown is cooperative: signals and the hardware stop button cancel
	// this context, then the components wind down in order below. No file
	// I/O happens inside a signal handler.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	recorder := recording.NewContinuousRecorder(sess, ledger, db, cfg)
	if err := recorder.Start(ctx); err != nil {
		log.Fatalf("Failed to start recorder: %v", err)
	}

	pipeline := camera.NewPipeline(cfg.Camera, recorder.WriteFrame)
	if err := pipeline.Start(ctx); err != nil {
		recorder.Stop()
		log.Fatalf("Failed to start capture pipeline: %v", err)
	}

	monitoring.StartMonitoring(ctx, time.Minute, cfg.Paths.VideoSavePath)

	if cfg.Trigger.Enabled {
		trigger.NewSerialTrigger(cfg.Trigger, cancel).Start(ctx)
	}

	if cfg.Upload.Enabled && db != nil {
		r2Storage, err := storage.NewR2Storage(cfg.Upload)
		if err != nil {
			log.Printf("WARNING: upload storage unavailable: %v", err)
		} else {
			service.NewUploadService(db, r2Storage, recorder.Metrics()).StartWorker(ctx)
		}
	}

	var cleanupCron *cron.CleanupCron
	if cfg.Cleanup.Enabled && db != nil {
		cleanupCron = cron.NewCleanupCron(db, cfg)
		if err := cleanupCron.Start(); err != nil {
			log.Printf("WARNING: could not start cleanup cron: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Enabled && db != nil {
		g.Go(func() error {
			return api.NewServer(cfg, db, sess, recorder).Start(gctx)
		})
	}

	log.Println("Recording started. Send SIGINT or SIGTERM to stop safely.")
	<-ctx.Done()

	log.Println("Initiating safe shutdown...")

	// Drain the capture stream before closing the final sink so trailing
	// frames still land in the last chunk.
	pipeline.Wait()
	recorder.Stop()

	if cleanupCron != nil {
		cleanupCron.Stop()
	}
	if err := g.Wait(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Println("Shutdown complete. All files have been saved.")
}
