package cron

import (
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"camrig/config"
	"camrig/database"
)

// CleanupCron removes session directories past the retention window and
// vacuums the registry. Unattended rigs run for weeks; without retention the
// save root eventually fills and recording dies mid-session.
type CleanupCron struct {
	cron      *cron.Cron
	db        database.Database
	cfg       config.Config
	isRunning bool
}

// NewCleanupCron creates the retention cron.
func NewCleanupCron(db database.Database, cfg config.Config) *CleanupCron {
	return &CleanupCron{
		cron: cron.New(),
		db:   db,
		cfg:  cfg,
	}
}

// Start schedules the cleanup jobs.
func (cc *CleanupCron) Start() error {
	if cc.isRunning {
		return nil
	}

	// Retention sweep daily at 03:00, away from any session start.
	if _, err := cc.cron.AddFunc("0 3 * * *", cc.cleanupOldSessions); err != nil {
		return err
	}
	// Vacuum weekly, Sunday 03:30.
	if _, err := cc.cron.AddFunc("30 3 * * 0", cc.vacuum); err != nil {
		return err
	}

	cc.cron.Start()
	cc.isRunning = true
	log.Printf("[CleanupCron] Retention cron started (keep %d days)", cc.cfg.Cleanup.RetentionDays)
	return nil
}

// Stop stops the cron and waits for a running job to finish.
func (cc *CleanupCron) Stop() {
	if !cc.isRunning {
		return
	}
	ctx := cc.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		log.Println("[CleanupCron] Cleanup job still running at shutdown, abandoning")
	}
	cc.isRunning = false
}

// cleanupOldSessions deletes finished sessions older than the retention
// window, directory first, registry rows after.
func (cc *CleanupCron) cleanupOldSessions() {
	cutoff := time.Now().AddDate(0, 0, -cc.cfg.Cleanup.RetentionDays)
	log.Printf("[CleanupCron] Removing finished sessions ended before %s", cutoff.Format("2006-01-02"))

	sessions, err := cc.db.SessionsOlderThan(cutoff)
	if err != nil {
		log.Printf("[CleanupCron] Error querying old sessions: %v", err)
		return
	}

	removed := 0
	for _, sess := range sessions {
		if err := os.RemoveAll(sess.Dir); err != nil {
			log.Printf("[CleanupCron] Could not remove session directory %s: %v", sess.Dir, err)
			continue
		}
		if err := cc.db.DeleteSession(sess.ID); err != nil {
			log.Printf("[CleanupCron] Could not remove session record %s: %v", sess.ID, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[CleanupCron] Removed %d expired sessions", removed)
	}
}

func (cc *CleanupCron) vacuum() {
	if err := cc.db.Vacuum(); err != nil {
		log.Printf("[CleanupCron] Vacuum failed: %v", err)
	}
}
