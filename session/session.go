package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Session identifies one subject/date/id-scoped recording run. Created once
// at startup and immutable afterwards.
type Session struct {
	Subject  string
	Date     string // YYYYMMDD
	ID       int
	DeviceID string
	Dir      string // absolute session directory
}

// FolderName returns the session directory name, e.g. "rat42_20260831_3".
func FolderName(subject, date string, id int) string {
	return fmt.Sprintf("%s_%s_%d", subject, date, id)
}

// NextSessionID scans the immediate subdirectories of baseDir for names
// starting with "{subject}_{date}" and returns one plus the highest numeric
// trailing token, or 1 if none match or baseDir does not exist. Entries whose
// trailing token is not an integer are skipped.
//
// This is only race-tolerant for a single startup-time call; two processes
// starting simultaneously on the same save root can pick the same id. There
// is no cross-process locking.
func NextSessionID(baseDir, subject, date string) int {
	prefix := subject + "_" + date

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 1
	}

	maxID := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		parts := strings.Split(entry.Name(), "_")
		id, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// New determines the next session id under baseDir, creates the session
// directory, and returns the populated Session.
func New(baseDir, subject, deviceID string, now time.Time) (*Session, error) {
	date := now.Format("20060102")
	id := NextSessionID(baseDir, subject, date)

	dir := filepath.Join(baseDir, FolderName(subject, date, id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	log.Printf("[Session] Created session directory: %s", dir)

	return &Session{
		Subject:  subject,
		Date:     date,
		ID:       id,
		DeviceID: deviceID,
		Dir:      dir,
	}, nil
}

// BaseName returns the "{subject}_{date}_{id}_{device}" stem used by every
// per-session file.
func (s *Session) BaseName() string {
	return fmt.Sprintf("%s_%s", FolderName(s.Subject, s.Date, s.ID), s.DeviceID)
}

// ChunkVideoPath returns the raw bitstream path for a chunk number.
func (s *Session) ChunkVideoPath(chunkNum int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_chunk%03d.h264", s.BaseName(), chunkNum))
}

// MetadataPath returns the session ledger path.
func (s *Session) MetadataPath() string {
	return filepath.Join(s.Dir, s.BaseName()+"_metadata.yaml")
}

// LogPath returns the per-session log file path.
func (s *Session) LogPath() string {
	return filepath.Join(s.Dir, s.BaseName()+".log")
}

// Key returns the stable identifier used for database records.
func (s *Session) Key() string {
	return FolderName(s.Subject, s.Date, s.ID)
}
