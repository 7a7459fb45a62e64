package metadata

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"camrig/config"
	"camrig/session"
)

// RecordingInfo is the per-session bookkeeping section of the ledger.
type RecordingInfo struct {
	SubjectName   string   `yaml:"subject_name"`
	RecordingDate string   `yaml:"recording_date"`
	SessionID     int      `yaml:"session_id"`
	PiIdentifier  string   `yaml:"pi_identifier"`
	StartTime     string   `yaml:"start_time"`
	EndTime       *string  `yaml:"end_time"`
	TotalFrames   int64    `yaml:"total_frames"`
	VideoFiles    []string `yaml:"video_files"`
}

// CameraInfo records the capture settings the session ran with.
type CameraInfo struct {
	Resolution          config.Resolution `yaml:"resolution"`
	FrameFormat         string            `yaml:"frame_format"`
	FrameDurationLimits []int             `yaml:"frame_duration_limits"`
	Framerate           int               `yaml:"framerate"`
}

// Document is the on-disk shape of the session ledger.
type Document struct {
	Recording RecordingInfo `yaml:"recording"`
	Camera    CameraInfo    `yaml:"camera"`
}

// SessionLedger is the in-memory + on-disk record of a session: identity,
// start/end time, and the ordered list of completed chunk container files
// with the running frame total. Every update rewrites the whole document so
// the file on disk is always self-consistent.
//
// The rewrite is in place, not write-then-rename; a kill mid-write can leave
// a truncated file. Known weakness, kept for parity with the deployed rigs.
type SessionLedger struct {
	path string
	doc  Document
}

// Create builds the initial ledger for a session and writes it to disk.
// A pre-existing ledger file at the session's metadata path means the session
// directory is already in use; that is a startup error, not something to
// overwrite.
func Create(sess *session.Session, startTime time.Time, cfg config.Config) (*SessionLedger, error) {
	path := sess.MetadataPath()
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("session metadata already exists at %s", path)
	}

	l := &SessionLedger{
		path: path,
		doc: Document{
			Recording: RecordingInfo{
				SubjectName:   sess.Subject,
				RecordingDate: sess.Date,
				SessionID:     sess.ID,
				PiIdentifier:  sess.DeviceID,
				StartTime:     startTime.Format(time.RFC3339Nano),
				TotalFrames:   0,
				VideoFiles:    []string{},
			},
			Camera: CameraInfo{
				Resolution:          cfg.Camera.Resolution,
				FrameFormat:         cfg.Camera.FrameFormat,
				FrameDurationLimits: cfg.Camera.FrameDurationLimits,
				Framerate:           cfg.Camera.Framerate,
			},
		},
	}

	if err := l.save(); err != nil {
		return nil, err
	}
	return l, nil
}

// UpdateChunk records a completed chunk: the container path is appended to
// the ordered file list if not already present, the stored frame total is set
// to totalFrames, and the document is rewritten.
func (l *SessionLedger) UpdateChunk(containerPath string, totalFrames int64) error {
	found := false
	for _, f := range l.doc.Recording.VideoFiles {
		if f == containerPath {
			found = true
			break
		}
	}
	if !found {
		l.doc.Recording.VideoFiles = append(l.doc.Recording.VideoFiles, containerPath)
	}
	l.doc.Recording.TotalFrames = totalFrames

	if err := l.save(); err != nil {
		return err
	}
	log.Printf("[Ledger] Updated - added file: %s, total frames: %d", containerPath, totalFrames)
	return nil
}

// Finalize sets the session end time and rewrites the document.
func (l *SessionLedger) Finalize(endTime time.Time) error {
	s := endTime.Format(time.RFC3339Nano)
	l.doc.Recording.EndTime = &s
	return l.save()
}

// ChunkCount returns the number of recorded container files.
func (l *SessionLedger) ChunkCount() int {
	return len(l.doc.Recording.VideoFiles)
}

// TotalFrames returns the running frame total.
func (l *SessionLedger) TotalFrames() int64 {
	return l.doc.Recording.TotalFrames
}

// Path returns the on-disk location of the ledger.
func (l *SessionLedger) Path() string {
	return l.path
}

func (l *SessionLedger) save() error {
	data, err := yaml.Marshal(&l.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session metadata %s: %w", l.path, err)
	}
	return nil
}

// Load reads an existing ledger document, for inspection tools and tests.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session metadata: %w", err)
	}
	return &doc, nil
}
