package database

import (
	"time"
)

// SessionStatus represents the current state of a recording session
type SessionStatus string

const (
	StatusRecording SessionStatus = "recording" // Session is actively recording
	StatusFinished  SessionStatus = "finished"  // Session ended cleanly
)

// ChunkStatus represents the current state of a recorded chunk
type ChunkStatus string

const (
	ChunkReady    ChunkStatus = "ready"    // Container file written
	ChunkFailed   ChunkStatus = "failed"   // Conversion failed, no container
	ChunkUploaded ChunkStatus = "uploaded" // Container uploaded off-rig
)

// SessionRecord is the registry row for one recording session.
type SessionRecord struct {
	ID          string        `json:"id"` // "{subject}_{date}_{sessionNum}"
	Subject     string        `json:"subject"`
	Date        string        `json:"date"` // YYYYMMDD
	SessionNum  int           `json:"sessionNum"`
	DeviceID    string        `json:"deviceId"`
	Dir         string        `json:"dir"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     *time.Time    `json:"endTime"` // nil while recording
	TotalFrames int64         `json:"totalFrames"`
	Status      SessionStatus `json:"status"`
}

// ChunkRecord is the registry row for one recorded chunk.
type ChunkRecord struct {
	ID            string      `json:"id"` // "{sessionID}_chunkNNN"
	SessionID     string      `json:"sessionId"`
	ChunkNum      int         `json:"chunkNum"`
	ContainerPath string      `json:"containerPath"` // empty if conversion failed
	FrameCount    int64       `json:"frameCount"`
	SizeBytes     int64       `json:"sizeBytes"`
	DurationSecs  float64     `json:"durationSecs"` // probed from the container, 0 if unknown
	CreatedAt     time.Time   `json:"createdAt"`
	Status        ChunkStatus `json:"status"`
}

// Database defines the interface for registry operations. The registry
// supplements the per-session YAML ledger: the API and the cleanup cron read
// it, and a registry failure must never interrupt recording.
type Database interface {
	// Session operations
	CreateSession(session SessionRecord) error
	GetSession(id string) (*SessionRecord, error)
	ListSessions(limit, offset int) ([]SessionRecord, error)
	UpdateSessionProgress(id string, totalFrames int64) error
	FinishSession(id string, endTime time.Time, totalFrames int64) error
	DeleteSession(id string) error

	// Chunk operations
	CreateChunk(chunk ChunkRecord) error
	GetChunksBySession(sessionID string) ([]ChunkRecord, error)
	GetChunksByStatus(status ChunkStatus, limit int) ([]ChunkRecord, error)
	UpdateChunkStatus(id string, status ChunkStatus) error

	// Maintenance operations
	SessionsOlderThan(cutoff time.Time) ([]SessionRecord, error)
	Vacuum() error

	Close() error
}
