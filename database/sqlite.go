package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			date TEXT NOT NULL,
			session_num INTEGER NOT NULL,
			device_id TEXT,
			dir TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			total_frames INTEGER DEFAULT 0,
			status TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			chunk_num INTEGER NOT NULL,
			container_path TEXT,
			frame_count INTEGER DEFAULT 0,
			size_bytes INTEGER DEFAULT 0,
			duration_secs REAL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions (id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks (session_id)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks (status)
	`)
	return err
}

// CreateSession inserts a new session record into the database
func (s *SQLiteDB) CreateSession(session SessionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (
			id, subject, date, session_num, device_id, dir,
			start_time, end_time, total_frames, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Subject,
		session.Date,
		session.SessionNum,
		session.DeviceID,
		session.Dir,
		session.StartTime,
		session.EndTime,
		session.TotalFrames,
		session.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create session record: %v", err)
	}
	return nil
}

// GetSession retrieves a session record by ID
func (s *SQLiteDB) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, subject, date, session_num, device_id, dir,
		       start_time, end_time, total_frames, status
		FROM sessions WHERE id = ?
	`, id)

	var rec SessionRecord
	var endTime sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.Subject,
		&rec.Date,
		&rec.SessionNum,
		&rec.DeviceID,
		&rec.Dir,
		&rec.StartTime,
		&endTime,
		&rec.TotalFrames,
		&rec.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	return &rec, nil
}

// ListSessions returns sessions ordered by start time, newest first
func (s *SQLiteDB) ListSessions(limit, offset int) ([]SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, subject, date, session_num, device_id, dir,
		       start_time, end_time, total_frames, status
		FROM sessions
		ORDER BY start_time DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %v", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var endTime sql.NullTime
		err := rows.Scan(
			&rec.ID,
			&rec.Subject,
			&rec.Date,
			&rec.SessionNum,
			&rec.DeviceID,
			&rec.Dir,
			&rec.StartTime,
			&endTime,
			&rec.TotalFrames,
			&rec.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %v", err)
		}
		if endTime.Valid {
			rec.EndTime = &endTime.Time
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// UpdateSessionProgress updates the running frame total of a live session
func (s *SQLiteDB) UpdateSessionProgress(id string, totalFrames int64) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET total_frames = ? WHERE id = ?
	`, totalFrames, id)
	if err != nil {
		return fmt.Errorf("failed to update session progress: %v", err)
	}
	return nil
}

// FinishSession marks a session as finished with its end time and final totals
func (s *SQLiteDB) FinishSession(id string, endTime time.Time, totalFrames int64) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET end_time = ?, total_frames = ?, status = ? WHERE id = ?
	`, endTime, totalFrames, StatusFinished, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %v", err)
	}
	return nil
}

// DeleteSession removes a session and its chunk records
func (s *SQLiteDB) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM chunks WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session chunks: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}
	return nil
}

// CreateChunk inserts a new chunk record into the database
func (s *SQLiteDB) CreateChunk(chunk ChunkRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO chunks (
			id, session_id, chunk_num, container_path,
			frame_count, size_bytes, duration_secs, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		chunk.ID,
		chunk.SessionID,
		chunk.ChunkNum,
		chunk.ContainerPath,
		chunk.FrameCount,
		chunk.SizeBytes,
		chunk.DurationSecs,
		chunk.CreatedAt,
		chunk.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create chunk record: %v", err)
	}
	return nil
}

// GetChunksBySession returns a session's chunks in chunk order
func (s *SQLiteDB) GetChunksBySession(sessionID string) ([]ChunkRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, chunk_num, container_path,
		       frame_count, size_bytes, duration_secs, created_at, status
		FROM chunks
		WHERE session_id = ?
		ORDER BY chunk_num ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetChunksByStatus returns chunks with the given status, oldest first
func (s *SQLiteDB) GetChunksByStatus(status ChunkStatus, limit int) ([]ChunkRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, chunk_num, container_path,
		       frame_count, size_bytes, duration_secs, created_at, status
		FROM chunks
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by status: %v", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]ChunkRecord, error) {
	var chunks []ChunkRecord
	for rows.Next() {
		var rec ChunkRecord
		var containerPath sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.ChunkNum,
			&containerPath,
			&rec.FrameCount,
			&rec.SizeBytes,
			&rec.DurationSecs,
			&rec.CreatedAt,
			&rec.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %v", err)
		}
		rec.ContainerPath = containerPath.String
		chunks = append(chunks, rec)
	}
	return chunks, rows.Err()
}

// UpdateChunkStatus updates the status of a chunk record
func (s *SQLiteDB) UpdateChunkStatus(id string, status ChunkStatus) error {
	_, err := s.db.Exec(`UPDATE chunks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update chunk status: %v", err)
	}
	return nil
}

// SessionsOlderThan returns finished sessions whose recording ended before cutoff
func (s *SQLiteDB) SessionsOlderThan(cutoff time.Time) ([]SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, subject, date, session_num, device_id, dir,
		       start_time, end_time, total_frames, status
		FROM sessions
		WHERE status = ? AND end_time IS NOT NULL AND end_time < ?
	`, StatusFinished, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query old sessions: %v", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var endTime sql.NullTime
		err := rows.Scan(
			&rec.ID,
			&rec.Subject,
			&rec.Date,
			&rec.SessionNum,
			&rec.DeviceID,
			&rec.Dir,
			&rec.StartTime,
			&endTime,
			&rec.TotalFrames,
			&rec.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %v", err)
		}
		if endTime.Valid {
			rec.EndTime = &endTime.Time
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// Vacuum reclaims free pages after deletes
func (s *SQLiteDB) Vacuum() error {
	_, err := s.db.Exec(`VACUUM`)
	return err
}

// Close closes the underlying database handle
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
