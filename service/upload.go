package service

import (
	"context"
	"log"
	"path"
	"path/filepath"
	"time"

	"camrig/database"
	"camrig/metrics"
	"camrig/storage"
)

// Uploader is the subset of storage operations the worker needs; tests
// substitute a fake.
type Uploader interface {
	UploadFile(localPath, remotePath string) (string, error)
}

// UploadService mirrors finished chunk containers into off-rig storage so a
// session survives the rig's SD card. It polls the registry for chunks in
// "ready" state; uploads never touch the recording path.
type UploadService struct {
	db       database.Database
	uploader Uploader
	metrics  *metrics.Collector // may be nil
	interval time.Duration
}

// NewUploadService creates a new upload service. The collector receives
// per-chunk upload timings for chunks recorded in this process.
func NewUploadService(db database.Database, r2Storage *storage.R2Storage, collector *metrics.Collector) *UploadService {
	return &UploadService{
		db:       db,
		uploader: r2Storage,
		metrics:  collector,
		interval: 15 * time.Second,
	}
}

// StartWorker polls for uploadable chunks until ctx is cancelled.
func (s *UploadService) StartWorker(ctx context.Context) {
	go func() {
		log.Println("[Upload] Starting chunk upload worker")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[Upload] Upload worker stopped")
				return
			case <-ticker.C:
				s.uploadPending()
			}
		}
	}()
}

// chunkMetric returns the metrics entry for a chunk number, or nil when the
// chunk was recorded by an earlier process run (no collector entry).
func (s *UploadService) chunkMetric(chunkNum int) *metrics.ChunkMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.GetChunk(chunkNum)
}

// uploadPending uploads up to one polling batch of ready chunks.
func (s *UploadService) uploadPending() {
	chunks, err := s.db.GetChunksByStatus(database.ChunkReady, 10)
	if err != nil {
		log.Printf("[Upload] Error fetching chunks for upload: %v", err)
		return
	}

	for _, chunk := range chunks {
		if chunk.ContainerPath == "" {
			continue
		}

		remotePath := path.Join(chunk.SessionID, filepath.Base(chunk.ContainerPath))
		log.Printf("[Upload] Uploading chunk %s to %s", chunk.ID, remotePath)

		m := s.chunkMetric(chunk.ChunkNum)
		if m != nil {
			m.StartUpload()
		}
		if _, err := s.uploader.UploadFile(chunk.ContainerPath, remotePath); err != nil {
			// Left in "ready" state; the next poll retries it.
			log.Printf("[Upload] Error uploading chunk %s: %v", chunk.ID, err)
			continue
		}
		if m != nil {
			m.EndUpload()
		}

		if err := s.db.UpdateChunkStatus(chunk.ID, database.ChunkUploaded); err != nil {
			log.Printf("[Upload] Error marking chunk %s uploaded: %v", chunk.ID, err)
			continue
		}
		log.Printf("[Upload] Successfully uploaded chunk %s", chunk.ID)
	}
}
