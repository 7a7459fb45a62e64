package service

import (
	"errors"
	"testing"
	"time"

	"camrig/database"
	"camrig/metrics"
)

type fakeUploader struct {
	uploaded []string
	failFor  map[string]bool
}

func (u *fakeUploader) UploadFile(localPath, remotePath string) (string, error) {
	if u.failFor[localPath] {
		return "", errors.New("network down")
	}
	u.uploaded = append(u.uploaded, remotePath)
	return "https://bucket.example/" + remotePath, nil
}

// mockDB implements database.Database with an in-memory chunk list.
type mockDB struct {
	database.Database // panic on anything not overridden
	chunks            []database.ChunkRecord
	statuses          map[string]database.ChunkStatus
}

func newMockDB(chunks ...database.ChunkRecord) *mockDB {
	return &mockDB{chunks: chunks, statuses: make(map[string]database.ChunkStatus)}
}

func (m *mockDB) GetChunksByStatus(status database.ChunkStatus, limit int) ([]database.ChunkRecord, error) {
	var out []database.ChunkRecord
	for _, c := range m.chunks {
		s, ok := m.statuses[c.ID]
		if !ok {
			s = c.Status
		}
		if s == status && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDB) UpdateChunkStatus(id string, status database.ChunkStatus) error {
	m.statuses[id] = status
	return nil
}

func chunk(id, containerPath string) database.ChunkRecord {
	return database.ChunkRecord{
		ID:            id,
		SessionID:     "rat42_20260831_1",
		ChunkNum:      1,
		ContainerPath: containerPath,
		FrameCount:    9000,
		CreatedAt:     time.Now(),
		Status:        database.ChunkReady,
	}
}

func TestUploadPendingMarksUploaded(t *testing.T) {
	db := newMockDB(
		chunk("c1", "/data/rat42_20260831_1/chunk001.mp4"),
		chunk("c2", "/data/rat42_20260831_1/chunk002.mp4"),
	)
	up := &fakeUploader{}
	svc := &UploadService{db: db, uploader: up, interval: time.Second}

	svc.uploadPending()

	if len(up.uploaded) != 2 {
		t.Fatalf("uploaded = %d, want 2", len(up.uploaded))
	}
	// Remote layout is {sessionID}/{container basename}.
	if up.uploaded[0] != "rat42_20260831_1/chunk001.mp4" {
		t.Errorf("remote path = %s, want rat42_20260831_1/chunk001.mp4", up.uploaded[0])
	}
	if db.statuses["c1"] != database.ChunkUploaded || db.statuses["c2"] != database.ChunkUploaded {
		t.Errorf("chunk statuses = %v, want uploaded", db.statuses)
	}
}

func TestUploadPendingRetriesFailures(t *testing.T) {
	db := newMockDB(chunk("c1", "/data/chunk001.mp4"))
	up := &fakeUploader{failFor: map[string]bool{"/data/chunk001.mp4": true}}
	svc := &UploadService{db: db, uploader: up, interval: time.Second}

	svc.uploadPending()

	if _, ok := db.statuses["c1"]; ok {
		t.Errorf("failed upload must leave the chunk in ready state, got %s", db.statuses["c1"])
	}

	// The chunk is picked up again once the uploader recovers.
	up.failFor = nil
	svc.uploadPending()
	if db.statuses["c1"] != database.ChunkUploaded {
		t.Errorf("chunk not uploaded after retry: %v", db.statuses)
	}
}

func TestUploadPendingRecordsUploadTiming(t *testing.T) {
	db := newMockDB(chunk("c1", "/data/chunk001.mp4"))
	up := &fakeUploader{}
	collector := metrics.NewCollector()
	collector.StartChunk(1)
	svc := &UploadService{db: db, uploader: up, metrics: collector, interval: time.Second}

	svc.uploadPending()

	m := collector.GetChunk(1)
	if m == nil {
		t.Fatal("chunk metrics entry missing")
	}
	if m.UploadStartTime == nil || m.UploadEndTime == nil {
		t.Errorf("upload timing not recorded: start=%v end=%v", m.UploadStartTime, m.UploadEndTime)
	}
}

func TestUploadPendingFailureLeavesUploadOpen(t *testing.T) {
	db := newMockDB(chunk("c1", "/data/chunk001.mp4"))
	up := &fakeUploader{failFor: map[string]bool{"/data/chunk001.mp4": true}}
	collector := metrics.NewCollector()
	collector.StartChunk(1)
	svc := &UploadService{db: db, uploader: up, metrics: collector, interval: time.Second}

	svc.uploadPending()

	if m := collector.GetChunk(1); m.UploadEndTime != nil {
		t.Error("failed upload must not record an end time")
	}
}

func TestUploadPendingSkipsEmptyContainerPath(t *testing.T) {
	db := newMockDB(chunk("c1", ""))
	up := &fakeUploader{}
	svc := &UploadService{db: db, uploader: up, interval: time.Second}

	svc.uploadPending()

	if len(up.uploaded) != 0 {
		t.Errorf("uploaded = %v, want none for empty container path", up.uploaded)
	}
}
