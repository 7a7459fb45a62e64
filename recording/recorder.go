package recording

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"camrig/config"
	"camrig/database"
	"camrig/metadata"
	"camrig/metrics"
	"camrig/session"
	"camrig/transcode"
)

// recorder states
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped // terminal
)

// SinkFactory creates the output sink for a chunk number.
type SinkFactory func(chunkNum int) (ChunkOutput, error)

// ContinuousRecorder drives chunked continuous recording: a background timer
// rolls the active sink over to a new chunk every chunk interval without
// stopping capture, and reports each completed chunk to the session ledger.
//
// Rollover ordering: the new sink is swapped in first, then the old sink is
// closed. This keeps the window in which no sink accepts frames as small as
// possible; the frames the capture pipeline delivers between the swap request
// and the pipeline observing it land in whichever sink is active when they
// arrive. That boundary is accepted and covered by tests.
type ContinuousRecorder struct {
	sess        *session.Session
	ledger      *metadata.SessionLedger
	db          database.Database // may be nil
	collector   *metrics.Collector
	newSink     SinkFactory
	chunkLength time.Duration
	framerate   int

	mu           sync.Mutex
	state        int32
	active       ChunkOutput
	chunkCounter int // number of the chunk the active sink is recording
	stopCh       chan struct{}
	wg           sync.WaitGroup

	totalFrames atomic.Int64
}

// NewContinuousRecorder builds a recorder for the session. The default sink
// factory writes ChunkSinks converted by ffmpeg; tests replace it via
// SetSinkFactory before Start.
func NewContinuousRecorder(sess *session.Session, ledger *metadata.SessionLedger, db database.Database, cfg config.Config) *ContinuousRecorder {
	r := &ContinuousRecorder{
		sess:        sess,
		ledger:      ledger,
		db:          db,
		collector:   metrics.NewCollector(),
		chunkLength: time.Duration(cfg.Recording.ChunkLength) * time.Second,
		framerate:   cfg.Camera.Framerate,
		stopCh:      make(chan struct{}),
	}
	r.chunkCounter = cfg.Recording.InitialChunk
	r.newSink = func(chunkNum int) (ChunkOutput, error) {
		return NewChunkSink(sess.ChunkVideoPath(chunkNum), r.framerate, transcode.FFmpegConverter{})
	}
	return r
}

// SetSinkFactory replaces the sink factory. Must be called before Start.
func (r *ContinuousRecorder) SetSinkFactory(f SinkFactory) {
	r.newSink = f
}

// Start opens the first chunk's sink and begins the rollover timer. The
// recorder observes ctx cooperatively: cancelling it is equivalent to calling
// Stop, minus the synchronous guarantee (use Stop for shutdown sequencing).
func (r *ContinuousRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		return fmt.Errorf("recorder already started")
	}

	first, err := r.newSink(r.chunkCounter)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to create first chunk sink: %w", err)
	}
	r.active = first
	r.state = stateRunning
	r.mu.Unlock()

	log.Printf("[Recorder] Recording started, chunk interval %s", r.chunkLength)

	r.wg.Add(1)
	go r.monitor(ctx)
	return nil
}

// WriteFrame delivers one encoded frame to the currently active sink. It is
// the capture pipeline's callback and may run on any goroutine. Frames
// arriving while no sink is active (after Stop) are dropped.
func (r *ContinuousRecorder) WriteFrame(frame []byte) error {
	r.mu.Lock()
	sink := r.active
	r.mu.Unlock()

	if sink == nil {
		return nil
	}
	if err := sink.Write(frame); err != nil {
		// Frame dropped; the sink stays usable for the next one.
		log.Printf("[Recorder] Frame write error: %v", err)
	}
	return nil
}

// monitor is the timer loop: one rollover per elapsed chunk interval while
// still running. A rollover that overruns (conversion of a large chunk can
// take seconds) delays the next tick rather than skipping it.
func (r *ContinuousRecorder) monitor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.chunkLength)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.rollover()
		}
	}
}

// rollover creates the next chunk's sink, swaps it in as the active output,
// then closes the sink that was active before the swap and records it in the
// ledger. Any error is logged and the timer keeps running; a sink-creation
// failure abandons this tick only (the chunk number is retried next tick).
func (r *ContinuousRecorder) rollover() {
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return
	}

	nextNum := r.chunkCounter + 1
	next, err := r.newSink(nextNum)
	if err != nil {
		r.mu.Unlock()
		log.Printf("[Recorder] Failed to create sink for chunk %03d: %v", nextNum, err)
		return
	}

	old := r.active
	oldNum := r.chunkCounter
	r.active = next
	r.chunkCounter = nextNum
	r.mu.Unlock()

	log.Printf("[Recorder] Started new chunk: %s", r.sess.ChunkVideoPath(nextNum))
	r.finishChunk(old, oldNum)
}

// finishChunk closes a sink that has been swapped out of the write path,
// freezes its frame count, and appends its container to the ledger. On
// conversion failure the ledger simply does not gain the chunk and the frame
// total is left unchanged; recording continues.
func (r *ContinuousRecorder) finishChunk(sink ChunkOutput, chunkNum int) {
	if sink == nil {
		return
	}

	m := r.collector.StartChunk(chunkNum)
	if err := sink.Close(); err != nil {
		log.Printf("[Recorder] Error closing chunk %03d: %v", chunkNum, err)
	}
	m.EndConversion()

	frames := sink.FrameCount()
	expected := int64(r.chunkLength.Seconds()) * int64(r.framerate)
	log.Printf("[Recorder] Completed chunk %03d with %d frames (expected ~%d) in %s",
		chunkNum, frames, expected, m.ConversionDuration())

	containerPath := sink.ContainerPath()
	if containerPath == "" {
		log.Printf("[Recorder] Chunk %03d has no container file, not recorded in ledger", chunkNum)
		r.recordChunkDB(chunkNum, "", frames, database.ChunkFailed)
		return
	}

	total := r.totalFrames.Add(frames)
	if err := r.ledger.UpdateChunk(containerPath, total); err != nil {
		log.Printf("[Recorder] Failed to update ledger for chunk %03d: %v", chunkNum, err)
	}
	r.recordChunkDB(chunkNum, containerPath, frames, database.ChunkReady)
}

// recordChunkDB mirrors the chunk into the registry, best-effort.
func (r *ContinuousRecorder) recordChunkDB(chunkNum int, containerPath string, frames int64, status database.ChunkStatus) {
	if r.db == nil {
		return
	}

	var size int64
	var duration float64
	if containerPath != "" {
		if info, err := os.Stat(containerPath); err == nil {
			size = info.Size()
		}
		if d, err := transcode.ProbeDuration(containerPath); err == nil {
			duration = d
		} else {
			log.Printf("[Recorder] Could not probe duration of chunk %03d: %v", chunkNum, err)
		}
	}

	rec := database.ChunkRecord{
		ID:            fmt.Sprintf("%s_chunk%03d", r.sess.Key(), chunkNum),
		SessionID:     r.sess.Key(),
		ChunkNum:      chunkNum,
		ContainerPath: containerPath,
		FrameCount:    frames,
		SizeBytes:     size,
		DurationSecs:  duration,
		CreatedAt:     time.Now(),
		Status:        status,
	}
	if err := r.db.CreateChunk(rec); err != nil {
		log.Printf("[Recorder] Failed to record chunk %03d in registry: %v", chunkNum, err)
	}
	if err := r.db.UpdateSessionProgress(r.sess.Key(), r.totalFrames.Load()); err != nil {
		log.Printf("[Recorder] Failed to update session progress in registry: %v", err)
	}
}

// Stop cancels future rollovers, waits for an in-flight rollover to finish,
// closes the final sink, and finalizes the ledger with the end time before
// returning. It is safe to call more than once; later calls are no-ops. A
// rollover racing with Stop cannot close the same sink twice: the swap is
// serialized by the recorder mutex and sink Close is idempotent.
func (r *ContinuousRecorder) Stop() {
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return
	}
	r.state = stateStopped
	close(r.stopCh)
	r.mu.Unlock()

	// Wait for the timer goroutine, including any rollover it is mid-way
	// through (its conversion subprocess is waited for, not interrupted).
	r.wg.Wait()

	r.mu.Lock()
	final := r.active
	finalNum := r.chunkCounter
	r.active = nil
	r.mu.Unlock()

	r.finishChunk(final, finalNum)

	endTime := time.Now()
	if err := r.ledger.Finalize(endTime); err != nil {
		log.Printf("[Recorder] Failed to finalize ledger: %v", err)
	}
	if r.db != nil {
		if err := r.db.FinishSession(r.sess.Key(), endTime, r.totalFrames.Load()); err != nil {
			log.Printf("[Recorder] Failed to finish session in registry: %v", err)
		}
	}

	log.Printf("[Recorder] Recording stopped. Total frames recorded: %d", r.totalFrames.Load())
	for _, line := range r.collector.Summaries() {
		log.Printf("[Recorder] %s", line)
	}
}

// TotalFrames returns the running total of frames across closed chunks.
func (r *ContinuousRecorder) TotalFrames() int64 {
	return r.totalFrames.Load()
}

// Metrics returns the per-chunk processing metrics collector.
func (r *ContinuousRecorder) Metrics() *metrics.Collector {
	return r.collector
}
