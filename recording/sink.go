package recording

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"camrig/transcode"
)

// FrameSink receives encoded frame bytes from the capture pipeline. Write may
// be called from a different goroutine than Close.
type FrameSink interface {
	Write(frame []byte) error
	Close() error
}

// ChunkOutput is a FrameSink that reports its results once closed.
type ChunkOutput interface {
	FrameSink
	FrameCount() int64
	ContainerPath() string
}

const (
	// mediaFlushBytes bounds data loss on abnormal termination without
	// paying for a flush per frame.
	mediaFlushBytes = 512 * 1024
	// timestampFlushFrames bounds timestamp-row loss the same way.
	timestampFlushFrames = 10
)

// ChunkSink is the per-chunk output sink: it appends each incoming encoded
// frame to a raw bitstream file and one row per frame to a sibling timestamp
// table. On close it hands the finished bitstream to the converter and
// records the resulting container path.
type ChunkSink struct {
	mu     sync.Mutex
	closed bool

	videoPath string
	video     *os.File
	videoBuf  *bufio.Writer
	unflushed int
	framerate int
	converter transcode.Converter

	tsFile   *os.File
	tsBuf    *bufio.Writer
	tsWriter *csv.Writer

	frameCount    int64
	startTime     time.Time
	containerPath string
}

// NewChunkSink creates the bitstream file at videoPath and the sibling
// "_timestamps.csv" table with its header row. The converter is invoked on
// Close with the given framerate as the explicit input rate.
func NewChunkSink(videoPath string, framerate int, converter transcode.Converter) (*ChunkSink, error) {
	video, err := os.Create(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create video file %s: %w", videoPath, err)
	}

	tsPath := timestampPath(videoPath)
	tsFile, err := os.Create(tsPath)
	if err != nil {
		video.Close()
		return nil, fmt.Errorf("failed to create timestamp file %s: %w", tsPath, err)
	}

	tsBuf := bufio.NewWriter(tsFile)
	tsWriter := csv.NewWriter(tsBuf)
	if err := tsWriter.Write([]string{"frame_number", "time_since_start_seconds", "system_time_iso8601"}); err != nil {
		video.Close()
		tsFile.Close()
		return nil, fmt.Errorf("failed to write timestamp header: %w", err)
	}

	return &ChunkSink{
		videoPath: videoPath,
		video:     video,
		videoBuf:  bufio.NewWriterSize(video, 64*1024),
		framerate: framerate,
		converter: converter,
		tsFile:    tsFile,
		tsBuf:     tsBuf,
		tsWriter:  tsWriter,
		startTime: time.Now(),
	}, nil
}

func timestampPath(videoPath string) string {
	if i := strings.LastIndex(videoPath, "."); i > 0 {
		return videoPath[:i] + "_timestamps.csv"
	}
	return videoPath + "_timestamps.csv"
}

// Write appends the frame bytes to the bitstream file and one timestamp row
// to the table. Calls on a closed sink are ignored. A failed frame write is
// reported but leaves the sink usable for the next frame. A frame whose
// timestamp row fails still counts: the bitstream already carries its bytes,
// and the count must stay aligned with the media file.
func (s *ChunkSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	now := time.Now()
	if _, err := s.videoBuf.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", s.frameCount, err)
	}
	s.unflushed += len(frame)
	if s.unflushed >= mediaFlushBytes {
		if err := s.videoBuf.Flush(); err != nil {
			return fmt.Errorf("failed to flush video buffer: %w", err)
		}
		s.unflushed = 0
	}

	frameNum := s.frameCount
	s.frameCount++

	err := s.tsWriter.Write([]string{
		strconv.FormatInt(frameNum, 10),
		strconv.FormatFloat(now.Sub(s.startTime).Seconds(), 'f', 6, 64),
		now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to write timestamp row for frame %d: %w", frameNum, err)
	}

	if s.frameCount%timestampFlushFrames == 0 {
		s.tsWriter.Flush()
		if err := s.tsBuf.Flush(); err != nil {
			return fmt.Errorf("failed to flush timestamp buffer: %w", err)
		}
	}

	return nil
}

// Close flushes and closes both files, then invokes the converter. It is
// idempotent: the second and later calls are no-ops. The frame count is
// frozen at the first Close. A conversion failure is logged and leaves the
// container path empty; it does not fail the Close.
func (s *ChunkSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.videoBuf.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to flush video file: %w", err)
	}
	if err := s.video.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close video file: %w", err)
	}
	s.tsWriter.Flush()
	if err := s.tsBuf.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to flush timestamp file: %w", err)
	}
	if err := s.tsFile.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close timestamp file: %w", err)
	}

	containerPath, err := s.converter.Convert(s.videoPath, s.framerate)
	if err != nil {
		log.Printf("[Sink] Conversion failed for %s: %v", s.videoPath, err)
	} else {
		s.containerPath = containerPath
		log.Printf("[Sink] Converted %s (%d frames)", containerPath, s.frameCount)
	}

	return firstErr
}

// FrameCount returns the number of frames written so far; after Close it is
// the frozen final count.
func (s *ChunkSink) FrameCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// ContainerPath returns the converted container path, or "" if the sink is
// still open or conversion failed.
func (s *ChunkSink) ContainerPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containerPath
}

// VideoPath returns the raw bitstream path the sink writes to.
func (s *ChunkSink) VideoPath() string {
	return s.videoPath
}
