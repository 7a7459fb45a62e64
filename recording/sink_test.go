package recording

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeConverter stands in for ffmpeg: it renames the bitstream to a .mp4
// sibling, or fails when told to.
type fakeConverter struct {
	fail  bool
	calls int
}

func (c *fakeConverter) Convert(inputPath string, framerate int) (string, error) {
	c.calls++
	if c.fail {
		return "", errors.New("conversion failed")
	}
	outputPath := strings.TrimSuffix(inputPath, ".h264") + ".mp4"
	if err := os.Rename(inputPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func newTestSink(t *testing.T, conv *fakeConverter) *ChunkSink {
	t.Helper()
	videoPath := filepath.Join(t.TempDir(), "test_chunk001.h264")
	sink, err := NewChunkSink(videoPath, 30, conv)
	if err != nil {
		t.Fatalf("NewChunkSink() error: %v", err)
	}
	return sink
}

func TestChunkSinkWriteCountsFrames(t *testing.T) {
	conv := &fakeConverter{}
	sink := newTestSink(t, conv)

	frame := bytes.Repeat([]byte{0xAB}, 100)
	for i := 0; i < 25; i++ {
		if err := sink.Write(frame); err != nil {
			t.Fatalf("Write() error on frame %d: %v", i, err)
		}
	}

	if got := sink.FrameCount(); got != 25 {
		t.Errorf("FrameCount() = %d, want 25", got)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if got := sink.FrameCount(); got != 25 {
		t.Errorf("FrameCount() after close = %d, want 25", got)
	}

	data, err := os.ReadFile(sink.ContainerPath())
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	if len(data) != 25*100 {
		t.Errorf("container size = %d, want %d", len(data), 25*100)
	}
}

func TestChunkSinkTimestampRows(t *testing.T) {
	conv := &fakeConverter{}
	sink := newTestSink(t, conv)

	for i := 0; i < 7; i++ {
		if err := sink.Write([]byte{0x01, 0x02}); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	tsPath := timestampPath(sink.VideoPath())
	f, err := os.Open(tsPath)
	if err != nil {
		t.Fatalf("opening timestamp file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading timestamp csv: %v", err)
	}

	if len(rows) != 8 { // header + 7 frames
		t.Fatalf("timestamp rows = %d, want 8", len(rows))
	}
	wantHeader := []string{"frame_number", "time_since_start_seconds", "system_time_iso8601"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header column %d = %s, want %s", i, rows[0][i], col)
		}
	}
	for i := 1; i < len(rows); i++ {
		if rows[i][0] != fmt.Sprintf("%d", i-1) {
			t.Errorf("row %d frame number = %s, want %d", i, rows[i][0], i-1)
		}
	}
}

func TestChunkSinkCloseIdempotent(t *testing.T) {
	conv := &fakeConverter{}
	sink := newTestSink(t, conv)

	if err := sink.Write([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	firstPath := sink.ContainerPath()

	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if conv.calls != 1 {
		t.Errorf("converter called %d times, want 1", conv.calls)
	}
	if sink.ContainerPath() != firstPath {
		t.Errorf("container path changed on second close: %s vs %s", sink.ContainerPath(), firstPath)
	}
	if sink.FrameCount() != 1 {
		t.Errorf("frame count after double close = %d, want 1", sink.FrameCount())
	}
}

func TestChunkSinkWriteAfterCloseIgnored(t *testing.T) {
	conv := &fakeConverter{}
	sink := newTestSink(t, conv)

	if err := sink.Write([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	if err := sink.Write([]byte{0x02}); err != nil {
		t.Errorf("Write() after close should be a no-op, got error: %v", err)
	}
	if sink.FrameCount() != 1 {
		t.Errorf("frame count grew after close: %d", sink.FrameCount())
	}
}

func TestChunkSinkConversionFailure(t *testing.T) {
	conv := &fakeConverter{fail: true}
	sink := newTestSink(t, conv)

	if err := sink.Write([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() should not fail on conversion error, got: %v", err)
	}

	if sink.ContainerPath() != "" {
		t.Errorf("container path = %s, want empty on conversion failure", sink.ContainerPath())
	}
	// The raw bitstream survives a failed conversion.
	if _, err := os.Stat(sink.VideoPath()); err != nil {
		t.Errorf("raw bitstream missing after failed conversion: %v", err)
	}
}

func TestChunkSinkTimestampFailureStillCountsFrames(t *testing.T) {
	conv := &fakeConverter{}
	sink := newTestSink(t, conv)

	// Lose the timestamp table underneath the sink; the row flush will fail.
	sink.tsFile.Close()

	frame := []byte{0x01, 0x02, 0x03}
	var writeErr error
	for i := 0; i < timestampFlushFrames; i++ {
		if err := sink.Write(frame); err != nil {
			writeErr = err
		}
	}
	if writeErr == nil {
		t.Fatal("expected a timestamp write error")
	}

	// The bitstream carries every frame, so every frame is counted.
	if got := sink.FrameCount(); got != timestampFlushFrames {
		t.Errorf("FrameCount() = %d, want %d", got, timestampFlushFrames)
	}

	sink.Close() // reports the timestamp file error, media is still converted
	data, err := os.ReadFile(sink.ContainerPath())
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	if len(data) != timestampFlushFrames*len(frame) {
		t.Errorf("container size = %d, want %d", len(data), timestampFlushFrames*len(frame))
	}
}

func TestTimestampPath(t *testing.T) {
	if got := timestampPath("/a/b/chunk001.h264"); got != "/a/b/chunk001_timestamps.csv" {
		t.Errorf("timestampPath() = %s", got)
	}
	if got := timestampPath("/a/b/noext"); got != "/a/b/noext_timestamps.csv" {
		t.Errorf("timestampPath() without extension = %s", got)
	}
}
