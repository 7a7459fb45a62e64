package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camera_config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
subject_name: rat42
pi_identifier: pi-01
camera:
  resolution:
    width: 1280
    height: 720
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Camera.Framerate != 30 {
		t.Errorf("default framerate = %d, want 30", cfg.Camera.Framerate)
	}
	if cfg.Camera.Bitrate != 10_000_000 {
		t.Errorf("default bitrate = %d, want 10000000", cfg.Camera.Bitrate)
	}
	if cfg.Recording.ChunkLength != 300 {
		t.Errorf("default chunk_length = %d, want 300", cfg.Recording.ChunkLength)
	}
	if cfg.Recording.InitialChunk != 1 {
		t.Errorf("default initial_chunk = %d, want 1", cfg.Recording.InitialChunk)
	}
	want := []int{33333, 33333}
	if len(cfg.Camera.FrameDurationLimits) != 2 ||
		cfg.Camera.FrameDurationLimits[0] != want[0] ||
		cfg.Camera.FrameDurationLimits[1] != want[1] {
		t.Errorf("default frame_duration_limits = %v, want %v", cfg.Camera.FrameDurationLimits, want)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("default server port = %s, want 8080", cfg.Server.Port)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SUBJECT_NAME", "rat99")
	t.Setenv("CHUNK_LENGTH", "60")
	t.Setenv("VIDEO_SAVE_PATH", "/mnt/ssd/videos")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.SubjectName != "rat99" {
		t.Errorf("subject_name override = %s, want rat99", cfg.SubjectName)
	}
	if cfg.Recording.ChunkLength != 60 {
		t.Errorf("chunk_length override = %d, want 60", cfg.Recording.ChunkLength)
	}
	if cfg.Paths.VideoSavePath != "/mnt/ssd/videos" {
		t.Errorf("video_save_path override = %s, want /mnt/ssd/videos", cfg.Paths.VideoSavePath)
	}
}

func TestLoadConfigInvalidChunkLengthEnv(t *testing.T) {
	t.Setenv("CHUNK_LENGTH", "banana")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Recording.ChunkLength != 300 {
		t.Errorf("chunk_length with bad env = %d, want default 300", cfg.Recording.ChunkLength)
	}
}

func TestLoadConfigMissingSubject(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
camera:
  resolution:
    width: 1280
    height: 720
`))
	if err == nil || !strings.Contains(err.Error(), "subject_name") {
		t.Errorf("expected subject_name validation error, got %v", err)
	}
}

func TestLoadConfigMissingResolution(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
subject_name: rat42
`))
	if err == nil || !strings.Contains(err.Error(), "resolution") {
		t.Errorf("expected resolution validation error, got %v", err)
	}
}

func TestValidateFrameDurationLimits(t *testing.T) {
	cfg := Config{
		SubjectName: "rat42",
		Camera: CameraConfig{
			Resolution:          Resolution{Width: 1280, Height: 720},
			Framerate:           30,
			FrameDurationLimits: []int{33333},
		},
		Recording: RecordingConfig{ChunkLength: 300},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for one-entry frame_duration_limits")
	}
}

func TestEnsurePaths(t *testing.T) {
	base := t.TempDir()
	cfg := Config{
		Paths: PathsConfig{
			VideoSavePath: filepath.Join(base, "videos"),
			DatabasePath:  filepath.Join(base, "data", "sessions.db"),
		},
	}
	if err := EnsurePaths(cfg); err != nil {
		t.Fatalf("EnsurePaths() error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.VideoSavePath, filepath.Join(base, "data")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}
