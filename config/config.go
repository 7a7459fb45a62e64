package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Resolution holds the capture frame dimensions.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LensConfig holds manual focus settings.
type LensConfig struct {
	Position float64 `yaml:"position"`
}

// CameraConfig holds sensor and encoder settings for the capture pipeline.
// The control semantics (valid ranges, units) are owned by the camera stack;
// values are passed through unmodified.
type CameraConfig struct {
	Resolution          Resolution `yaml:"resolution"`
	FrameFormat         string     `yaml:"frame_format"`
	Framerate           int        `yaml:"framerate"`
	FrameDurationLimits []int      `yaml:"frame_duration_limits"` // microseconds, [min, max]
	Lens                LensConfig `yaml:"lens"`
	Brightness          float64    `yaml:"brightness"`
	Contrast            float64    `yaml:"contrast"`
	Saturation          float64    `yaml:"saturation"`
	Sharpness           float64    `yaml:"sharpness"`
	AnalogGain          float64    `yaml:"analog_gain"`
	ExposureValue       float64    `yaml:"exposure_value"`
	NoiseReduction      int        `yaml:"noise_reduction"`
	Bitrate             int        `yaml:"bitrate"`
}

// RecordingConfig holds chunking parameters.
type RecordingConfig struct {
	ChunkLength  int `yaml:"chunk_length"`  // seconds per chunk
	InitialChunk int `yaml:"initial_chunk"` // first chunk number (default 1)
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	VideoSavePath string `yaml:"video_save_path"`
	DatabasePath  string `yaml:"database_path"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// UploadConfig holds optional S3-compatible upload settings for finished chunks.
type UploadConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
}

// CleanupConfig holds retention settings for old session directories.
type CleanupConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// TriggerConfig holds the optional hardware stop-button settings.
type TriggerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

// Config contains all configuration for the recorder. It is loaded once at
// startup and passed explicitly to every component constructor.
type Config struct {
	SubjectName  string `yaml:"subject_name"`
	PiIdentifier string `yaml:"pi_identifier"`

	Camera    CameraConfig    `yaml:"camera"`
	Recording RecordingConfig `yaml:"recording"`
	Paths     PathsConfig     `yaml:"paths"`
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Trigger   TriggerConfig   `yaml:"trigger"`
}

// LoadConfig reads the YAML settings document at path, applies environment
// overrides and defaults, and validates required fields.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the settings
// document without editing it (e.g. per-rig subject names from a .env file).
func applyEnvOverrides(cfg *Config) {
	cfg.SubjectName = getEnv("SUBJECT_NAME", cfg.SubjectName)
	cfg.PiIdentifier = getEnv("PI_IDENTIFIER", cfg.PiIdentifier)
	cfg.Paths.VideoSavePath = getEnv("VIDEO_SAVE_PATH", cfg.Paths.VideoSavePath)
	cfg.Paths.DatabasePath = getEnv("DATABASE_PATH", cfg.Paths.DatabasePath)
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Upload.AccessKey = getEnv("UPLOAD_ACCESS_KEY", cfg.Upload.AccessKey)
	cfg.Upload.SecretKey = getEnv("UPLOAD_SECRET_KEY", cfg.Upload.SecretKey)

	if v := os.Getenv("CHUNK_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Recording.ChunkLength = n
		} else {
			log.Printf("[Config] Ignoring invalid CHUNK_LENGTH=%q", v)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Camera.Framerate == 0 {
		cfg.Camera.Framerate = 30
	}
	if len(cfg.Camera.FrameDurationLimits) == 0 {
		us := 1_000_000 / cfg.Camera.Framerate
		cfg.Camera.FrameDurationLimits = []int{us, us}
	}
	if cfg.Camera.FrameFormat == "" {
		cfg.Camera.FrameFormat = "YUV420"
	}
	if cfg.Camera.Bitrate == 0 {
		cfg.Camera.Bitrate = 10_000_000
	}
	if cfg.Recording.ChunkLength == 0 {
		cfg.Recording.ChunkLength = 300
	}
	if cfg.Recording.InitialChunk == 0 {
		cfg.Recording.InitialChunk = 1
	}
	if cfg.Paths.VideoSavePath == "" {
		cfg.Paths.VideoSavePath = "./videos"
	}
	if cfg.Paths.DatabasePath == "" {
		cfg.Paths.DatabasePath = "./data/sessions.db"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Upload.Region == "" {
		cfg.Upload.Region = "auto"
	}
	if cfg.Cleanup.RetentionDays == 0 {
		cfg.Cleanup.RetentionDays = 30
	}
	if cfg.Trigger.BaudRate == 0 {
		cfg.Trigger.BaudRate = 9600
	}
	if cfg.PiIdentifier == "" {
		// Stable-enough fallback so file names are still unique per run.
		cfg.PiIdentifier = "pi-" + uuid.NewString()[:8]
		log.Printf("[Config] pi_identifier not set, using generated id %s", cfg.PiIdentifier)
	}
}

// Validate checks fields the recorder cannot run without.
func (cfg Config) Validate() error {
	if cfg.SubjectName == "" {
		return fmt.Errorf("config: subject_name is required")
	}
	if cfg.Camera.Resolution.Width <= 0 || cfg.Camera.Resolution.Height <= 0 {
		return fmt.Errorf("config: camera.resolution must be positive, got %dx%d",
			cfg.Camera.Resolution.Width, cfg.Camera.Resolution.Height)
	}
	if cfg.Camera.Framerate <= 0 {
		return fmt.Errorf("config: camera.framerate must be positive, got %d", cfg.Camera.Framerate)
	}
	if cfg.Recording.ChunkLength <= 0 {
		return fmt.Errorf("config: recording.chunk_length must be positive, got %d", cfg.Recording.ChunkLength)
	}
	if len(cfg.Camera.FrameDurationLimits) != 2 {
		return fmt.Errorf("config: camera.frame_duration_limits must have two entries, got %d",
			len(cfg.Camera.FrameDurationLimits))
	}
	return nil
}

// EnsurePaths creates the directories the recorder writes into.
func EnsurePaths(cfg Config) error {
	if err := os.MkdirAll(cfg.Paths.VideoSavePath, 0755); err != nil {
		return fmt.Errorf("failed to create video save path %s: %w", cfg.Paths.VideoSavePath, err)
	}
	dbDir := filepath.Dir(cfg.Paths.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}
	return nil
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
