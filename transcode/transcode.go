package transcode

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Converter repackages a raw bitstream file into a playable container.
// Implementations must treat a non-zero exit status or an empty output file
// as failure.
type Converter interface {
	// Convert remuxes inputPath into a container and returns the output path.
	Convert(inputPath string, framerate int) (string, error)
}

// FFmpegConverter converts raw H.264 elementary streams to MP4 using ffmpeg
// stream copy (no re-encoding). The raw stream carries no timing, so the
// configured framerate is passed as the explicit input rate.
type FFmpegConverter struct{}

// Convert remuxes inputPath (an .h264 file) to the sibling .mp4 path. On
// success the original bitstream file is deleted and the MP4 path returned.
func (FFmpegConverter) Convert(inputPath string, framerate int) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp4"

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "h264",
		"-fflags", "+genpts", // raw stream has no PTS, generate them
		"-r", strconv.Itoa(framerate),
		"-i", inputPath,
		"-c:v", "copy",
		"-movflags", "+faststart",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg conversion failed: %v\nOutput: %s", err, string(output))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("conversion produced no output file: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("conversion produced empty MP4 file %s", outputPath)
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("failed to remove source bitstream %s: %w", inputPath, err)
	}

	return outputPath, nil
}

// ProbeDuration returns the duration in seconds of a finished container,
// read with ffprobe. Used to sanity-check chunk length against the configured
// interval in the registry.
func ProbeDuration(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("cannot probe %s: %w", path, err)
	}

	out, err := exec.Command("ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %v", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %v", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}
