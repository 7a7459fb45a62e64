package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"camrig/config"
)

// FrameWriter receives one encoded video frame per call. The pipeline invokes
// it from its reader goroutine.
type FrameWriter func(frame []byte) error

// Pipeline runs rpicam-vid as a subprocess, configures the sensor from the
// settings document, and delivers the H.264 frames it produces to a
// FrameWriter. Sensor control semantics are owned by the camera stack; this
// package only maps config values onto command-line flags.
type Pipeline struct {
	cfg    config.CameraConfig
	writer FrameWriter

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	done    chan struct{}
}

// NewPipeline creates a capture pipeline that feeds writer.
func NewPipeline(cfg config.CameraConfig, writer FrameWriter) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		writer: writer,
	}
}

// BuildArgs maps the camera configuration onto the rpicam-vid argument list.
// The stream is written to stdout with inline SPS/PPS so every chunk file
// starts decodable.
func BuildArgs(cfg config.CameraConfig) []string {
	args := []string{
		"--nopreview",
		"--timeout", "0", // record until killed
		"--codec", "h264",
		"--inline",
		"--flush",
		"--width", strconv.Itoa(cfg.Resolution.Width),
		"--height", strconv.Itoa(cfg.Resolution.Height),
		"--framerate", strconv.Itoa(cfg.Framerate),
		"--bitrate", strconv.Itoa(cfg.Bitrate),
		"--autofocus-mode", "manual",
		"--lens-position", strconv.FormatFloat(cfg.Lens.Position, 'f', -1, 64),
		"--brightness", strconv.FormatFloat(cfg.Brightness, 'f', -1, 64),
		"--contrast", strconv.FormatFloat(cfg.Contrast, 'f', -1, 64),
		"--saturation", strconv.FormatFloat(cfg.Saturation, 'f', -1, 64),
		"--sharpness", strconv.FormatFloat(cfg.Sharpness, 'f', -1, 64),
		"--gain", strconv.FormatFloat(cfg.AnalogGain, 'f', -1, 64),
		"--ev", strconv.FormatFloat(cfg.ExposureValue, 'f', -1, 64),
		"--denoise", denoiseMode(cfg.NoiseReduction),
		"--awb", "auto",
		"--output", "-",
	}
	return args
}

// denoiseMode maps the numeric noise-reduction control onto rpicam-vid's
// denoise flag values.
func denoiseMode(mode int) string {
	switch mode {
	case 0:
		return "off"
	case 1:
		return "cdn_fast"
	case 2:
		return "cdn_hq"
	default:
		return "auto"
	}
}

// Start launches the capture subprocess and begins delivering frames. The
// subprocess is killed when ctx is cancelled; Wait returns once the stream
// has drained.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("capture pipeline already running")
	}

	args := BuildArgs(p.cfg)
	cmd := exec.CommandContext(ctx, "rpicam-vid", args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open capture stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start rpicam-vid: %w", err)
	}

	log.Printf("[Camera] Capture started: rpicam-vid %dx%d @ %d fps",
		p.cfg.Resolution.Width, p.cfg.Resolution.Height, p.cfg.Framerate)

	p.cmd = cmd
	p.running = true
	p.done = make(chan struct{})

	go p.readStream(stdout)
	return nil
}

// readStream splits the raw Annex-B byte stream into frames and forwards
// them to the writer. Runs until the subprocess closes its stdout.
func (p *Pipeline) readStream(stdout io.Reader) {
	defer close(p.done)

	reader := bufio.NewReaderSize(stdout, 256*1024)
	asm := NewFrameAssembler(p.writer)

	buf := make([]byte, 64*1024)
	var frames, dropped uint64
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			f, d := asm.Push(buf[:n])
			frames += f
			dropped += d
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[Camera] Stream read error: %v", err)
			}
			break
		}
	}

	f, d := asm.Flush()
	frames += f
	dropped += d
	log.Printf("[Camera] Capture stream ended: %d frames delivered, %d dropped", frames, dropped)

	if err := p.cmd.Wait(); err != nil {
		// Expected when the context kills the subprocess on shutdown.
		log.Printf("[Camera] rpicam-vid exited: %v", err)
	}
}

// Wait blocks until the capture stream has drained after cancellation.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}
