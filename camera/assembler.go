package camera

import "log"

// FrameAssembler turns an H.264 Annex-B byte stream into per-frame writer
// calls. NAL units are split on start codes; parameter sets (SPS/PPS/SEI)
// are held back and emitted together with the VCL slice that follows them,
// so the writer sees exactly one call per video frame.
type FrameAssembler struct {
	writer  FrameWriter
	pending []byte // raw bytes not yet resolved into complete NAL units
	frame   []byte // NAL units accumulated for the frame being assembled
}

// NewFrameAssembler creates an assembler delivering frames to writer.
func NewFrameAssembler(writer FrameWriter) *FrameAssembler {
	return &FrameAssembler{writer: writer}
}

// Push feeds stream bytes into the assembler. It returns the number of
// frames delivered to the writer and the number dropped on write error.
func (a *FrameAssembler) Push(data []byte) (frames, dropped uint64) {
	a.pending = append(a.pending, data...)

	for {
		nalu, rest, ok := nextNALU(a.pending)
		if !ok {
			a.pending = rest
			return frames, dropped
		}
		a.pending = rest

		f, d := a.appendNALU(nalu)
		frames += f
		dropped += d
	}
}

// Flush emits the trailing NAL unit once the stream has ended; without a
// following start code it can only be recognized as complete at EOF.
func (a *FrameAssembler) Flush() (frames, dropped uint64) {
	if start := findStartCode(a.pending); start >= 0 {
		f, d := a.appendNALU(a.pending[start:])
		frames += f
		dropped += d
		a.pending = nil
	}
	if len(a.frame) > 0 {
		f, d := a.emit()
		frames += f
		dropped += d
	}
	return frames, dropped
}

// appendNALU adds one complete NAL unit to the current frame and emits the
// frame when the unit is a VCL slice.
func (a *FrameAssembler) appendNALU(nalu []byte) (frames, dropped uint64) {
	a.frame = append(a.frame, nalu...)
	if isVCL(nalu) {
		return a.emit()
	}
	return 0, 0
}

func (a *FrameAssembler) emit() (frames, dropped uint64) {
	frame := make([]byte, len(a.frame))
	copy(frame, a.frame)
	a.frame = a.frame[:0]

	if err := a.writer(frame); err != nil {
		log.Printf("[Camera] Dropped frame: %v", err)
		return 0, 1
	}
	return 1, 0
}

// nextNALU extracts the first complete NAL unit (start code included) from
// buf. A unit is complete when the next start code has been seen. When no
// complete unit is available it returns ok=false and the bytes to retain.
func nextNALU(buf []byte) (nalu, rest []byte, ok bool) {
	start := findStartCode(buf)
	if start < 0 {
		// Keep the last 3 bytes in case a start code is split across reads.
		if len(buf) > 3 {
			return nil, append(buf[:0], buf[len(buf)-3:]...), false
		}
		return nil, buf, false
	}
	if start > 0 {
		buf = buf[start:]
	}

	next := findStartCode(buf[4:])
	if next < 0 {
		return nil, buf, false
	}

	end := 4 + next
	return buf[:end], buf[end:], true
}

// findStartCode returns the index of the first 00 00 00 01 start code, or -1.
func findStartCode(buf []byte) int {
	for i := 0; i+4 <= len(buf); i++ {
		if buf[i] != 0 {
			continue
		}
		if buf[i+1] == 0 && buf[i+2] == 0 && buf[i+3] == 1 {
			return i
		}
	}
	return -1
}

// isVCL reports whether the NAL unit (with leading start code) is a coded
// slice, i.e. carries picture data. Types 1-5 are VCL in H.264.
func isVCL(nalu []byte) bool {
	if len(nalu) < 5 {
		return false
	}
	nalType := nalu[4] & 0x1F
	return nalType >= 1 && nalType <= 5
}
