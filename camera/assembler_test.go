package camera

import (
	"bytes"
	"testing"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// nal builds a NAL unit with the given type byte and payload length.
func nal(nalType byte, payloadLen int) []byte {
	unit := append([]byte{}, startCode...)
	unit = append(unit, nalType)
	unit = append(unit, bytes.Repeat([]byte{0xAA}, payloadLen)...)
	return unit
}

const (
	nalSlice = 0x01 // non-IDR coded slice
	nalIDR   = 0x05 // IDR coded slice
	nalSEI   = 0x06
	nalSPS   = 0x67 // type 7 with nal_ref_idc bits set
	nalPPS   = 0x68 // type 8
)

func collectFrames(t *testing.T) (*FrameAssembler, *[][]byte) {
	t.Helper()
	var frames [][]byte
	asm := NewFrameAssembler(func(frame []byte) error {
		frames = append(frames, frame)
		return nil
	})
	return asm, &frames
}

func TestAssemblerOneFramePerSlice(t *testing.T) {
	asm, frames := collectFrames(t)

	stream := append([]byte{}, nal(nalIDR, 20)...)
	stream = append(stream, nal(nalSlice, 10)...)
	stream = append(stream, nal(nalSlice, 10)...)

	asm.Push(stream)
	got, dropped := asm.Flush()
	_ = got

	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(*frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(*frames))
	}
}

func TestAssemblerParameterSetsAttachedToFrame(t *testing.T) {
	asm, frames := collectFrames(t)

	sps := nal(nalSPS, 8)
	pps := nal(nalPPS, 4)
	sei := nal(nalSEI, 6)
	idr := nal(nalIDR, 30)

	stream := append([]byte{}, sps...)
	stream = append(stream, pps...)
	stream = append(stream, sei...)
	stream = append(stream, idr...)
	stream = append(stream, nal(nalSlice, 10)...) // forces the IDR unit complete

	asm.Push(stream)
	asm.Flush()

	if len(*frames) != 2 {
		t.Fatalf("frames = %d, want 2 (SPS/PPS/SEI folded into the IDR frame)", len(*frames))
	}
	want := append(append(append(append([]byte{}, sps...), pps...), sei...), idr...)
	if !bytes.Equal((*frames)[0], want) {
		t.Errorf("first frame does not carry its parameter sets:\n got %x\nwant %x", (*frames)[0], want)
	}
}

func TestAssemblerStartCodeSplitAcrossReads(t *testing.T) {
	asm, frames := collectFrames(t)

	stream := append([]byte{}, nal(nalIDR, 25)...)
	stream = append(stream, nal(nalSlice, 25)...)
	stream = append(stream, nal(nalSlice, 25)...)

	// Feed one byte at a time; every start code spans a read boundary.
	for i := range stream {
		asm.Push(stream[i : i+1])
	}
	asm.Flush()

	if len(*frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(*frames))
	}
	total := 0
	for _, f := range *frames {
		total += len(f)
	}
	if total != len(stream) {
		t.Errorf("reassembled bytes = %d, want %d", total, len(stream))
	}
}

func TestAssemblerFlushEmitsTrailingFrame(t *testing.T) {
	asm, frames := collectFrames(t)

	// A single frame with no following start code is only complete at EOF.
	asm.Push(nal(nalIDR, 15))
	if len(*frames) != 0 {
		t.Fatalf("frame emitted before Flush: %d", len(*frames))
	}

	got, _ := asm.Flush()
	if got != 1 || len(*frames) != 1 {
		t.Fatalf("Flush() emitted %d frames, want 1", len(*frames))
	}
}

func TestAssemblerCountsDroppedFrames(t *testing.T) {
	fail := true
	asm := NewFrameAssembler(func(frame []byte) error {
		if fail {
			fail = false
			return bytes.ErrTooLarge
		}
		return nil
	})

	stream := append([]byte{}, nal(nalIDR, 10)...)
	stream = append(stream, nal(nalSlice, 10)...)
	stream = append(stream, nal(nalSlice, 10)...)

	frames, dropped := asm.Push(stream)
	f, d := asm.Flush()
	frames += f
	dropped += d

	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if frames != 2 {
		t.Errorf("delivered = %d, want 2", frames)
	}
}

func TestFindStartCode(t *testing.T) {
	if got := findStartCode([]byte{0xFF, 0x00, 0x00, 0x00, 0x01, 0x65}); got != 1 {
		t.Errorf("findStartCode() = %d, want 1", got)
	}
	if got := findStartCode([]byte{0x00, 0x00, 0x01}); got != -1 {
		t.Errorf("findStartCode() on short buffer = %d, want -1", got)
	}
}
