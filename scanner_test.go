package zwint

import (
	"bytes"
	"testing"
)

func TestFrameScannerValidFrame(t *testing.T) {
	var frames, noise [][]byte
	var fs frameScanner

	fs.feed([]byte{0x01, 0x03, 0x00, 0x02, 0xFE}, nil,
		func(f []byte) { frames = append(frames, f) },
		func(n []byte) { noise = append(noise, n) })

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	want := []byte{0x01, 0x03, 0x00, 0x02, 0xFE}
	if !bytes.Equal(frames[0], want) {
		t.Errorf("frame = % X, want % X", frames[0], want)
	}
	if noise != nil {
		t.Errorf("noise = %v, want none", noise)
	}
}

func TestFrameScannerBadChecksumPassesThrough(t *testing.T) {
	var frames, noise [][]byte
	var fs frameScanner

	bad := []byte{0x01, 0x03, 0x00, 0x02, 0xAA}
	fs.feed(bad, nil,
		func(f []byte) { frames = append(frames, f) },
		func(n []byte) { noise = append(noise, n) })

	if frames != nil {
		t.Errorf("frames = %v, want none", frames)
	}
	if len(noise) != 1 || !bytes.Equal(noise[0], bad) {
		t.Errorf("noise = %v, want [% X]", noise, bad)
	}
}

func TestFrameScannerNoisePreservesOrder(t *testing.T) {
	var frames, noise [][]byte
	var fs frameScanner

	fs.feed([]byte{0x06, 0x15, 0x02, 0x01, 0x03, 0x00, 0x02, 0xFE}, nil,
		func(f []byte) { frames = append(frames, f) },
		func(n []byte) { noise = append(noise, n) })

	if len(noise) != 1 || !bytes.Equal(noise[0], []byte{0x06, 0x15, 0x02}) {
		t.Errorf("noise = %v, want [06 15 02]", noise)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
}

func TestFrameScannerOversizedLengthAborts(t *testing.T) {
	var frames, noise [][]byte
	var fs frameScanner

	// SOF followed by an impossible length byte (>= 128): folded back
	// as noise rather than dropped (§4.2).
	fs.feed([]byte{0x01, 0x80, 0x06}, nil,
		func(f []byte) { frames = append(frames, f) },
		func(n []byte) { noise = append(noise, n) })

	if frames != nil {
		t.Errorf("frames = %v, want none", frames)
	}
	if len(noise) != 1 || !bytes.Equal(noise[0], []byte{0x01, 0x80, 0x06}) {
		t.Errorf("noise = %v, want [01 80 06]", noise)
	}
}

func TestFrameScannerSpansMultipleFeeds(t *testing.T) {
	var frames [][]byte
	var fs frameScanner

	onFrame := func(f []byte) { frames = append(frames, f) }
	noop := func([]byte) {}

	fs.feed([]byte{0x01, 0x03, 0x00}, nil, onFrame, noop)
	if frames != nil {
		t.Fatalf("frame completed early: %v", frames)
	}
	fs.feed([]byte{0x02, 0xFE}, nil, onFrame, noop)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
}

func TestFrameScannerPreIdleByteConsumes(t *testing.T) {
	var frames, noise [][]byte
	var consumed []byte
	var fs frameScanner

	pre := func(c byte) bool {
		if c == 0x06 {
			consumed = append(consumed, c)
			return true
		}
		return false
	}

	fs.feed([]byte{0x06, 0x06, 0x15, 0x01, 0x03, 0x00, 0x02, 0xFE}, pre,
		func(f []byte) { frames = append(frames, f) },
		func(n []byte) { noise = append(noise, n) })

	if len(consumed) != 2 {
		t.Errorf("consumed = %d, want 2", len(consumed))
	}
	if len(noise) != 1 || !bytes.Equal(noise[0], []byte{0x15}) {
		t.Errorf("noise = %v, want [15]", noise)
	}
	if len(frames) != 1 {
		t.Errorf("frames = %d, want 1", len(frames))
	}
}

func TestHexRender(t *testing.T) {
	got := hexRender([]byte{0x01, 0x05, 0x00, 0x04, 0x00, 0x01, 0xFB})
	want := "01 05 00 04 00 01 FB"
	if got != want {
		t.Errorf("hexRender = %q, want %q", got, want)
	}
}

func TestHexRenderEmpty(t *testing.T) {
	if got := hexRender(nil); got != "" {
		t.Errorf("hexRender(nil) = %q, want empty", got)
	}
}
