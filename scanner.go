package zwint

// scanState is the frame scanner's position within a candidate frame
// (§3 "direction state", §4.2).
type scanState int

const (
	scanIdle scanState = iota
	scanLen
	scanBody
)

// frameScanner is the byte-stream → validated-frame state machine of
// §4.2. One instance exists per direction and its state survives
// across feed calls — callers must not assume one chunk equals one
// frame (§9 design note).
type frameScanner struct {
	state  scanState
	buf    []byte // accumulating candidate frame, buf[0] == sof
	length int    // L, valid once state >= scanBody
	xor    byte   // running checksum, reset to checksumInit at each SOF
}

// feed processes one chunk of raw bytes. onFrame is called with a
// complete, checksum-valid frame (including SOF and checksum) for
// dispatch; passthrough is called with bytes that do not belong to a
// framed packet — leading noise, an aborted oversized-length attempt,
// or a frame whose checksum failed (§4.2, §8 property 1/2). Both
// callbacks receive a buffer the scanner will not reuse.
//
// preIdleByte, if non-nil, is consulted for every byte seen while the
// scanner is Idle, before SOF detection — this is the hook the
// intercept direction uses to swallow host ACKs of a pending
// multi-part response (§4.4 step 1) without disturbing the framer's
// noise-batching. It returns true if the byte was consumed.
func (fs *frameScanner) feed(chunk []byte, preIdleByte func(byte) bool, onFrame, passthrough func([]byte)) {
	var pending []byte

	for _, c := range chunk {
		switch fs.state {
		case scanIdle:
			if preIdleByte != nil && preIdleByte(c) {
				continue
			}
			if c == sof {
				if len(pending) > 0 {
					passthrough(pending)
					pending = nil
				}
				fs.buf = append(fs.buf[:0], c)
				fs.xor = checksumInit
				fs.state = scanLen
			} else {
				pending = append(pending, c)
			}

		case scanLen:
			if c >= 128 {
				// Impossible length: abort and fold the bytes already
				// consumed (SOF + this byte) back into the noise
				// stream rather than dropping them (§4.2 "treat as
				// noise").
				pending = append(pending, fs.buf...)
				pending = append(pending, c)
				fs.buf = fs.buf[:0]
				fs.state = scanIdle
				continue
			}
			fs.buf = append(fs.buf, c)
			fs.xor ^= c
			fs.length = int(c)
			fs.state = scanBody

		case scanBody:
			fs.buf = append(fs.buf, c)
			fs.xor ^= c
			if len(fs.buf) == fs.length+2 { // checksum position reached
				frame := append([]byte(nil), fs.buf...)
				if fs.xor == 0 {
					onFrame(frame)
				} else {
					passthrough(frame)
				}
				fs.buf = fs.buf[:0]
				fs.state = scanIdle
			}
		}
	}

	if fs.state == scanIdle && len(pending) > 0 {
		passthrough(pending)
	}
}

// hexRender builds the canonical space-separated uppercase hex
// rendering of a frame (§9 "hex rendering is canonical"). All rule
// matching is against this text, never against the raw bytes.
func hexRender(frame []byte) string {
	if len(frame) == 0 {
		return ""
	}
	out := make([]byte, 0, len(frame)*3-1)
	for i, b := range frame {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(out)
}
