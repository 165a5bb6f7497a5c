package zwint

import (
	"io"
	"log/slog"
	"time"
)

// ackWait tracks the host ACKs still owed for a synthesized multi-part
// intercept response (§3 "ack-expectation", §4.4 step 1). It is only
// ever allocated for a response of more than one sub-frame: §3 and
// property 7 both scope the whole mechanism to "a multi-part response",
// and a single-part reply (§8 S3) has nothing left to await, so no
// expectation — and no matching holdoff — is ever created for it. See
// DESIGN.md for the full reasoning: treating "numParts > 0" as literal
// total-part-count would set holdoff on every response, including
// single-part ones that never trigger the ack-swallow path that clears
// it, permanently wedging the notification queue.
type ackWait struct {
	parts   [][]byte
	partNum int
}

// done reports whether every remaining part has been acked.
func (a *ackWait) done() bool { return a.partNum >= len(a.parts) }

// Dispatcher is the pair of per-direction state machines behind one
// registered endpoint pair (§3, §4.4): receiveScan sees controller→host
// traffic (send=false), sendScan sees host→controller traffic
// (send=true). Both consult the same shared rule store and notification
// queue. Every method must be called with the engine's mutex held (§5).
type Dispatcher struct {
	rules  *ruleSet
	queue  *notifyQueue
	logger *slog.Logger

	receiveScan frameScanner
	sendScan    frameScanner

	ack *ackWait

	hostW io.Writer
	ctrlW io.Writer
}

func newDispatcher(rules *ruleSet, queue *notifyQueue, hostW, ctrlW io.Writer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{rules: rules, queue: queue, hostW: hostW, ctrlW: ctrlW, logger: logger}
}

// FeedHost processes a chunk read from the host endpoint (send=true).
func (d *Dispatcher) FeedHost(chunk []byte) {
	d.sendScan.feed(chunk, d.swallowAck,
		func(frame []byte) { d.handleFrame(frame, true) },
		func(noise []byte) { writeAll(d.ctrlW, noise) })
}

// FeedController processes a chunk read from the controller endpoint
// (send=false). There is no ack-swallow hook on this side (§9 open
// question: the source never sets one up for receive-direction
// forwarded responses either).
func (d *Dispatcher) FeedController(chunk []byte) {
	d.receiveScan.feed(chunk, nil,
		func(frame []byte) { d.handleFrame(frame, false) },
		func(noise []byte) { writeAll(d.hostW, noise) })
}

// swallowAck is the frame scanner's preIdleByte hook for the send
// direction (§4.4 step 1). While a multi-part response is outstanding,
// it consumes ACK bytes one at a time, releasing the next queued
// sub-frame, and tears down the expectation (clearing holdoff) once the
// host has acked every part.
func (d *Dispatcher) swallowAck(c byte) bool {
	if d.ack == nil {
		return false
	}
	if c != ack {
		// Non-ACK breaks the expectation (§4.4 step 1); the byte itself
		// is not consumed and falls through to normal idle handling.
		d.ack = nil
		return false
	}

	d.ack.partNum++
	if !d.ack.done() {
		writeAll(d.hostW, d.ack.parts[d.ack.partNum])
		return true
	}
	d.ack = nil
	d.queue.setHoldoff(false)
	return true
}

// handleFrame implements §4.4 steps 2-5 for one validated, checksum-good
// frame arriving in the given direction.
func (d *Dispatcher) handleFrame(frame []byte, send bool) {
	hexStr := hexRender(frame)
	intercepted := false

	d.rules.forEach(func(r *Rule) (bool, bool) {
		if !r.appliesTo(send) {
			return false, false
		}

		idx := r.activeRegex().FindStringSubmatchIndex(hexStr)
		if idx == nil {
			return false, false
		}

		if !r.armed {
			r.armed = true
			return false, false
		}

		intercepted = d.fire(r, send, frame, hexStr, idx) || intercepted

		shouldDelete := false
		if r.armPattern != nil && !r.Oneshot {
			r.armed = false
		}
		if r.Oneshot {
			shouldDelete = true
		}
		return intercepted, shouldDelete
	})

	if !intercepted {
		writeAll(d.oppositeOf(send), frame)
	}
}

// fire runs §4.4 step 4 for a rule matched while armed. It returns true
// if a response was injected (stopping further rule scanning).
func (d *Dispatcher) fire(r *Rule, send bool, frame []byte, hexStr string, idx []int) bool {
	var parts [][]byte
	tmplErr := r.tmplErr
	if tmplErr == nil && r.tmpl != nil {
		parts, tmplErr = r.tmpl.execute(frame, idx)
	}

	switch {
	case tmplErr != nil:
		if d.logger != nil {
			d.logger.Warn("response template failed", "key", r.Key, "error", tmplErr)
		}
		d.enqueueNotification(r, EventError, hexStr, idx, tmplErr.Error())
		return false
	case len(parts) > 0:
		target := d.responseTarget(send, r.Forward)
		writeAll(target, parts[0])
		if send && len(parts) > 1 {
			d.ack = &ackWait{parts: parts, partNum: 0}
			d.queue.setHoldoff(true)
		}
		d.enqueueNotification(r, fireKind(send), hexStr, idx, "")
		return true
	default:
		d.enqueueNotification(r, fireKind(send), hexStr, idx, "")
		return false
	}
}

func fireKind(send bool) EventKind {
	if send {
		return EventIntercept
	}
	return EventMonitor
}

// responseTarget implements §4.4 step 4's input_fd/output_fd choice:
// forward==false replies to the side the frame came from, forward==true
// replies to the opposite side.
func (d *Dispatcher) responseTarget(send, forward bool) io.Writer {
	originIsHost := send
	if originIsHost != forward {
		return d.hostW
	}
	return d.ctrlW
}

func (d *Dispatcher) oppositeOf(send bool) io.Writer {
	if send {
		return d.ctrlW
	}
	return d.hostW
}

// enqueueNotification renders and enqueues one notification for r,
// skipping silent rules entirely (§4.6 "silent rules skip enqueue").
func (d *Dispatcher) enqueueNotification(r *Rule, kind EventKind, hexStr string, idx []int, errMsg string) {
	if r.Silent() {
		return
	}
	n := notification{
		kind:         kind,
		deviceNum:    r.DeviceNum,
		key:          r.Key,
		captures:     notificationCaptures(hexStr, idx),
		errorMessage: errMsg,
	}
	d.queue.enqueue(renderNotification(n, time.Now()))
}

// writeAll writes the full buffer, discarding write errors: §7's
// recovery model treats I/O loop failures as logged-and-retried at the
// connection level (engine.go), never as a reason to corrupt or resize
// a frame in flight.
func writeAll(w io.Writer, buf []byte) {
	if w == nil || len(buf) == 0 {
		return
	}
	_, _ = w.Write(buf)
}
