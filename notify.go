package zwint

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// captureParam is one C<n>=<value> query parameter of a rendered
// notification (§4.6).
type captureParam struct {
	index int
	value string
}

// notification is the fully-resolved shape of one HTTP GET before
// rendering (§4.6). It carries only the hex-rendered text of captures,
// never raw bytes — captures in a notification are always substrings
// of the canonical hex rendering, unlike the response template's own
// capture substitution (synth.go), which maps the same offsets back to
// raw bytes.
type notification struct {
	kind         EventKind
	deviceNum    int
	key          string
	captures     []captureParam
	errorMessage string
}

// notificationCaptures implements §4.6's capture inclusion rule: if
// group 1 of the match is present, emit C1..C9 for each present group;
// otherwise emit only C0 (the whole match). idx is in the
// regexp.FindStringSubmatchIndex offset-pair shape.
func notificationCaptures(hexStr string, idx []int) []captureParam {
	group1Present := len(idx) >= 4 && idx[2] >= 0

	hexSubmatch := func(g int) (string, bool) {
		if 2*g+1 >= len(idx) || idx[2*g] < 0 {
			return "", false
		}
		return hexStr[idx[2*g]:idx[2*g+1]], true
	}

	if !group1Present {
		if v, ok := hexSubmatch(0); ok {
			return []captureParam{{0, v}}
		}
		return nil
	}

	var out []captureParam
	for g := 1; g <= 9; g++ {
		if v, ok := hexSubmatch(g); ok {
			out = append(out, captureParam{g, v})
		}
	}
	return out
}

// timeoutNotification builds the notification for a rule removed by
// deadline expiry (§4.5); there is no triggering match, so no captures.
func timeoutNotification(r *Rule) notification {
	return notification{kind: EventTimeout, deviceNum: r.DeviceNum, key: r.Key}
}

// encodeParam applies §4.6's "deliberate simplification": spaces
// become %20, every other byte is sent raw.
func encodeParam(s string) string {
	return strings.ReplaceAll(s, " ", "%20")
}

// renderNotification builds the single HTTP/1.1 GET request text for n
// (§4.6, §6.2). now supplies the wall-clock time field.
func renderNotification(n notification, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("GET /data_request?id=action&DeviceNum=")
	b.WriteString(strconv.Itoa(n.deviceNum))
	b.WriteString("&serviceId=")
	b.WriteString(notifyServiceID)
	b.WriteString("&action=")
	b.WriteString(string(n.kind))
	b.WriteString("&key=")
	b.WriteString(encodeParam(n.key))
	b.WriteString("&time=")
	fmt.Fprintf(&b, "%d.%06d", now.Unix(), now.Nanosecond()/1000)
	for _, c := range n.captures {
		fmt.Fprintf(&b, "&C%d=%s", c.index, encodeParam(c.value))
	}
	if n.errorMessage != "" {
		b.WriteString("&ErrorMessage=")
		b.WriteString(encodeParam(n.errorMessage))
	}
	b.WriteString(" HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n")
	return []byte(b.String())
}

// notifyQueue is the FIFO of rendered notification requests of §4.6,
// gated by active (a request is outstanding on the HTTP socket) and
// holdoff (the dispatcher is mid multi-part response). Callers must
// hold the engine's mutex for every method; the queue does no locking
// of its own (§5 single-mutex model).
type notifyQueue struct {
	items   [][]byte
	active  bool
	holdoff bool
	conn    net.Conn

	dial   func() (net.Conn, error)
	onSent func(net.Conn) // spins up the read-to-EOF drain, engine-supplied
	logger *slog.Logger
}

func newNotifyQueue(dial func() (net.Conn, error), onSent func(net.Conn), logger *slog.Logger) *notifyQueue {
	return &notifyQueue{dial: dial, onSent: onSent, logger: logger}
}

// enqueue appends a rendered request and attempts to pump the queue.
// Silent rules never call this (callers check Rule.Silent first).
func (q *notifyQueue) enqueue(req []byte) {
	q.items = append(q.items, req)
	q.pump()
}

// setHoldoff toggles the multi-part-response gate (§4.4 step 4, §4.6).
func (q *notifyQueue) setHoldoff(v bool) {
	q.holdoff = v
	if !v {
		q.pump()
	}
}

// onDrained is called once the engine's drain goroutine has read the
// in-flight response to EOF (or hit an error); the socket is always
// closed afterward — this sink does not keep a connection alive across
// requests (§4.6 "lazily (re)connected").
func (q *notifyQueue) onDrained() {
	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
	}
	q.active = false
	q.pump()
}

// pump dispatches the head of the queue whenever both gates are clear,
// skipping (dropping) any request whose delivery attempt fails outright
// — this sink has no retry/durability across a broken connection (§1
// Non-goals), so a dead loopback listener simply drops notifications
// rather than stalling the queue forever.
func (q *notifyQueue) pump() {
	for !q.active && !q.holdoff && len(q.items) > 0 {
		req := q.items[0]
		q.items = q.items[1:]

		conn, err := q.send(req)
		if err != nil {
			if q.logger != nil {
				q.logger.Warn("notification delivery failed", "error", err)
			}
			continue
		}

		q.conn = conn
		q.active = true
		if q.onSent != nil {
			q.onSent(conn)
		}
		return
	}
}

// send writes req to the existing connection, or a newly dialed one;
// on a write failure the socket is closed and reconnected exactly once
// (§4.6).
func (q *notifyQueue) send(req []byte) (net.Conn, error) {
	conn := q.conn
	var err error
	if conn == nil {
		if conn, err = q.dial(); err != nil {
			return nil, err
		}
	}
	if _, err = conn.Write(req); err != nil {
		conn.Close()
		if conn, err = q.dial(); err != nil {
			return nil, err
		}
		if _, err = conn.Write(req); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
