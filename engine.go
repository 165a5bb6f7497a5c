package zwint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Endpoint is the minimal transport contract an embedder supplies for
// each side of a registered connection (§4.1). Discovering the host's
// existing descriptor and splicing it is a foreign-call-surface concern
// out of scope here (§1); Register takes the two already-spliced
// endpoints and a devicePath string used only as the refcount identity
// (§6.1).
type Endpoint interface {
	io.Reader
	io.Writer
}

// ioEvent is one chunk read off a registered endpoint, destined for the
// dispatch goroutine (§4.7's single-threaded I/O loop, realized here as
// one reader goroutine per source feeding a single dispatcher
// goroutine over a channel instead of a shared poll(2) set).
type ioEvent struct {
	reg  *registration
	send bool // true = from the host endpoint, false = from the controller
	data []byte
}

// registration is the single active register() session (§6.1: the
// source supports exactly one device_path at a time; a second path
// while one is active is an error, a repeat of the same path just
// bumps the refcount).
type registration struct {
	devicePath string
	refcount   int
	dispatcher *Dispatcher
	host, ctrl Endpoint
	closed     chan struct{}
}

// Engine is the top-level interception service (§5, §6.1): one shared
// rule store, one notification queue, and at most one active
// registration, each guarded by a single mutex per §5's coarse-locking
// design note.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	rules ruleSet
	queue *notifyQueue
	reg   *registration

	events  chan ioEvent
	drained chan net.Conn

	wg sync.WaitGroup
}

// NewEngine constructs an idle engine. No I/O runs until Register.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan ioEvent, 16),
		drained: make(chan net.Conn, 1),
	}
	e.queue = newNotifyQueue(e.dialNotify, e.onConnActive, logger)
	return e
}

func (e *Engine) dialNotify() (net.Conn, error) {
	return net.DialTimeout("tcp", e.cfg.NotifyAddr, e.cfg.DialTimeout)
}

// onConnActive spins up the fire-and-forget drain of an in-flight
// notification's response (§4.6 "drained to EOF, content discarded").
// It must not touch queue state directly — only the dispatch goroutine
// does that, under the mutex, once the drain reports back.
func (e *Engine) onConnActive(conn net.Conn) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = io.Copy(io.Discard, conn)
		e.drained <- conn
	}()
}

// Register locates (per the embedder's own splice contract, §4.1) and
// adopts a pair of endpoints for devicePath, starting the I/O loop on
// first registration or incrementing the refcount on a repeat of the
// same path (§6.1). ctx, if non-nil, bounds the registration's
// lifetime: its cancellation triggers the same teardown as Unregister.
func (e *Engine) Register(ctx context.Context, devicePath string, host, controller Endpoint) error {
	e.mu.Lock()
	if e.reg != nil {
		if e.reg.devicePath != devicePath {
			e.mu.Unlock()
			return newError(BadArgument, fmt.Sprintf("already registered to %q", e.reg.devicePath), nil)
		}
		e.reg.refcount++
		e.mu.Unlock()
		return nil
	}

	reg := &registration{
		devicePath: devicePath,
		refcount:   1,
		host:       host,
		ctrl:       controller,
		closed:     make(chan struct{}),
	}
	reg.dispatcher = newDispatcher(&e.rules, e.queue, host, controller, e.logger)
	e.reg = reg
	e.mu.Unlock()

	e.wg.Add(3)
	go e.run(reg)
	go e.readLoop(reg, host, true)
	go e.readLoop(reg, controller, false)

	if ctx != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			select {
			case <-ctx.Done():
				_ = e.Unregister(nil)
			case <-reg.closed:
			}
		}()
	}
	return nil
}

// Unregister decrements the active registration's refcount (§6.1).
// Reaching zero tears down the I/O loop and closes both endpoints.
// Rules matching deviceNum are removed; deviceNum == nil, or the
// refcount reaching zero, removes every rule regardless of device_num.
func (e *Engine) Unregister(deviceNum *int) error {
	e.mu.Lock()
	if e.reg == nil {
		e.mu.Unlock()
		return newError(NotRegistered, "no active registration", nil)
	}

	e.reg.refcount--
	zero := e.reg.refcount <= 0

	if deviceNum == nil || zero {
		e.rules.unregisterDevice(nil)
	} else {
		e.rules.unregisterDevice(deviceNum)
	}

	var torndown *registration
	if zero {
		torndown = e.reg
		e.reg = nil
	}
	e.mu.Unlock()

	if torndown != nil {
		close(torndown.closed)
		closeEndpoint(torndown.host)
		closeEndpoint(torndown.ctrl)
	}
	return nil
}

func closeEndpoint(ep Endpoint) {
	if c, ok := ep.(io.Closer); ok {
		_ = c.Close()
	}
}

// Monitor inserts a receive-direction rule (§6.1).
func (e *Engine) Monitor(spec RuleSpec) error {
	spec.Direction = DirectionMonitor
	return e.addRule(spec)
}

// Intercept inserts a send-direction rule (§6.1).
func (e *Engine) Intercept(spec RuleSpec) error {
	spec.Direction = DirectionIntercept
	return e.addRule(spec)
}

func (e *Engine) addRule(spec RuleSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reg == nil {
		return newError(NotRegistered, "monitor/intercept requires a prior Register", nil)
	}

	var deadline int64
	if spec.TimeoutMS > 0 {
		deadline = nowMillis() + spec.TimeoutMS
	}

	id := e.rules.nextID
	r, err := newRule(id, spec, deadline)
	if err != nil {
		return err
	}
	e.rules.nextID++
	e.rules.insert(r)
	// Wake the dispatch goroutine so it re-arms its timer for the new
	// head rule; an event with no data feeds nothing to the scanner.
	select {
	case e.events <- ioEvent{reg: e.reg}:
	default:
	}
	return nil
}

// Cancel removes the first rule matching both deviceNum and key (§6.1).
func (e *Engine) Cancel(deviceNum int, key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.cancel(deviceNum, key) != nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// deadlineSetter is implemented by transports that support read
// deadlines (net.Conn, *os.File on a pollable descriptor). readLoop uses
// it, when present, to bound an otherwise-indefinite blocking Read.
type deadlineSetter interface {
	SetReadDeadline(time.Time) error
}

// readLoop is the per-endpoint half of §4.7's I/O multiplexing: one
// goroutine blocks in Read while the dispatch goroutine (run) drains
// events, matching the spirit of a single poll(2) wait without needing
// a shared readiness primitive across heterogeneous Go I/O sources. If
// ep supports read deadlines and Config.ReadIdleTimeout is set, each
// Read is bounded so a silent endpoint never wedges Unregister/teardown
// waiting on this goroutine.
func (e *Engine) readLoop(reg *registration, ep Endpoint, send bool) {
	defer e.wg.Done()
	ds, hasDeadline := ep.(deadlineSetter)
	buf := make([]byte, e.cfg.ReadBufSize)
	for {
		if hasDeadline && e.cfg.ReadIdleTimeout > 0 {
			_ = ds.SetReadDeadline(time.Now().Add(e.cfg.ReadIdleTimeout))
		}
		n, err := ep.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			select {
			case e.events <- ioEvent{reg: reg, send: send, data: data}:
			case <-reg.closed:
				return
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				select {
				case <-reg.closed:
					return
				default:
					continue
				}
			}
			return
		}
	}
}

// run is the dispatch goroutine for one registration: it serializes
// all mutation of shared state behind the engine mutex, held only
// while processing one event — never while blocked in the select
// (§5's "mutex not held during the wait").
func (e *Engine) run(reg *registration) {
	defer e.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		d, has := e.nextTimeout()
		e.mu.Unlock()
		resetTimer(timer, d, has)

		select {
		case <-reg.closed:
			return
		case ev := <-e.events:
			e.mu.Lock()
			if ev.send {
				ev.reg.dispatcher.FeedHost(ev.data)
			} else {
				ev.reg.dispatcher.FeedController(ev.data)
			}
			e.mu.Unlock()
		case conn := <-e.drained:
			e.mu.Lock()
			_ = conn
			e.queue.onDrained()
			e.mu.Unlock()
		case <-timer.C:
			e.mu.Lock()
			e.sweepTimeouts()
			e.mu.Unlock()
		}
	}
}

// nextTimeout returns the head rule's remaining wait, per §4.5's
// 0-as-never convention. Caller must hold the mutex.
func (e *Engine) nextTimeout() (time.Duration, bool) {
	h := e.rules.head()
	if h == nil || h.deadline == 0 {
		return 0, false
	}
	d := time.Duration(h.deadline-nowMillis()) * time.Millisecond
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d, true
}

// sweepTimeouts removes every rule past its deadline and emits its
// Timeout notification (§4.5, §8 property 8). Caller must hold the
// mutex.
func (e *Engine) sweepTimeouts() {
	now := nowMillis()
	for _, r := range e.rules.expired(now) {
		if r.Silent() {
			continue
		}
		e.queue.enqueue(renderNotification(timeoutNotification(r), time.Now()))
	}
}

func resetTimer(t *time.Timer, d time.Duration, has bool) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if has {
		t.Reset(d)
	} else {
		t.Reset(time.Hour)
	}
}
