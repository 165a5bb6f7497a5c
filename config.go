package zwint

import "time"

// Config controls engine-wide behavior not dictated by a specific
// registration or rule (§4.6, §4.7).
type Config struct {
	// NotifyAddr is the loopback HTTP sink notifications are sent to.
	// Defaults to 127.0.0.1:3480 (§6.2).
	NotifyAddr string
	// DialTimeout bounds each (re)connect attempt to NotifyAddr.
	DialTimeout time.Duration
	// ReadBufSize sizes the per-endpoint read buffer used by the I/O
	// loop's reader goroutines (§4.7).
	ReadBufSize int
	// ReadIdleTimeout bounds how long a reader goroutine may block on an
	// endpoint that implements SetReadDeadline (e.g. net.Conn or an
	// *os.File on a pollable descriptor) before the read is retried. 0 disables
	// deadline management for transports that manage their own timeouts.
	ReadIdleTimeout time.Duration
}

func (c *Config) defaults() {
	if c.NotifyAddr == "" {
		c.NotifyAddr = notifyHost
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = 4096
	}
	if c.ReadIdleTimeout < 0 {
		c.ReadIdleTimeout = 0
	}
}
