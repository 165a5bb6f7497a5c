package zwint

// Z-Wave serial frame markers.
const (
	sof = 0x01 // start of frame
	ack = 0x06 // host/controller acknowledgement
)

// maxZwaveBufSize bounds a single synthesized response buffer (§7
// ResponseTooLong). Incoming frames are bounded only by the scanner's
// length-byte check (L < 128).
const maxZwaveBufSize = 128

// maxResponseParts is the maximum number of sub-frames a response
// template may synthesize (§4.3).
const maxResponseParts = 3

// checksumInit is the running XOR accumulator's initial value,
// XORed with every byte from the length byte onward.
const checksumInit = 0xff

// Notification HTTP target (§4.6, §6.2).
const (
	notifyHost      = "127.0.0.1:3480"
	notifyServiceID = "urn:gengen_mcv-org:serviceId:ZWaveMonitor1"
)

// EventKind names the four notification actions (§4.6, §7).
type EventKind string

const (
	EventMonitor   EventKind = "Monitor"
	EventIntercept EventKind = "Intercept"
	EventTimeout   EventKind = "Timeout"
	EventError     EventKind = "Error"
)

// hexDigits is used for canonical uppercase hex rendering (§4.2/§9).
const hexDigits = "0123456789ABCDEF"
