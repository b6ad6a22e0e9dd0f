package core

// DebugWriter emits one line of debug output. Platform code installs one
// with SetDebugWriter.
type DebugWriter func(string)

// Debug output state. Messages from the I2C interrupt go through queue,
// which a goroutine drains.
var debug struct {
	write   DebugWriter
	enabled bool
	queue   chan string
	dropped uint32
}

func SetDebugWriter(w DebugWriter) {
	debug.write = w
}

func SetDebugEnabled(enabled bool) {
	debug.enabled = enabled
}

func IsDebugEnabled() bool {
	return debug.enabled
}

// InitAsyncDebug starts draining DebugAsync messages. Call it once, after
// SetDebugWriter.
func InitAsyncDebug() {
	debug.queue = make(chan string, 16)
	go func(q <-chan string) {
		for msg := range q {
			DebugPrintln(msg)
		}
	}(debug.queue)
}

// DebugPrintln writes msg synchronously when debug output is enabled
func DebugPrintln(msg string) {
	if debug.enabled && debug.write != nil {
		debug.write(msg)
	}
}

// DebugAsync queues msg without blocking, so it is safe in interrupt
// context. Messages are dropped while the queue is full or before
// InitAsyncDebug.
func DebugAsync(msg string) {
	if debug.queue == nil || !debug.enabled {
		return
	}
	select {
	case debug.queue <- msg:
	default:
		debug.dropped++
	}
}

// DebugDropped returns how many queued messages were lost
func DebugDropped() uint32 {
	return debug.dropped
}
