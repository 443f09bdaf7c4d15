package epoch

import (
	"runtime"
	"strconv"
)

// currentGoroutineID returns the ID of the calling goroutine.
//
// There is no supported API for this, so we parse the header of
// runtime.Stack output, which is stable across Go releases:
//
//	goroutine 123 [running]:
//	...
//
// At ~µs cost this is far too slow for a hot path, which is why role
// pinning happens inside the already-locked commit/cancel critical
// sections and never on the worker poll path.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from a runtime.Stack header line.
// Returns 0 if the buffer does not look like a stack header.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	buf = buf[len(prefix):]

	end := 0
	for end < len(buf) && buf[end] >= '0' && buf[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	gid, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}
