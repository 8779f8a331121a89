// Package clock provides the monotonic millisecond timestamp primitive used
// by every TTL-bearing store, behind a seam tests can override.
package clock

import "time"

// start anchors NowMs to the wall clock once; later readings advance by the
// elapsed monotonic time, so NowMs never goes backwards.
var start = time.Now()

// NowMs returns the current time as milliseconds since the Unix epoch.
var NowMs = func() int64 {
	return start.UnixMilli() + time.Since(start).Milliseconds()
}

// Since returns the elapsed milliseconds between ts and now.
func Since(ts int64) int64 {
	return NowMs() - ts
}
