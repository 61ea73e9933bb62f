package service

import "time"

// SimulateLatency stands in for the network round trip the demo does not
// make. It is a plain suspension point: not cancellable, never retried, and
// a started call always runs to completion.
func SimulateLatency(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
