package proxy

import "time"

// noDeadline clears a previously set deadline, per the net.Conn contract.
var noDeadline time.Time

// deadline returns the absolute time.Time to pass to Set{Read,Write}Deadline
// for a relative timeout d, or the zero Time (no deadline) when d is zero.
func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return noDeadline
	}
	return time.Now().Add(d)
}
