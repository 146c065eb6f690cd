// Package network models the connection-level behaviour of a page load:
// TCP/TLS connection state, slow start, per-origin connection pools, DNS
// resolution caching, and estimation of per-origin latency from observed
// network records. Nothing here performs real I/O.
package network

import (
	"fmt"
	"math"
)

// TCPSegmentSize is the maximum segment size, in bytes, used to convert a
// congestion window (in segments) into bytes per round trip.
const TCPSegmentSize = 1460

// DefaultInitialCongestionWindow is the initial congestion window, in
// segments, of a freshly opened connection (RFC 6928).
const DefaultInitialCongestionWindow = 10

// MaxCongestionWindow returns the congestion window, in segments, at which a
// single connection saturates throughput (bytes/sec) at the given rtt (ms).
// Growing beyond this window cannot increase the transfer rate. A zero rtt
// has no window limit.
func MaxCongestionWindow(throughput, rtt float64) float64 {
	if rtt <= 0 {
		return math.Inf(1)
	}
	bytesPerRoundTrip := throughput * rtt / 1000
	return math.Max(1, math.Ceil(bytesPerRoundTrip/TCPSegmentSize))
}

// WindowRate returns the rate, in bytes/sec, that a congestion window of cwnd
// segments sustains at the given rtt (ms). A zero rtt is unbounded.
func WindowRate(cwnd, rtt float64) float64 {
	if rtt <= 0 {
		return math.Inf(1)
	}
	return cwnd * TCPSegmentSize / (rtt / 1000)
}

// Connection is the simulated state of one TCP (optionally TLS, optionally
// multiplexed) connection to an origin. A connection becomes warm once its
// handshake completes; warm connections skip DNS, TCP and TLS setup. The
// congestion window persists for the life of the connection and is only
// reset by discarding the connection.
type Connection struct {
	ID          int
	Origin      string
	Secure      bool
	Multiplexed bool

	warm             bool
	congestionWindow float64
	streams          int
	releasedAt       int
}

// IsWarm reports whether the handshake has completed.
func (c *Connection) IsWarm() bool { return c.warm }

// MarkWarm records that the connection's handshake has completed.
func (c *Connection) MarkWarm() { c.warm = true }

// CongestionWindow returns the current congestion window in segments.
func (c *Connection) CongestionWindow() float64 { return c.congestionWindow }

// RetainCongestionWindow keeps the larger of the current window and cwnd.
// Multiplexed streams each grow their own view of the window; the connection
// remembers the widest one.
func (c *Connection) RetainCongestionWindow(cwnd float64) {
	if cwnd > c.congestionWindow {
		c.congestionWindow = cwnd
	}
}

// Streams returns the number of requests currently using the connection.
func (c *Connection) Streams() int { return c.streams }

// InUse reports whether any request is using the connection.
func (c *Connection) InUse() bool { return c.streams > 0 }

func (c *Connection) String() string {
	return fmt.Sprintf("Connection(%d, %s, warm=%t, cwnd=%.0f, streams=%d)", c.ID, c.Origin, c.warm, c.congestionWindow, c.streams)
}
