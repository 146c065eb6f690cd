package network

import "math"

// DNSCache tracks when each hostname finished resolving during a simulation
// run. The first cold connection to a host pays the full resolution cost;
// later connections pay only whatever remains of an in-flight lookup.
type DNSCache struct {
	multiplier float64
	resolvedAt map[string]float64
}

// NewDNSCache creates a cache whose uncached lookups cost multiplier*rtt.
func NewDNSCache(multiplier float64) *DNSCache {
	return &DNSCache{
		multiplier: multiplier,
		resolvedAt: make(map[string]float64),
	}
}

// TimeUntilResolution returns how long a lookup of host issued at requestedAt
// (ms) takes, given the connection's rtt. When update is true the resolution
// time is recorded for subsequent lookups.
func (d *DNSCache) TimeUntilResolution(host string, requestedAt, rtt float64, update bool) float64 {
	cost := d.multiplier * rtt
	if at, ok := d.resolvedAt[host]; ok {
		cost = math.Min(math.Max(at-requestedAt, 0), cost)
	}
	if update {
		resolved := requestedAt + cost
		if at, ok := d.resolvedAt[host]; !ok || resolved < at {
			d.resolvedAt[host] = resolved
		}
	}
	return cost
}

// Resolved reports whether host has a recorded resolution.
func (d *DNSCache) Resolved(host string) bool {
	_, ok := d.resolvedAt[host]
	return ok
}
