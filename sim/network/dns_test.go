package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDNSCache_FirstLookupPaysFullCost(t *testing.T) {
	d := NewDNSCache(2)
	assert.Equal(t, 300.0, d.TimeUntilResolution("a.test", 0, 150, true))
	assert.True(t, d.Resolved("a.test"))
}

func TestDNSCache_LaterLookupsPayRemainder(t *testing.T) {
	// GIVEN a lookup started at t=0 that resolves at t=300
	d := NewDNSCache(2)
	d.TimeUntilResolution("a.test", 0, 150, true)

	// THEN a lookup at t=100 waits for the in-flight one
	assert.Equal(t, 200.0, d.TimeUntilResolution("a.test", 100, 150, false))
	// AND a lookup after resolution is free
	assert.Equal(t, 0.0, d.TimeUntilResolution("a.test", 500, 150, true))
	// AND other hosts are unaffected
	assert.Equal(t, 300.0, d.TimeUntilResolution("b.test", 500, 150, false))
	assert.False(t, d.Resolved("b.test"))
}

func TestDNSCache_ZeroMultiplierIsFree(t *testing.T) {
	d := NewDNSCache(0)
	assert.Equal(t, 0.0, d.TimeUntilResolution("a.test", 10, 150, true))
}
