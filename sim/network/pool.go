package network

import "github.com/sirupsen/logrus"

// DefaultMaxConnectionsPerOrigin is the HTTP/1.1 per-origin connection limit
// used by Chromium.
const DefaultMaxConnectionsPerOrigin = 6

// PoolConfig groups connection pool parameters.
type PoolConfig struct {
	MaxConnectionsPerOrigin int     // HTTP/1.1 connections allowed per origin (must be > 0)
	InitialCongestionWindow float64 // segments for newly opened connections (must be > 0)
}

// Request describes what a network node needs from the pool.
type Request struct {
	Origin      string
	Secure      bool
	Multiplexed bool // HTTP/2 or HTTP/3: one shared connection per origin
	RequireCold bool // the request was observed on a fresh connection (HTTP/1.1 only)
}

// PoolStats counts connection lifecycle events over one simulation run.
type PoolStats struct {
	Opened    int // cold connections created
	Reused    int // acquisitions served by a warm connection
	Discarded int // warm connections closed to make room for a required cold one
}

// Pool tracks the simulated connections of a single simulation run. A pool
// must not be shared between runs.
type Pool struct {
	cfg        PoolConfig
	byOrigin   map[string][]*Connection // open connections per origin, creation order
	nextID     int
	releaseSeq int
	stats      PoolStats
}

// NewPool creates an empty pool. Non-positive config values fall back to the
// package defaults.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConnectionsPerOrigin <= 0 {
		cfg.MaxConnectionsPerOrigin = DefaultMaxConnectionsPerOrigin
	}
	if cfg.InitialCongestionWindow <= 0 {
		cfg.InitialCongestionWindow = DefaultInitialCongestionWindow
	}
	return &Pool{
		cfg:      cfg,
		byOrigin: make(map[string][]*Connection),
	}
}

// Acquire returns a connection for the request, or nil when the request has
// to wait for one to be released.
//
// HTTP/1.1: an idle warm connection (the most recently released one) is
// preferred, then an idle cold one, then a new cold connection while the
// origin is under its cap. A RequireCold request never takes a warm
// connection; at the cap it discards an idle warm connection and opens a fresh
// one in its place.
//
// Multiplexed: the origin has a single multiplexed connection. Any number of
// requests may share it once it is warm; while its handshake is in flight
// further requests wait.
//
// The two kinds are kept apart: the HTTP/1.1 cap counts only HTTP/1.1
// connections, and neither kind is handed to the other's requests.
func (p *Pool) Acquire(req Request) *Connection {
	if req.Multiplexed {
		return p.acquireMultiplexed(req)
	}

	conns := p.connections(req.Origin, false)
	var warm, cold *Connection
	for _, c := range conns {
		if c.InUse() {
			continue
		}
		if c.warm {
			if warm == nil || c.releasedAt > warm.releasedAt {
				warm = c
			}
		} else if cold == nil {
			cold = c
		}
	}

	switch {
	case warm != nil && !req.RequireCold:
		p.stats.Reused++
		return p.use(warm)
	case cold != nil:
		return p.use(cold)
	case len(conns) < p.cfg.MaxConnectionsPerOrigin:
		return p.use(p.open(req))
	case warm != nil:
		p.discard(warm)
		return p.use(p.open(req))
	}
	return nil
}

func (p *Pool) acquireMultiplexed(req Request) *Connection {
	conns := p.connections(req.Origin, true)
	if len(conns) == 0 {
		return p.use(p.open(req))
	}
	c := conns[0]
	switch {
	case c.warm:
		p.stats.Reused++
		return p.use(c)
	case !c.InUse():
		return p.use(c)
	}
	return nil
}

// Release returns a connection to the pool. The connection stays open (and
// warm, if its handshake completed) for the rest of the run.
func (p *Pool) Release(c *Connection) {
	if c.streams == 0 {
		logrus.Warnf("releasing idle connection %d to %s", c.ID, c.Origin)
		return
	}
	c.streams--
	if c.streams == 0 {
		p.releaseSeq++
		c.releasedAt = p.releaseSeq
	}
}

// connections returns the origin's open connections of one kind. HTTP/1.1
// and multiplexed connections to the same origin never serve each other's
// requests.
func (p *Pool) connections(origin string, multiplexed bool) []*Connection {
	var out []*Connection
	for _, c := range p.byOrigin[origin] {
		if c.Multiplexed == multiplexed {
			out = append(out, c)
		}
	}
	return out
}

// Connections returns the open connections to an origin in creation order.
func (p *Pool) Connections(origin string) []*Connection {
	return append([]*Connection(nil), p.byOrigin[origin]...)
}

// Stats returns the lifecycle counters accumulated so far.
func (p *Pool) Stats() PoolStats { return p.stats }

func (p *Pool) open(req Request) *Connection {
	p.nextID++
	c := &Connection{
		ID:               p.nextID,
		Origin:           req.Origin,
		Secure:           req.Secure,
		Multiplexed:      req.Multiplexed,
		congestionWindow: p.cfg.InitialCongestionWindow,
	}
	p.byOrigin[req.Origin] = append(p.byOrigin[req.Origin], c)
	p.stats.Opened++
	return c
}

func (p *Pool) use(c *Connection) *Connection {
	c.streams++
	return c
}

func (p *Pool) discard(c *Connection) {
	conns := p.byOrigin[c.Origin]
	for i, other := range conns {
		if other == c {
			p.byOrigin[c.Origin] = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	p.stats.Discarded++
}
