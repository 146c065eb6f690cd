package graph

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// NodeKind distinguishes the two kinds of work a graph node can represent.
type NodeKind string

const (
	// KindNetwork is a single resource fetch.
	KindNetwork NodeKind = "network"
	// KindCPU is a main-thread task group.
	KindCPU NodeKind = "cpu"
)

// Protocol values recognized on a NetworkRecord.
const (
	ProtocolHTTP1 = "http/1.1"
	ProtocolH2    = "h2"
	ProtocolH3    = "h3"
	ProtocolData  = "data"
	ProtocolBlob  = "blob"
)

// Timing holds the observed timing hints of a captured request, in
// milliseconds relative to navigation start. Negative values mean the phase
// was not observed (the Chrome ResourceTiming convention).
type Timing struct {
	StartTime         float64 `yaml:"start_time" json:"start_time"`
	EndTime           float64 `yaml:"end_time" json:"end_time"`
	DNSStart          float64 `yaml:"dns_start" json:"dns_start"`
	DNSEnd            float64 `yaml:"dns_end" json:"dns_end"`
	ConnectStart      float64 `yaml:"connect_start" json:"connect_start"`
	ConnectEnd        float64 `yaml:"connect_end" json:"connect_end"`
	SSLStart          float64 `yaml:"ssl_start" json:"ssl_start"`
	SSLEnd            float64 `yaml:"ssl_end" json:"ssl_end"`
	SendEnd           float64 `yaml:"send_end" json:"send_end"`
	ReceiveHeadersEnd float64 `yaml:"receive_headers_end" json:"receive_headers_end"`
}

// NoTiming returns a Timing with every phase marked as not observed.
func NoTiming() Timing {
	return Timing{
		DNSStart: -1, DNSEnd: -1,
		ConnectStart: -1, ConnectEnd: -1,
		SSLStart: -1, SSLEnd: -1,
		SendEnd: -1, ReceiveHeadersEnd: -1,
	}
}

// NetworkRecord describes a captured network request. Records are produced by
// the graph builder and are never modified by the simulator.
type NetworkRecord struct {
	URL              string  `yaml:"url" json:"url"`
	Origin           string  `yaml:"origin" json:"origin"`
	TransferSize     int64   `yaml:"transfer_size" json:"transfer_size"`
	ResourceSize     int64   `yaml:"resource_size" json:"resource_size"`
	ResourceType     string  `yaml:"resource_type" json:"resource_type"`
	Protocol         string  `yaml:"protocol" json:"protocol"`
	Priority         string  `yaml:"priority" json:"priority"`
	Initiator        string  `yaml:"initiator" json:"initiator"`
	FromDiskCache    bool    `yaml:"from_disk_cache" json:"from_disk_cache"`
	FromMemoryCache  bool    `yaml:"from_memory_cache" json:"from_memory_cache"`
	ConnectionReused bool    `yaml:"connection_reused" json:"connection_reused"`
	ConnectionID     string  `yaml:"connection_id" json:"connection_id"`
	Timing           *Timing `yaml:"timing" json:"timing"`
}

// OriginOf returns the record's origin, deriving scheme://host[:port] from the
// URL when Origin is not set explicitly. Non-hierarchical URLs (data:, blob:)
// yield the scheme followed by a colon.
func (r *NetworkRecord) OriginOf() string {
	if r.Origin != "" {
		return r.Origin
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" {
		return r.URL
	}
	if u.Host == "" {
		return u.Scheme + ":"
	}
	return u.Scheme + "://" + u.Host
}

// Hostname returns the host part of the record URL, without port.
func (r *NetworkRecord) Hostname() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsSecure reports whether fetching the record requires a TLS handshake.
func (r *NetworkRecord) IsSecure() bool {
	u, err := url.Parse(r.URL)
	if err != nil {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "wss"
}

// IsMultiplexed reports whether the record was fetched over a protocol that
// multiplexes streams over a single connection.
func (r *NetworkRecord) IsMultiplexed() bool {
	return r.Protocol == ProtocolH2 || r.Protocol == ProtocolH3
}

// IsNonNetworkProtocol reports whether the URL is served without touching the
// network at all (data: and blob: URLs).
func (r *NetworkRecord) IsNonNetworkProtocol() bool {
	if r.Protocol == ProtocolData || r.Protocol == ProtocolBlob {
		return true
	}
	return strings.HasPrefix(r.URL, "data:") || strings.HasPrefix(r.URL, "blob:")
}

// IsConnectionless reports whether the record skips connection setup
// entirely: non-network URLs and cache hits.
func (r *NetworkRecord) IsConnectionless() bool {
	return r.IsNonNetworkProtocol() || r.FromDiskCache || r.FromMemoryCache
}

// DecodedSize returns ResourceSize, falling back to TransferSize.
func (r *NetworkRecord) DecodedSize() int64 {
	if r.ResourceSize > 0 {
		return r.ResourceSize
	}
	return r.TransferSize
}

// StartHint returns the observed start time, or 0 when no timing was captured.
func (r *NetworkRecord) StartHint() float64 {
	if r.Timing == nil {
		return 0
	}
	return r.Timing.StartTime
}

// CPUTask describes a main-thread task group.
type CPUTask struct {
	Name        string   `yaml:"name" json:"name"`               // trace event type, diagnostics only
	Duration    float64  `yaml:"duration" json:"duration"`       // self time in ms, unthrottled
	StartTime   float64  `yaml:"start_time" json:"start_time"`   // observed start in ms
	ChildEvents []string `yaml:"child_events" json:"child_events"` // names of nested trace events
}

// DidPerformLayout reports whether the task contains a layout event.
func (t *CPUTask) DidPerformLayout() bool {
	return slices.Contains(t.ChildEvents, "Layout")
}

// Node is a unit of work in the dependency graph. Exactly one of Network or
// CPU is set, matching Kind. Nodes carry no simulation state; all per-run
// state lives in the simulator.
type Node struct {
	ID      string
	Kind    NodeKind
	Network *NetworkRecord
	CPU     *CPUTask
}

// StartHint returns the observed start time used to order equally-ready nodes.
func (n *Node) StartHint() float64 {
	switch n.Kind {
	case KindNetwork:
		return n.Network.StartHint()
	case KindCPU:
		return n.CPU.StartTime
	}
	return 0
}

func (n *Node) String() string {
	switch n.Kind {
	case KindNetwork:
		return fmt.Sprintf("Node(%s, network, %s, %d bytes)", n.ID, n.Network.URL, n.Network.TransferSize)
	case KindCPU:
		return fmt.Sprintf("Node(%s, cpu, %s, %.2fms)", n.ID, n.CPU.Name, n.CPU.Duration)
	}
	return fmt.Sprintf("Node(%s, %s)", n.ID, n.Kind)
}

func (n *Node) valid() bool {
	switch n.Kind {
	case KindNetwork:
		return n.Network != nil && n.CPU == nil
	case KindCPU:
		return n.CPU != nil && n.Network == nil
	}
	return false
}

func (n *Node) clone() Node {
	c := Node{ID: n.ID, Kind: n.Kind}
	if n.Network != nil {
		rec := *n.Network
		if n.Network.Timing != nil {
			timing := *n.Network.Timing
			rec.Timing = &timing
		}
		c.Network = &rec
	}
	if n.CPU != nil {
		task := *n.CPU
		task.ChildEvents = slices.Clone(n.CPU.ChildEvents)
		c.CPU = &task
	}
	return c
}
