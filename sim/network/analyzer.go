package network

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lantern-sim/lantern-sim/sim/graph"
)

// OriginEstimate summarizes the latency observed for one origin.
type OriginEstimate struct {
	Origin             string  `json:"origin"`
	RTT                float64 `json:"rtt_ms"`                  // minimum observed TCP handshake, ms
	ServerResponseTime float64 `json:"server_response_time_ms"` // median request wait minus RTT, ms
	RTTSamples         int     `json:"rtt_samples"`
	ResponseSamples    int     `json:"response_samples"`
}

// Analysis is the per-origin latency picture derived from captured records.
// Origins are sorted by name.
type Analysis struct {
	Origins []OriginEstimate `json:"origins"`
	BaseRTT float64          `json:"base_rtt_ms"` // smallest origin RTT; 0 when nothing was observed
}

// AnalyzeRecords estimates per-origin RTT and server response time from the
// observed timing of captured requests. A request contributes an RTT sample
// when it opened a fresh connection (the TCP handshake, minus TLS, is one
// round trip) and a server response sample when its send and response-header
// timestamps are present. Records without timing, cache hits and non-network
// URLs are ignored.
func AnalyzeRecords(records []*graph.NetworkRecord) Analysis {
	rttSamples := make(map[string][]float64)
	waitSamples := make(map[string][]float64)
	seen := make(map[string]bool)
	var origins []string

	for _, rec := range records {
		if rec == nil || rec.Timing == nil || rec.IsConnectionless() {
			continue
		}
		origin := rec.OriginOf()
		if !seen[origin] {
			seen[origin] = true
			origins = append(origins, origin)
		}
		t := rec.Timing
		if !rec.ConnectionReused && t.ConnectStart >= 0 && t.ConnectEnd > t.ConnectStart {
			handshake := t.ConnectEnd - t.ConnectStart
			if t.SSLStart >= 0 && t.SSLEnd > t.SSLStart {
				handshake -= t.SSLEnd - t.SSLStart
			}
			if handshake > 0 {
				rttSamples[origin] = append(rttSamples[origin], handshake)
			}
		}
		if t.SendEnd >= 0 && t.ReceiveHeadersEnd > t.SendEnd {
			waitSamples[origin] = append(waitSamples[origin], t.ReceiveHeadersEnd-t.SendEnd)
		}
	}
	slices.Sort(origins)

	analysis := Analysis{}
	baseRTT := math.Inf(1)
	for _, origin := range origins {
		est := OriginEstimate{
			Origin:          origin,
			RTTSamples:      len(rttSamples[origin]),
			ResponseSamples: len(waitSamples[origin]),
		}
		if est.RTTSamples > 0 {
			est.RTT = floats.Min(rttSamples[origin])
			baseRTT = math.Min(baseRTT, est.RTT)
		}
		analysis.Origins = append(analysis.Origins, est)
	}
	if math.IsInf(baseRTT, 1) {
		baseRTT = 0
	}
	analysis.BaseRTT = baseRTT

	for i := range analysis.Origins {
		est := &analysis.Origins[i]
		waits := waitSamples[est.Origin]
		if len(waits) == 0 {
			continue
		}
		rtt := est.RTT
		if est.RTTSamples == 0 {
			rtt = baseRTT
		}
		slices.Sort(waits)
		median := stat.Quantile(0.5, stat.Empirical, waits, nil)
		est.ServerResponseTime = math.Max(0, median-rtt)
	}
	return analysis
}

// AdditionalRTTByOrigin returns, for every origin with an RTT sample, how much
// slower its round trip was than the fastest origin.
func (a Analysis) AdditionalRTTByOrigin() map[string]float64 {
	out := make(map[string]float64)
	for _, est := range a.Origins {
		if est.RTTSamples > 0 {
			out[est.Origin] = est.RTT - a.BaseRTT
		}
	}
	return out
}

// ServerResponseTimeByOrigin returns the estimated server response time of
// every origin with a response sample.
func (a Analysis) ServerResponseTimeByOrigin() map[string]float64 {
	out := make(map[string]float64)
	for _, est := range a.Origins {
		if est.ResponseSamples > 0 {
			out[est.Origin] = est.ServerResponseTime
		}
	}
	return out
}
