package fingerprint

import (
	"net/netip"
	"strings"
)

// Per-IP component weights: octet-prefix pattern, numeric proximity, and
// cluster membership.
const (
	ipPatternWeight  = 0.4
	ipDistanceWeight = 0.4
	ipClusterWeight  = 0.2
)

// ipProximityRange is the maximum absolute distance between two addresses,
// interpreted as 32-bit integers, that still counts as nearby.
const ipProximityRange = 100

// ipToInt maps an IPv4 address (including IPv4-mapped IPv6) to its 32-bit
// integer form. The second return is false for anything else.
func ipToInt(raw string) (uint32, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// samePattern reports whether two IPv4 addresses share their first two
// octets, the coarse "same network neighborhood" heuristic.
func samePattern(a, b string) bool {
	ap := strings.SplitN(strings.TrimSpace(a), ".", 3)
	bp := strings.SplitN(strings.TrimSpace(b), ".", 3)
	if len(ap) < 3 || len(bp) < 3 {
		return false
	}
	return ap[0] == bp[0] && ap[1] == bp[1]
}

func nearby(a, b uint32) bool {
	var d uint32
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	return d <= ipProximityRange
}

// scoreIPHistory computes the candidate address's similarity against a
// device's login-IP history: for each historical address it combines the
// octet-pattern match, the numeric proximity match, and the fraction of the
// history sharing the candidate's cluster, then averages over the history.
// An empty history yields 0 and the caller skips the device.
func scoreIPHistory(candidate string, history []string, clusterCount int) float64 {
	if len(history) == 0 {
		return 0
	}
	candInt, candOK := ipToInt(candidate)

	clusterFraction := 0.0
	if candOK && clusterCount > 0 {
		points := make([]float64, 0, len(history))
		for _, h := range history {
			if v, ok := ipToInt(h); ok {
				points = append(points, float64(v))
			}
		}
		if len(points) > 0 {
			centroids, assignments := cluster1D(points, clusterCount)
			candCluster := nearestCentroid(centroids, float64(candInt))
			members := 0
			for _, a := range assignments {
				if a == candCluster {
					members++
				}
			}
			clusterFraction = float64(members) / float64(len(points))
		}
	}

	total := 0.0
	for _, h := range history {
		score := ipClusterWeight * clusterFraction
		if samePattern(candidate, h) {
			score += ipPatternWeight
		}
		if candOK {
			if hInt, ok := ipToInt(h); ok && nearby(candInt, hInt) {
				score += ipDistanceWeight
			}
		}
		total += score
	}
	return total / float64(len(history))
}
