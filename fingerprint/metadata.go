package fingerprint

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/goliatone/go-device-auth/pkg/types"
)

// scoreMetadata averages four similarity components between the incoming
// request classification and a stored device: exact matches on client
// version, OS version and device type, plus a normalized edit-distance
// ratio on the user-agent string.
func scoreMetadata(incoming types.DeviceMetadata, device types.Device) float64 {
	score := 0.0
	if equalFold(incoming.ClientVersion, device.ClientVersion) {
		score++
	}
	if equalFold(incoming.OSVersion, device.OSVersion) {
		score++
	}
	if incoming.DeviceType != "" && incoming.DeviceType == device.Type {
		score++
	}
	score += userAgentRatio(incoming.UserAgent, device.UserAgent)
	return score / 4
}

func equalFold(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" && b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// userAgentRatio is 1 - levenshtein/maxlen, clamped to [0,1]. Two empty
// strings carry no signal and score 0.
func userAgentRatio(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" && b == "" {
		return 0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 1 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		return 0
	}
	return ratio
}
