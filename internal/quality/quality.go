// Package quality derives a display name's quality tier set.
package quality

import (
	"encoding/json"
	"regexp"
)

// Tier is one resolution/quality class.
type Tier string

const (
	Tier4K  Tier = "4K"
	TierFHD Tier = "FHD"
	TierHD  Tier = "HD"
	TierSD  Tier = "SD"
)

var (
	re4K  = regexp.MustCompile(`(?i)\b(4K|UHD|2160[pi])\b`)
	reFHD = regexp.MustCompile(`(?i)\b(FHD|1080[pi])\b`)
	// HD must not be preceded or followed by another letter/digit (so it
	// doesn't fire on FHD or UHD), and 720p/i counts as HD.
	reHD  = regexp.MustCompile(`(?i)(^|[^a-zA-Z0-9])HD([^a-zA-Z0-9]|$)|\b720[pi]\b`)
	reSD  = regexp.MustCompile(`(?i)\b(SD|480[pi]|576[pi])\b`)
)

// Classify returns every quality tier matched in name, in {4K, FHD, HD, SD}
// order of detection. If no tier matches, returns {SD}.
func Classify(name string) []Tier {
	var tiers []Tier
	if re4K.MatchString(name) {
		tiers = append(tiers, Tier4K)
	}
	if reFHD.MatchString(name) {
		tiers = append(tiers, TierFHD)
	}
	if reHD.MatchString(name) {
		tiers = append(tiers, TierHD)
	}
	if reSD.MatchString(name) {
		tiers = append(tiers, TierSD)
	}
	if len(tiers) == 0 {
		return []Tier{TierSD}
	}
	return tiers
}

// MarshalTiers serializes a tier set as a JSON array of strings, the form
// persisted in ProviderStream.Qualities.
func MarshalTiers(tiers []Tier) string {
	strs := make([]string, len(tiers))
	for i, t := range tiers {
		strs[i] = string(t)
	}
	b, _ := json.Marshal(strs)
	return string(b)
}
