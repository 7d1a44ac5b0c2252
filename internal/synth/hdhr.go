package synth

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/streamforge/tuner-gateway/internal/store"
)

// DiscoverDoc is the /discover.json response. Field order matches
// encoding/json's struct order, PascalCase as HDHomeRun clients expect.
type DiscoverDoc struct {
	FriendlyName    string
	ModelNumber     string
	FirmwareName    string
	FirmwareVersion string
	DeviceID        string
	DeviceAuth      string
	BaseURL         string
	LineupURL       string
	TunerCount      int
}

// LineupEntry is one element of /lineup.json.
type LineupEntry struct {
	GuideNumber string
	GuideName   string
	URL         string
}

// LineupStatusDoc is the static /lineup_status.json response.
type LineupStatusDoc struct {
	ScanInProgress int
	ScanPossible   int
	Source         string
	SourceList     []string
}

// DeviceID derives a stable HDHomeRun device id from hostname: it must
// survive restarts without being persisted, so it is a pure function of the
// machine's own hostname rather than a randomly generated value.
func DeviceID(hostname string) string {
	h := fnv.New32a()
	h.Write([]byte(hostname))
	return fmt.Sprintf("STREAMFORGE%X", h.Sum32())
}

// TunerCount returns MAX(COALESCE(observedMax, advertisedMax)) across active
// accounts, defaulting to 2 when there are none. Streams are multiplexed
// through the proxy, so the binding constraint is any single account's cap,
// not the sum.
func TunerCount(db *store.Store) (int, error) {
	accounts, err := db.ActiveAccounts()
	if err != nil {
		return 0, err
	}
	max := 0
	for _, a := range accounts {
		n := a.ObservedMaxConns
		if n <= 0 {
			n = a.AdvertisedMaxConns
		}
		if n > max {
			max = n
		}
	}
	if max <= 0 {
		max = 2
	}
	return max, nil
}

// BuildDiscover renders /discover.json.
func BuildDiscover(db *store.Store, baseURL, friendlyName, hostname string) (DiscoverDoc, error) {
	tuners, err := TunerCount(db)
	if err != nil {
		return DiscoverDoc{}, err
	}
	return DiscoverDoc{
		FriendlyName:    friendlyName,
		ModelNumber:     "HDHR5-4K",
		FirmwareName:    "streamforge-gateway",
		FirmwareVersion: "1.0",
		DeviceID:        DeviceID(hostname),
		DeviceAuth:      "",
		BaseURL:         baseURL,
		LineupURL:       baseURL + "/lineup.json",
		TunerCount:      tuners,
	}, nil
}

// BuildLineup renders /lineup.json using the same channel order/numbering
// scheme as the M3U playlist.
func BuildLineup(db *store.Store, baseURL string) ([]LineupEntry, error) {
	channels, err := db.PublishedChannels()
	if err != nil {
		return nil, err
	}
	numbers := channelNumbers(channels)

	out := make([]LineupEntry, 0, len(channels))
	for i, c := range channels {
		out = append(out, LineupEntry{
			GuideNumber: strconv.Itoa(numbers[i]),
			GuideName:   c.Channel.DisplayName,
			URL:         streamURL(baseURL, c.Channel.ID),
		})
	}
	return out, nil
}

// BuildLineupStatus renders the static /lineup_status.json response.
func BuildLineupStatus() LineupStatusDoc {
	return LineupStatusDoc{
		ScanInProgress: 0,
		ScanPossible:   0,
		Source:         "Cable",
		SourceList:     []string{"Cable"},
	}
}
