// Package synth builds the three documents Plex and the control UI consume
// from the channel model: an M3U playlist, an XMLTV EPG document, and the
// HDHomeRun discover/lineup/lineup_status JSON endpoints. All three read the
// same underlying query (internal/store.PublishedChannels) so channel
// ordering and numbering stay consistent across documents.
package synth

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/streamforge/tuner-gateway/internal/store"
)

// Generation is a monotonic write counter. Any mutation that can change a
// published document (settings, mappings, EPG refresh) calls Bump after its
// transaction commits; the XMLTV cache compares its cached generation
// against the current one on every read, invalidating itself synchronously
// rather than waiting for the TTL alone to expire.
type Generation struct {
	n int64
}

func (g *Generation) Bump() { atomic.AddInt64(&g.n, 1) }

func (g *Generation) current() int64 { return atomic.LoadInt64(&g.n) }

// channelNumbers assigns the 1-indexed Plex channel number to each published
// channel in order: explicit plexDisplayOrder+1 first, then unnumbered
// channels fill from max(assigned)+1 upward, in list order.
func channelNumbers(channels []store.PublishedChannel) []int {
	numbers := make([]int, len(channels))
	maxAssigned := 0
	unassigned := make([]int, 0, len(channels))

	for i, c := range channels {
		if c.Settings.PlexDisplayOrder != nil {
			n := *c.Settings.PlexDisplayOrder + 1
			numbers[i] = n
			if n > maxAssigned {
				maxAssigned = n
			}
		} else {
			unassigned = append(unassigned, i)
		}
	}
	next := maxAssigned + 1
	for _, i := range unassigned {
		numbers[i] = next
		next++
	}
	return numbers
}

// channelLogo resolves the icon for a published channel: the EpgChannel's
// own icon, else the icon of its primary (or highest-priority) mapped
// stream, else "".
func channelLogo(db *store.Store, c store.PublishedChannel) string {
	if c.Channel.IconURL != "" {
		return c.Channel.IconURL
	}
	if c.PrimaryStreamID == 0 {
		return ""
	}
	stream, err := db.GetStream(c.PrimaryStreamID)
	if err != nil {
		return ""
	}
	return stream.IconURL
}

func streamURL(baseURL string, epgChannelID int64) string {
	return fmt.Sprintf("%s/stream/%d", strings.TrimSuffix(baseURL, "/"), epgChannelID)
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
