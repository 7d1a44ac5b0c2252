package synth

import (
	"strconv"
	"strings"

	"github.com/streamforge/tuner-gateway/internal/store"
)

// BuildM3U renders the playlist.m3u document: one #EXTINF/URL pair per
// published channel, in channel-number order. baseURL is the gateway's own
// address, e.g. "http://127.0.0.1:5004".
func BuildM3U(db *store.Store, baseURL string) (string, error) {
	channels, err := db.PublishedChannels()
	if err != nil {
		return "", err
	}
	numbers := channelNumbers(channels)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i, c := range channels {
		logo := channelLogo(db, c)

		b.WriteString(`#EXTINF:-1 tvg-id="`)
		b.WriteString(escapeAttr(c.Channel.StableID))
		b.WriteString(`" tvg-name="`)
		b.WriteString(escapeAttr(c.Channel.DisplayName))
		b.WriteByte('"')
		if logo != "" {
			b.WriteString(` tvg-logo="`)
			b.WriteString(escapeAttr(logo))
			b.WriteByte('"')
		}
		b.WriteString(` tvg-chno="`)
		b.WriteString(strconv.Itoa(numbers[i]))
		b.WriteString(`",`)
		b.WriteString(strings.ReplaceAll(c.Channel.DisplayName, "\n", " "))
		b.WriteByte('\n')
		b.WriteString(streamURL(baseURL, c.Channel.ID))
		b.WriteByte('\n')
	}
	return b.String(), nil
}
