package synth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streamforge/tuner-gateway/internal/store"
)

const xmltvProgramWindow = 7 * 24 * time.Hour
const xmltvCacheTTL = 5 * time.Minute

// xmlTimeLayout is XMLTV's "YYYYMMDDHHMMSS +0000" wire format.
const xmlTimeLayout = "20060102150405 -0700"

// XMLTVCache serves epg.xml from an in-memory document, rebuilt at most
// every xmltvCacheTTL or immediately after Gen observes a newer write
// generation than the one the cached document was built with. The
// double-checked RWMutex shape mirrors the teacher's external-XMLTV cache:
// a fast RLock read path, and a Lock-held rebuild that re-checks staleness
// in case another goroutine already rebuilt while this one waited.
type XMLTVCache struct {
	Gen *Generation

	mu       sync.RWMutex
	doc      string
	etag     string
	exp      time.Time
	builtGen int64
}

// NewXMLTVCache returns a cache bound to gen; gen.Bump must be called by
// every write path that can change the published channel set (settings,
// mappings, EPG refresh).
func NewXMLTVCache(gen *Generation) *XMLTVCache {
	return &XMLTVCache{Gen: gen}
}

// Get returns the cached document and ETag, rebuilding via db if the TTL
// has expired or a newer write generation has been observed.
func (c *XMLTVCache) Get(db *store.Store) (doc, etag string, err error) {
	now := time.Now()

	c.mu.RLock()
	if c.doc != "" && now.Before(c.exp) && c.builtGen == c.Gen.current() {
		doc, etag = c.doc, c.etag
		c.mu.RUnlock()
		return doc, etag, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc != "" && now.Before(c.exp) && c.builtGen == c.Gen.current() {
		return c.doc, c.etag, nil
	}

	built, err := BuildXMLTV(db)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(built))
	c.doc = built
	c.etag = hex.EncodeToString(sum[:])
	c.exp = now.Add(xmltvCacheTTL)
	c.builtGen = c.Gen.current()
	return c.doc, c.etag, nil
}

// BuildXMLTV renders the full epg.xml document: uncached, used both by the
// cache and directly by tests.
func BuildXMLTV(db *store.Store) (string, error) {
	channels, err := db.PublishedChannels()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	windowStart := now.Add(-1 * time.Hour)
	windowEnd := now.Add(xmltvProgramWindow)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n")
	b.WriteString(`<tv generator-info-name="streamforge tuner gateway">` + "\n")

	for _, c := range channels {
		b.WriteString(`  <channel id="`)
		b.WriteString(xmlEscape(c.Channel.StableID))
		b.WriteString("\">\n    <display-name>")
		b.WriteString(xmlEscape(c.Channel.DisplayName))
		b.WriteString("</display-name>\n")
		if logo := channelLogo(db, c); logo != "" {
			b.WriteString(`    <icon src="`)
			b.WriteString(xmlEscape(logo))
			b.WriteString("\"/>\n")
		}
		b.WriteString("  </channel>\n")
	}

	for _, c := range channels {
		if c.Channel.Synthetic {
			writeSyntheticProgrammes(&b, c.Channel.StableID, c.Channel.DisplayName, now)
			continue
		}
		programs, err := db.ProgramsForChannel(c.Channel.ID, windowStart.Format(time.RFC3339Nano), windowEnd.Format(time.RFC3339Nano))
		if err != nil {
			return "", err
		}
		for _, p := range programs {
			writeProgramme(&b, c.Channel.StableID, p)
		}
	}

	b.WriteString("</tv>\n")
	return b.String(), nil
}

func writeProgramme(b *strings.Builder, channelID string, p store.Program) {
	b.WriteString(`  <programme start="`)
	b.WriteString(p.Start.UTC().Format(xmlTimeLayout))
	b.WriteString(`" stop="`)
	b.WriteString(p.End.UTC().Format(xmlTimeLayout))
	b.WriteString(`" channel="`)
	b.WriteString(xmlEscape(channelID))
	b.WriteString("\">\n")
	b.WriteString(`    <title lang="en">`)
	b.WriteString(xmlEscape(p.Title))
	b.WriteString("</title>\n")
	if p.Description != "" {
		b.WriteString("    <desc>")
		b.WriteString(xmlEscape(p.Description))
		b.WriteString("</desc>\n")
	}
	if p.Category != "" {
		b.WriteString("    <category>")
		b.WriteString(xmlEscape(p.Category))
		b.WriteString("</category>\n")
	}
	if p.EpisodeTag != "" {
		b.WriteString(`    <episode-num system="onscreen">`)
		b.WriteString(xmlEscape(p.EpisodeTag))
		b.WriteString("</episode-num>\n")
	}
	b.WriteString("  </programme>\n")
}

// writeSyntheticProgrammes emits placeholder programmes for a channel with
// no real EPG data: 2-hour blocks aligned to the hour, covering 7 days
// forward from the current hour.
func writeSyntheticProgrammes(b *strings.Builder, channelID, displayName string, now time.Time) {
	start := now.Truncate(time.Hour)
	const blockLen = 2 * time.Hour
	blocks := int(xmltvProgramWindow / blockLen)
	title := fmt.Sprintf("%s - Live Programming", displayName)

	for i := 0; i < blocks; i++ {
		blockStart := start.Add(time.Duration(i) * blockLen)
		blockEnd := blockStart.Add(blockLen)
		writeProgramme(b, channelID, store.Program{
			Title: title,
			Start: blockStart,
			End:   blockEnd,
		})
	}
}

func xmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
