// Package xmltvsrc fetches and parses XMLTV documents for the EPG refresh
// scheduler: a plain HTTP(S) fetch and a streaming encoding/xml parse that
// normalizes programme timestamps to UTC.
package xmltvsrc

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamforge/tuner-gateway/internal/errs"
	"github.com/streamforge/tuner-gateway/internal/httpclient"
	"github.com/streamforge/tuner-gateway/internal/safeurl"
)

// ParsedChannel is one <channel> element.
type ParsedChannel struct {
	ID          string // the "id" attribute (tvg-id / stable id)
	DisplayName string
	IconURL     string
}

// ParsedProgramme is one <programme> element, with Start/End normalized to
// UTC.
type ParsedProgramme struct {
	ChannelID   string
	Title       string
	Description string
	Category    string
	EpisodeTag  string
	Start       time.Time
	End         time.Time
}

// Fetch performs a plain HTTP(S) GET of sourceURL. Callers must close the
// returned body.
func Fetch(ctx context.Context, client *http.Client, sourceURL string) (io.ReadCloser, error) {
	if !safeurl.IsHTTPOrHTTPS(sourceURL) {
		return nil, errs.Validation("xmltv source url must be http or https")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, errs.Validation("invalid xmltv source url")
	}
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, errs.NetworkTransient(fmt.Errorf("fetching %s: %w", safeurl.RedactURL(sourceURL), err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.NetworkPermanent(fmt.Errorf("http %d from %s", resp.StatusCode, safeurl.RedactURL(sourceURL)))
	}
	return resp.Body, nil
}

// xmlChannel/xmlProgramme mirror the on-wire XMLTV element shapes.
type xmlChannel struct {
	ID          string `xml:"id,attr"`
	DisplayName string `xml:"display-name"`
	Icon        struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type xmlProgramme struct {
	Start       string `xml:"start,attr"`
	Stop        string `xml:"stop,attr"`
	Channel     string `xml:"channel,attr"`
	Title       string `xml:"title"`
	Desc        string `xml:"desc"`
	Category    string `xml:"category"`
	EpisodeNum  string `xml:"episode-num"`
}

// Parse streams r through encoding/xml, decoding <channel> and <programme>
// elements as they are seen (the document is not held fully in memory).
func Parse(r io.Reader) ([]ParsedChannel, []ParsedProgramme, error) {
	dec := xml.NewDecoder(r)

	var channels []ParsedChannel
	var programmes []ParsedProgramme

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errs.New(errs.KindValidation, "malformed xmltv document", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "channel":
			var c xmlChannel
			if err := dec.DecodeElement(&c, &start); err != nil {
				return nil, nil, errs.New(errs.KindValidation, "malformed xmltv channel element", err)
			}
			channels = append(channels, ParsedChannel{
				ID:          c.ID,
				DisplayName: c.DisplayName,
				IconURL:     c.Icon.Src,
			})
		case "programme":
			var p xmlProgramme
			if err := dec.DecodeElement(&p, &start); err != nil {
				return nil, nil, errs.New(errs.KindValidation, "malformed xmltv programme element", err)
			}
			startTime, err := parseXMLTVTime(p.Start)
			if err != nil {
				continue // skip unparseable programmes rather than failing the whole refresh
			}
			endTime, err := parseXMLTVTime(p.Stop)
			if err != nil {
				continue
			}
			programmes = append(programmes, ParsedProgramme{
				ChannelID:   p.Channel,
				Title:       p.Title,
				Description: p.Desc,
				Category:    p.Category,
				EpisodeTag:  p.EpisodeNum,
				Start:       startTime,
				End:         endTime,
			})
		}
	}

	return channels, programmes, nil
}

// xmltvTimeLayout matches "YYYYMMDDhhmmss ±HHMM", e.g. "20260730140000 +0000".
const xmltvTimeLayout = "20060102150405 -0700"

func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(xmltvTimeLayout, s)
	if err != nil {
		// Some sources omit the space before the offset.
		t, err = time.Parse("20060102150405-0700", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}
