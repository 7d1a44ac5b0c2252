package store

import "sort"

// PublishedChannel is one channel eligible for M3U/XMLTV/HDHomeRun output:
// an enabled EpgChannel with at least one mapping, plus the data the
// synthesizer needs to pick a logo and a channel number.
type PublishedChannel struct {
	Channel         EpgChannel
	Settings        EpgChannelSettings
	Mappings        []ChannelMapping
	PrimaryStreamID int64 // primary mapping's stream id; the highest-priority mapping's if none is primary
}

// PublishedChannels returns every enabled EpgChannel that has at least one
// mapping, ordered by (plexDisplayOrder NULLS LAST, displayName) per the
// document synthesizer's channel numbering rule.
func (s *Store) PublishedChannels() ([]PublishedChannel, error) {
	channels, err := s.AllEpgChannels()
	if err != nil {
		return nil, err
	}

	out := make([]PublishedChannel, 0, len(channels))
	for _, c := range channels {
		settings, err := s.EpgChannelSettingsFor(c.ID)
		if err != nil {
			return nil, err
		}
		if !settings.Enabled {
			continue
		}
		mappings, err := s.MappingsForChannel(c.ID)
		if err != nil {
			return nil, err
		}
		if len(mappings) == 0 {
			continue
		}
		out = append(out, PublishedChannel{
			Channel:         c,
			Settings:        settings,
			Mappings:        mappings,
			PrimaryStreamID: primaryStreamOf(mappings),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].Settings.PlexDisplayOrder, out[j].Settings.PlexDisplayOrder
		switch {
		case oi != nil && oj != nil:
			if *oi != *oj {
				return *oi < *oj
			}
		case oi != nil && oj == nil:
			return true
		case oi == nil && oj != nil:
			return false
		}
		return out[i].Channel.DisplayName < out[j].Channel.DisplayName
	})
	return out, nil
}

// primaryStreamOf returns the primary mapping's stream id, or the
// highest-priority (lowest Priority value) mapping's if none is primary.
func primaryStreamOf(mappings []ChannelMapping) int64 {
	var best *ChannelMapping
	for i := range mappings {
		m := &mappings[i]
		if m.Primary {
			return m.ProviderStreamID
		}
		if best == nil || m.Priority < best.Priority {
			best = m
		}
	}
	if best == nil {
		return 0
	}
	return best.ProviderStreamID
}
