// Package matcher produces ranked channel mappings for every EPG channel
// and persists them with a transactional replace.
package matcher

import (
	"strings"
	"time"

	"github.com/streamforge/tuner-gateway/internal/normalize"
	"github.com/streamforge/tuner-gateway/internal/store"
)

// Config tunes the scoring pass.
type Config struct {
	Threshold float64
	Boosts    normalize.Boosts
}

func (c *Config) setDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = store.DefaultMatchThreshold
	}
	if c.Boosts == (normalize.Boosts{}) {
		c.Boosts = normalize.DefaultBoosts
	}
}

type candidate struct {
	channel store.EpgChannel
	stream  store.ProviderStream
	score   float64
	matchType store.MatchType
}

// Run scores every EpgChannel against every ProviderStream, keeps pairs at
// or above the threshold, ranks them, and persists the result in one
// transaction (store.ReplaceAutoMappings). Manual mappings are left
// untouched by the store layer.
func Run(db *store.Store, cfg Config) (store.RematchResult, error) {
	cfg.setDefaults()
	started := time.Now()

	channels, err := db.AllEpgChannels()
	if err != nil {
		return store.RematchResult{}, err
	}
	streams, err := db.AllStreams()
	if err != nil {
		return store.RematchResult{}, err
	}

	byChannel := make(map[int64][]candidate, len(channels))
	allChannelIDs := make([]int64, len(channels))
	for i, ch := range channels {
		allChannelIDs[i] = ch.ID
		normChannel := normalize.Normalize(ch.DisplayName)

		for _, st := range streams {
			normStream := normalize.Normalize(st.DisplayName)
			epgIDMatch := st.EPGHintID != "" && strings.EqualFold(strings.TrimSpace(st.EPGHintID), strings.TrimSpace(ch.StableID))
			score := normalize.Score(normChannel, normStream, epgIDMatch, cfg.Boosts)
			if score < cfg.Threshold {
				continue
			}

			mt := store.MatchFuzzy
			switch {
			case epgIDMatch:
				mt = store.MatchExactEpgID
			case normChannel == normStream:
				mt = store.MatchExactName
			}

			byChannel[ch.ID] = append(byChannel[ch.ID], candidate{channel: ch, stream: st, score: score, matchType: mt})
		}
	}

	result := store.RematchResult{Totals: len(channels)}
	var computed []store.ChannelMapping

	for _, ch := range channels {
		cands := byChannel[ch.ID]
		if len(cands) == 0 {
			result.Unmatched++
			continue
		}
		result.Matched++
		if len(cands) > 1 {
			result.MultipleMatches++
		}

		sortCandidatesDescending(cands)
		for rank, c := range cands {
			computed = append(computed, store.ChannelMapping{
				EpgChannelID:     ch.ID,
				ProviderStreamID: c.stream.ID,
				Confidence:       c.score,
				Primary:          rank == 0,
				Priority:         rank,
				MatchType:        c.matchType,
			})
		}
	}

	if err := db.ReplaceAutoMappings(computed, allChannelIDs); err != nil {
		return store.RematchResult{}, err
	}

	result.NewMatches = len(computed)
	result.WallClockMs = time.Since(started).Milliseconds()
	return result, nil
}

func sortCandidatesDescending(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].score > c[j-1].score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
