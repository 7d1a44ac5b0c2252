// Package reconciler reconciles a fresh provider scan against the stored
// catalog for one account: diff, write, match new streams, and handle
// removed/changed streams, all applied in a single transaction.
package reconciler

import (
	"reflect"
	"sort"

	"github.com/streamforge/tuner-gateway/internal/normalize"
	"github.com/streamforge/tuner-gateway/internal/store"
)

// Config tunes the match pass run against newly seen streams.
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

// sameMetadata reports whether two streams agree on name, icon, and
// qualities (provider stream id is assumed equal, it is the diff key).
func sameMetadata(a, b store.ProviderStream) bool {
	return a.DisplayName == b.DisplayName && a.IconURL == b.IconURL && reflect.DeepEqual(a.Qualities, b.Qualities)
}

// Run fetches the account's stored streams, diffs them against current
// (a fresh scan), computes the write/match/removed/changed plan, and
// applies it in one transaction via store.ApplyReconcile.
func Run(db *store.Store, accountID int64, current []store.ProviderStream, cfg Config) (store.ReconcileResult, error) {
	cfg.setDefaults()

	existing, err := db.StreamsForAccount(accountID)
	if err != nil {
		return store.ReconcileResult{}, err
	}
	existingByExtID := make(map[string]store.ProviderStream, len(existing))
	for _, e := range existing {
		existingByExtID[e.ProviderStreamID] = e
	}
	currentByExtID := make(map[string]store.ProviderStream, len(current))
	for _, c := range current {
		currentByExtID[c.ProviderStreamID] = c
	}

	plan := store.ReconcilePlan{}

	var changedIDs []store.ProviderStream
	for _, c := range current {
		old, ok := existingByExtID[c.ProviderStreamID]
		if !ok {
			plan.NewStreams = append(plan.NewStreams, c)
			continue
		}
		if !sameMetadata(old, c) {
			changed := c
			changed.ID = old.ID
			plan.ChangedStreams = append(plan.ChangedStreams, changed)
			changedIDs = append(changedIDs, changed)
		} else if old.Orphaned {
			plan.ReappearedStreamIDs = append(plan.ReappearedStreamIDs, old.ID)
		}
	}
	for _, e := range existing {
		if _, ok := currentByExtID[e.ProviderStreamID]; !ok {
			plan.RemovedStreamIDs = append(plan.RemovedStreamIDs, e.ID)
		}
	}

	if len(plan.NewStreams) > 0 || len(changedIDs) > 0 {
		channels, err := db.AllEpgChannels()
		if err != nil {
			return store.ReconcileResult{}, err
		}
		plan.NewMatches = matchNewStreams(plan.NewStreams, channels, cfg)

		for _, cs := range changedIDs {
			if err := appendRecomputedConfidence(db, cs.ID, cs, channels, cfg, &plan); err != nil {
				return store.ReconcileResult{}, err
			}
		}
	}

	return db.ApplyReconcile(accountID, plan)
}

// appendRecomputedConfidence recomputes confidence for every non-manual
// mapping on a changed stream, against the channel it is mapped to, using
// the stream's updated metadata. Mappings whose score falls below
// threshold are kept (never silently dropped) and flagged for a warn event.
func appendRecomputedConfidence(db *store.Store, streamID int64, updated store.ProviderStream, channels []store.EpgChannel, cfg Config, plan *store.ReconcilePlan) error {
	mappings, err := db.MappingsForStream(streamID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.Manual {
			continue
		}
		var channelName, channelStable string
		for _, ch := range channels {
			if ch.ID == m.EpgChannelID {
				channelName = ch.DisplayName
				channelStable = ch.StableID
				break
			}
		}
		epgIDMatch := updated.EPGHintID != "" && normalize.Normalize(updated.EPGHintID) == normalize.Normalize(channelStable)
		score := normalize.Score(normalize.Normalize(channelName), normalize.Normalize(updated.DisplayName), epgIDMatch, cfg.Boosts)

		plan.ConfidenceUpdates = append(plan.ConfidenceUpdates, store.ConfidenceUpdate{
			MappingID:      m.ID,
			NewConfidence:  score,
			BelowThreshold: score < cfg.Threshold,
		})
	}
	return nil
}

// matchNewStreams fuzzy-matches newly seen streams against every
// EpgChannel, keeping pairs at or above threshold.
func matchNewStreams(newStreams []store.ProviderStream, channels []store.EpgChannel, cfg Config) []store.NewMatch {
	var matches []store.NewMatch
	for _, st := range newStreams {
		normStream := normalize.Normalize(st.DisplayName)
		var best []store.NewMatch
		for _, ch := range channels {
			epgIDMatch := st.EPGHintID != "" && normalize.Normalize(st.EPGHintID) == normalize.Normalize(ch.StableID)
			normChannel := normalize.Normalize(ch.DisplayName)
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
			best = append(best, store.NewMatch{
				EpgChannelID:     ch.ID,
				ProviderStreamID: st.ProviderStreamID,
				Confidence:       score,
				MatchType:        mt,
			})
		}
		sort.Slice(best, func(i, j int) bool { return best[i].Confidence > best[j].Confidence })
		matches = append(matches, best...)
	}
	return matches
}
