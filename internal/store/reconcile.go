package store

import (
	"database/sql"
	"time"
)

// ConfidenceUpdate recomputes a single non-manual mapping's confidence
// after its stream's metadata changed. If BelowThreshold, the mapping is
// kept (never silently deleted by the reconciler) but a warn event is
// logged.
type ConfidenceUpdate struct {
	MappingID     int64
	NewConfidence float64
	BelowThreshold bool
}

// NewMatch is a candidate mapping for a freshly seen provider stream,
// keyed by the stream's external ProviderStreamID since it has no
// internal id yet at plan-construction time.
type NewMatch struct {
	EpgChannelID     int64
	ProviderStreamID string
	Confidence       float64
	MatchType        MatchType
}

// ReconcilePlan is the fully-resolved outcome of one account's
// provider-delta diff and match pass (internal/reconciler), ready to apply
// as a single transaction.
type ReconcilePlan struct {
	NewStreams        []ProviderStream
	ChangedStreams    []ProviderStream // ID set to the existing row's id
	RemovedStreamIDs  []int64
	ConfidenceUpdates []ConfidenceUpdate
	NewMatches        []NewMatch
	// ReappearedStreamIDs are existing rows, previously orphaned, that the
	// provider is offering again unchanged (not in ChangedStreams because
	// their metadata didn't change).
	ReappearedStreamIDs []int64
}

// ReconcileResult mirrors RematchResult's shape for the subset of stats the
// reconciler tracks.
type ReconcileResult struct {
	NewMatches             int
	MappingsRemoved        int
	MappingsUpdated        int
	ManualMatchesPreserved int
	AffectedChannels       int
}

// ApplyReconcile writes plan for one account inside a single transaction:
// insert new streams, update changed ones (and their recomputed mapping
// confidences), handle removed streams (orphaning any with a surviving
// manual mapping instead of deleting them), then insert the new matches.
func (s *Store) ApplyReconcile(accountID int64, plan ReconcilePlan) (ReconcileResult, error) {
	var result ReconcileResult
	affected := make(map[int64]bool)

	err := s.withTx(func(tx *sql.Tx) error {
		newIDs := make(map[string]int64, len(plan.NewStreams))
		for _, ns := range plan.NewStreams {
			res, err := tx.Exec(`INSERT INTO provider_streams
				(account_id, provider_stream_id, display_name, icon_url, category_id,
				 category_name, qualities, epg_hint_id, archive, archive_depth)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				accountID, ns.ProviderStreamID, ns.DisplayName, ns.IconURL, ns.CategoryID,
				ns.CategoryName, encodeQualities(ns.Qualities), ns.EPGHintID, ns.Archive, ns.ArchiveDepth)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			newIDs[ns.ProviderStreamID] = id
		}

		for _, cs := range plan.ChangedStreams {
			if _, err := tx.Exec(`UPDATE provider_streams SET
				display_name = ?, icon_url = ?, category_id = ?, category_name = ?,
				qualities = ?, epg_hint_id = ?, archive = ?, archive_depth = ?, orphaned = 0
				WHERE id = ?`,
				cs.DisplayName, cs.IconURL, cs.CategoryID, cs.CategoryName,
				encodeQualities(cs.Qualities), cs.EPGHintID, cs.Archive, cs.ArchiveDepth, cs.ID); err != nil {
				return err
			}
		}

		for _, id := range plan.ReappearedStreamIDs {
			if _, err := tx.Exec(`UPDATE provider_streams SET orphaned = 0 WHERE id = ?`, id); err != nil {
				return err
			}
		}

		for _, cu := range plan.ConfidenceUpdates {
			if _, err := tx.Exec(`UPDATE channel_mappings SET confidence = ? WHERE id = ?`,
				cu.NewConfidence, cu.MappingID); err != nil {
				return err
			}
			result.MappingsUpdated++
			if cu.BelowThreshold {
				if _, err := tx.Exec(`INSERT INTO event_log (ts, level, category, message, details, read)
					VALUES (?, 'warn', 'match', ?, '', 0)`,
					formatTime(time.Now()), "mapping confidence fell below threshold after stream update"); err != nil {
					return err
				}
			}
		}

		for _, streamID := range plan.RemovedStreamIDs {
			manualRows, err := tx.Query(`SELECT id, epg_channel_id FROM channel_mappings
				WHERE provider_stream_id = ? AND manual = 1`, streamID)
			if err != nil {
				return err
			}
			var manualChannels []int64
			for manualRows.Next() {
				var mid, chID int64
				if err := manualRows.Scan(&mid, &chID); err != nil {
					manualRows.Close()
					return err
				}
				manualChannels = append(manualChannels, chID)
			}
			if err := manualRows.Err(); err != nil {
				manualRows.Close()
				return err
			}
			manualRows.Close()

			if len(manualChannels) > 0 {
				result.ManualMatchesPreserved += len(manualChannels)
				if _, err := tx.Exec(`UPDATE provider_streams SET orphaned = 1 WHERE id = ?`, streamID); err != nil {
					return err
				}
				for range manualChannels {
					if _, err := tx.Exec(`INSERT INTO event_log (ts, level, category, message, details, read)
						VALUES (?, 'warn', 'match', ?, '', 0)`,
						formatTime(time.Now()), "manual mapping orphaned: its provider stream was removed from the account"); err != nil {
						return err
					}
				}
				continue
			}

			primaryChannels, err := primaryChannelsForStream(tx, streamID)
			if err != nil {
				return err
			}
			var removedCount int
			row := tx.QueryRow(`SELECT COUNT(*) FROM channel_mappings WHERE provider_stream_id = ?`, streamID)
			if err := row.Scan(&removedCount); err != nil {
				return err
			}
			result.MappingsRemoved += removedCount

			if _, err := tx.Exec(`DELETE FROM provider_streams WHERE id = ?`, streamID); err != nil {
				return err
			}

			for _, chID := range primaryChannels {
				affected[chID] = true
				if err := promoteHighestConfidence(tx, chID); err != nil {
					return err
				}
			}
		}

		for _, nm := range plan.NewMatches {
			streamID, ok := newIDs[nm.ProviderStreamID]
			if !ok {
				continue
			}
			affected[nm.EpgChannelID] = true

			var hasPrimary bool
			row := tx.QueryRow(`SELECT COUNT(*) FROM channel_mappings
				WHERE epg_channel_id = ? AND is_primary = 1`, nm.EpgChannelID)
			var count int
			if err := row.Scan(&count); err != nil {
				return err
			}
			hasPrimary = count > 0

			priority := 0
			primary := true
			if hasPrimary {
				primary = false
				var maxPriority int
				prow := tx.QueryRow(`SELECT COALESCE(MAX(priority), -1) FROM channel_mappings WHERE epg_channel_id = ?`, nm.EpgChannelID)
				if err := prow.Scan(&maxPriority); err != nil {
					return err
				}
				priority = maxPriority + 1
			}

			if err := insertMapping(tx, ChannelMapping{
				EpgChannelID:     nm.EpgChannelID,
				ProviderStreamID: streamID,
				Confidence:       nm.Confidence,
				Primary:          primary,
				Priority:         priority,
				MatchType:        nm.MatchType,
			}); err != nil {
				return err
			}
			result.NewMatches++
		}
		return nil
	})
	result.AffectedChannels = len(affected)
	return result, err
}

// primaryChannelsForStream returns every channel id whose current primary
// mapping points at streamID, before the stream (and its mapping rows) are
// removed by cascade.
func primaryChannelsForStream(tx *sql.Tx, streamID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT epg_channel_id FROM channel_mappings
		WHERE provider_stream_id = ? AND is_primary = 1`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// promoteHighestConfidence re-ranks the surviving mappings of one channel
// after its primary mapping's stream was removed: highest confidence
// becomes primary at priority 0, the rest are renumbered by confidence
// descending.
func promoteHighestConfidence(tx *sql.Tx, channelID int64) error {
	rows, err := tx.Query(`SELECT id FROM channel_mappings
		WHERE epg_channel_id = ? ORDER BY confidence DESC`, channelID)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE channel_mappings SET priority = ?, is_primary = ? WHERE id = ?`,
			i, i == 0, id); err != nil {
			return err
		}
	}
	return nil
}
