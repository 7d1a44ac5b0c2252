package store

import "database/sql"

const mappingColumns = `id, epg_channel_id, provider_stream_id, confidence,
	manual, is_primary, priority, match_type`

func scanMapping(row interface {
	Scan(dest ...any) error
}) (ChannelMapping, error) {
	var m ChannelMapping
	var matchType string
	if err := row.Scan(&m.ID, &m.EpgChannelID, &m.ProviderStreamID, &m.Confidence,
		&m.Manual, &m.Primary, &m.Priority, &matchType); err != nil {
		return ChannelMapping{}, err
	}
	m.MatchType = MatchType(matchType)
	return m, nil
}

func insertMapping(tx *sql.Tx, m ChannelMapping) error {
	_, err := tx.Exec(`INSERT OR IGNORE INTO channel_mappings
		(epg_channel_id, provider_stream_id, confidence, manual, is_primary, priority, match_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.EpgChannelID, m.ProviderStreamID, m.Confidence, m.Manual, m.Primary, m.Priority, string(m.MatchType))
	return err
}

// MappingsForChannel returns every mapping for an EpgChannel ordered by
// priority (primary first).
func (s *Store) MappingsForChannel(channelID int64) ([]ChannelMapping, error) {
	rows, err := s.db.Query(`SELECT `+mappingColumns+` FROM channel_mappings
		WHERE epg_channel_id = ? ORDER BY priority`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MappingsForStream returns every mapping pointing at a provider stream.
func (s *Store) MappingsForStream(streamID int64) ([]ChannelMapping, error) {
	rows, err := s.db.Query(`SELECT `+mappingColumns+` FROM channel_mappings
		WHERE provider_stream_id = ? ORDER BY priority`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllMappings returns every mapping in the catalog.
func (s *Store) AllMappings() ([]ChannelMapping, error) {
	rows, err := s.db.Query(`SELECT ` + mappingColumns + ` FROM channel_mappings ORDER BY epg_channel_id, priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetManualMapping creates or promotes a manual mapping between an
// EpgChannel and a ProviderStream. If a mapping already exists for the pair
// it is marked manual; otherwise a new one is inserted at the end of the
// priority order.
func (s *Store) SetManualMapping(epgChannelID, providerStreamID int64, primary bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE channel_mappings SET manual = 1, is_primary = ?
			WHERE epg_channel_id = ? AND provider_stream_id = ?`, primary, epgChannelID, providerStreamID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return ensureChannelSettingsRow(tx, epgChannelID)
		}

		var nextPriority int
		row := tx.QueryRow(`SELECT COALESCE(MAX(priority) + 1, 0) FROM channel_mappings WHERE epg_channel_id = ?`, epgChannelID)
		if err := row.Scan(&nextPriority); err != nil {
			return err
		}
		if err := insertMapping(tx, ChannelMapping{
			EpgChannelID:     epgChannelID,
			ProviderStreamID: providerStreamID,
			Confidence:       1.0,
			Manual:           true,
			Primary:          primary,
			Priority:         nextPriority,
			MatchType:        MatchFuzzy,
		}); err != nil {
			return err
		}
		return ensureChannelSettingsRow(tx, epgChannelID)
	})
}

// DeleteMapping removes one mapping by id, manual or not.
func (s *Store) DeleteMapping(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM channel_mappings WHERE id = ?`, id)
		return err
	})
}

func ensureChannelSettingsRow(tx *sql.Tx, epgChannelID int64) error {
	_, err := tx.Exec(`INSERT OR IGNORE INTO epg_channel_settings (epg_channel_id, enabled)
		VALUES (?, 0)`, epgChannelID)
	return err
}

// ReplaceAutoMappings performs the matcher's C6 persist step: delete every
// non-manual mapping, insert the freshly computed ones, then ensure a
// settings row exists for every EpgChannel, forcing enabled=false for
// channels left with zero mappings.
//
// A computed mapping that duplicates a surviving manual (epg_channel_id,
// provider_stream_id) pair is skipped outright. For every other computed
// mapping, the channel's surviving manual rows take precedence the same way
// ApplyReconcile's NewMatches handling does: if the channel already has a
// manual primary, every computed mapping for that channel is demoted
// (is_primary=0) and renumbered to continue the priority order after the
// manual rows, so priorities stay a gapless 0..n-1 permutation and at most
// one row keeps is_primary=1.
func (s *Store) ReplaceAutoMappings(computed []ChannelMapping, allChannelIDs []int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM channel_mappings WHERE manual = 0`); err != nil {
			return err
		}

		manualPairs := make(map[[2]int64]bool)
		manualHasPrimary := make(map[int64]bool)
		manualMaxPriority := make(map[int64]int)
		rows, err := tx.Query(`SELECT epg_channel_id, provider_stream_id, is_primary, priority FROM channel_mappings WHERE manual = 1`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var chID, streamID int64
			var primary bool
			var priority int
			if err := rows.Scan(&chID, &streamID, &primary, &priority); err != nil {
				rows.Close()
				return err
			}
			manualPairs[[2]int64{chID, streamID}] = true
			if primary {
				manualHasPrimary[chID] = true
			}
			if priority > manualMaxPriority[chID] {
				manualMaxPriority[chID] = priority
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		nextPriority := make(map[int64]int)
		for _, m := range computed {
			if manualPairs[[2]int64{m.EpgChannelID, m.ProviderStreamID}] {
				continue
			}
			if manualHasPrimary[m.EpgChannelID] {
				m.Primary = false
				if _, seen := nextPriority[m.EpgChannelID]; !seen {
					nextPriority[m.EpgChannelID] = manualMaxPriority[m.EpgChannelID] + 1
				}
				m.Priority = nextPriority[m.EpgChannelID]
				nextPriority[m.EpgChannelID]++
			}
			if err := insertMapping(tx, m); err != nil {
				return err
			}
		}

		for _, chID := range allChannelIDs {
			if err := ensureChannelSettingsRow(tx, chID); err != nil {
				return err
			}
			var count int
			row := tx.QueryRow(`SELECT COUNT(*) FROM channel_mappings WHERE epg_channel_id = ?`, chID)
			if err := row.Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				if _, err := tx.Exec(`UPDATE epg_channel_settings SET enabled = 0 WHERE epg_channel_id = ?`, chID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
