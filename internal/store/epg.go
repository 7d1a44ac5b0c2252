package store

import (
	"database/sql"
)

const epgChannelColumns = `id, source_id, stable_id, display_name, icon_url, synthetic`

func scanEpgChannel(row interface {
	Scan(dest ...any) error
}) (EpgChannel, error) {
	var c EpgChannel
	if err := row.Scan(&c.ID, &c.SourceID, &c.StableID, &c.DisplayName, &c.IconURL, &c.Synthetic); err != nil {
		return EpgChannel{}, err
	}
	return c, nil
}

// EpgChannelsForSource returns every channel belonging to one EPG source.
func (s *Store) EpgChannelsForSource(sourceID string) ([]EpgChannel, error) {
	rows, err := s.db.Query(`SELECT `+epgChannelColumns+` FROM epg_channels
		WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpgChannel
	for rows.Next() {
		c, err := scanEpgChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllEpgChannels returns every EpgChannel across every source.
func (s *Store) AllEpgChannels() ([]EpgChannel, error) {
	rows, err := s.db.Query(`SELECT ` + epgChannelColumns + ` FROM epg_channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpgChannel
	for rows.Next() {
		c, err := scanEpgChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EpgChannelSettingsFor returns the settings row for a channel, or a zero
// value with Enabled=false if none exists yet.
func (s *Store) EpgChannelSettingsFor(channelID int64) (EpgChannelSettings, error) {
	row := s.db.QueryRow(`SELECT epg_channel_id, enabled, plex_display_order
		FROM epg_channel_settings WHERE epg_channel_id = ?`, channelID)
	var st EpgChannelSettings
	err := row.Scan(&st.EpgChannelID, &st.Enabled, &st.PlexDisplayOrder)
	if err == sql.ErrNoRows {
		return EpgChannelSettings{EpgChannelID: channelID, Enabled: false}, nil
	}
	return st, err
}

// SetEpgChannelSettings upserts the settings row for a channel.
func (s *Store) SetEpgChannelSettings(st EpgChannelSettings) error {
	return s.withTx(func(tx *sql.Tx) error {
		return upsertEpgChannelSettings(tx, st)
	})
}

func upsertEpgChannelSettings(tx *sql.Tx, st EpgChannelSettings) error {
	_, err := tx.Exec(`INSERT INTO epg_channel_settings (epg_channel_id, enabled, plex_display_order)
		VALUES (?, ?, ?)
		ON CONFLICT(epg_channel_id) DO UPDATE SET
			enabled = excluded.enabled,
			plex_display_order = excluded.plex_display_order`,
		st.EpgChannelID, st.Enabled, st.PlexDisplayOrder)
	return err
}

// ProgramsForChannel returns programmes for a channel with start in
// [windowStart, windowEnd), both RFC3339Nano UTC strings, ordered by start.
func (s *Store) ProgramsForChannel(channelID int64, windowStart, windowEnd string) ([]Program, error) {
	rows, err := s.db.Query(`SELECT id, epg_channel_id, title, description, category,
		episode_tag, start_utc, end_utc FROM programs
		WHERE epg_channel_id = ? AND start_utc >= ? AND start_utc < ?
		ORDER BY start_utc`, channelID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		var start, end string
		if err := rows.Scan(&p.ID, &p.EpgChannelID, &p.Title, &p.Description, &p.Category,
			&p.EpisodeTag, &start, &end); err != nil {
			return nil, err
		}
		p.Start = parseTime(start)
		p.End = parseTime(end)
		out = append(out, p)
	}
	return out, rows.Err()
}

// channelSnapshot is what RefreshSource preserves across the delete/rebuild
// of one source's channels: each channel's stable id, its settings, and its
// manual mappings (and the other side of each mapping, by provider stream
// id, so they can be re-linked against the rebuilt channel ids).
type channelSnapshot struct {
	stableID       string
	settings       EpgChannelSettings
	hasSettings    bool
	manualMappings []ChannelMapping
}

// RefreshSource atomically replaces every EpgChannel and Program belonging
// to sourceID with freshChannels/freshPrograms (freshPrograms keyed by the
// index into freshChannels), restoring settings and manual mappings by
// stableId after the swap. freshPrograms[i] are the programmes for
// freshChannels[i]. Manual mappings whose provider stream is orphaned are
// restored like any other. Settings and manual mappings of a channel whose
// stable id is absent from freshChannels are not restored.
func (s *Store) RefreshSource(sourceID string, freshChannels []EpgChannel, freshPrograms [][]Program) error {
	return s.withTx(func(tx *sql.Tx) error {
		snapshots, err := snapshotSource(tx, sourceID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM epg_channels WHERE source_id = ?`, sourceID); err != nil {
			return err
		}

		chStmt, err := tx.Prepare(`INSERT INTO epg_channels
			(source_id, stable_id, display_name, icon_url, synthetic)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer chStmt.Close()

		progStmt, err := tx.Prepare(`INSERT INTO programs
			(epg_channel_id, title, description, category, episode_tag, start_utc, end_utc)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer progStmt.Close()

		newIDByStable := make(map[string]int64, len(freshChannels))
		const progBatch = 500

		for i, c := range freshChannels {
			res, err := chStmt.Exec(sourceID, c.StableID, c.DisplayName, c.IconURL, c.Synthetic)
			if err != nil {
				return err
			}
			newID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			newIDByStable[c.StableID] = newID

			progs := freshPrograms[i]
			for j := 0; j < len(progs); j += progBatch {
				end := j + progBatch
				if end > len(progs) {
					end = len(progs)
				}
				for _, p := range progs[j:end] {
					if _, err := progStmt.Exec(newID, p.Title, p.Description, p.Category,
						p.EpisodeTag, formatTime(p.Start), formatTime(p.End)); err != nil {
						return err
					}
				}
			}
		}

		for _, snap := range snapshots {
			newID, ok := newIDByStable[snap.stableID]
			if !ok {
				continue
			}
			if snap.hasSettings {
				snap.settings.EpgChannelID = newID
				if err := upsertEpgChannelSettings(tx, snap.settings); err != nil {
					return err
				}
			}
			for _, m := range snap.manualMappings {
				m.EpgChannelID = newID
				if err := insertMapping(tx, m); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func snapshotSource(tx *sql.Tx, sourceID string) ([]channelSnapshot, error) {
	rows, err := tx.Query(`SELECT `+epgChannelColumns+` FROM epg_channels WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []EpgChannel
	for rows.Next() {
		c, err := scanEpgChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snapshots := make([]channelSnapshot, 0, len(channels))
	for _, c := range channels {
		snap := channelSnapshot{stableID: c.StableID}

		var st EpgChannelSettings
		srow := tx.QueryRow(`SELECT epg_channel_id, enabled, plex_display_order
			FROM epg_channel_settings WHERE epg_channel_id = ?`, c.ID)
		if err := srow.Scan(&st.EpgChannelID, &st.Enabled, &st.PlexDisplayOrder); err == nil {
			snap.settings = st
			snap.hasSettings = true
		} else if err != sql.ErrNoRows {
			return nil, err
		}

		mrows, err := tx.Query(`SELECT id, epg_channel_id, provider_stream_id, confidence,
			manual, is_primary, priority, match_type FROM channel_mappings
			WHERE epg_channel_id = ? AND manual = 1`, c.ID)
		if err != nil {
			return nil, err
		}
		for mrows.Next() {
			m, err := scanMapping(mrows)
			if err != nil {
				mrows.Close()
				return nil, err
			}
			snap.manualMappings = append(snap.manualMappings, m)
		}
		if err := mrows.Err(); err != nil {
			mrows.Close()
			return nil, err
		}
		mrows.Close()

		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
