package store

import (
	"database/sql"
	"encoding/json"
)

func encodeQualities(q []string) string {
	if len(q) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(q)
	return string(b)
}

func decodeQualities(s string) []string {
	var q []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &q)
	return q
}

const streamColumns = `id, account_id, provider_stream_id, display_name, icon_url,
	category_id, category_name, qualities, epg_hint_id, archive, archive_depth, orphaned`

func scanStream(row interface {
	Scan(dest ...any) error
}) (ProviderStream, error) {
	var p ProviderStream
	var qualities string
	if err := row.Scan(&p.ID, &p.AccountID, &p.ProviderStreamID, &p.DisplayName, &p.IconURL,
		&p.CategoryID, &p.CategoryName, &qualities, &p.EPGHintID, &p.Archive, &p.ArchiveDepth, &p.Orphaned); err != nil {
		return ProviderStream{}, err
	}
	p.Qualities = decodeQualities(qualities)
	return p, nil
}

// StreamsForAccount returns every provider stream belonging to an account.
func (s *Store) StreamsForAccount(accountID int64) ([]ProviderStream, error) {
	rows, err := s.db.Query(`SELECT `+streamColumns+` FROM provider_streams
		WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderStream
	for rows.Next() {
		p, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStream returns one provider stream by primary key.
func (s *Store) GetStream(id int64) (ProviderStream, error) {
	row := s.db.QueryRow(`SELECT `+streamColumns+` FROM provider_streams WHERE id = ?`, id)
	return scanStream(row)
}

// AllStreams returns every provider stream across every account.
func (s *Store) AllStreams() ([]ProviderStream, error) {
	rows, err := s.db.Query(`SELECT ` + streamColumns + ` FROM provider_streams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderStream
	for rows.Next() {
		p, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceAccountStreams swaps the full set of provider streams for one
// account in a single transaction: delete all, insert the new batch, so
// the store write is all-or-nothing. Rows go in one prepared INSERT per
// row, walked in slices of 500 the way the teacher batched DVR grid
// inserts.
func (s *Store) ReplaceAccountStreams(accountID int64, streams []ProviderStream) error {
	const batchSize = 500
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM provider_streams WHERE account_id = ?`, accountID); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO provider_streams
			(account_id, provider_stream_id, display_name, icon_url, category_id,
			 category_name, qualities, epg_hint_id, archive, archive_depth)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := 0; i < len(streams); i += batchSize {
			end := i + batchSize
			if end > len(streams) {
				end = len(streams)
			}
			for _, p := range streams[i:end] {
				if _, err := stmt.Exec(accountID, p.ProviderStreamID, p.DisplayName, p.IconURL,
					p.CategoryID, p.CategoryName, encodeQualities(p.Qualities), p.EPGHintID,
					p.Archive, p.ArchiveDepth); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
