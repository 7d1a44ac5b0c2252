package store

import "database/sql"

// LogEvent appends one audit record. Timestamp is set by the caller so that
// tests and the scheduler can stamp deterministic times.
func (s *Store) LogEvent(e EventLog) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO event_log (ts, level, category, message, details, read)
			VALUES (?, ?, ?, ?, ?, ?)`,
			formatTime(e.Timestamp), string(e.Level), string(e.Category), e.Message, e.Details, e.Read)
		return err
	})
}

// RecentEvents returns up to limit most recent events, newest first.
func (s *Store) RecentEvents(limit int) ([]EventLog, error) {
	rows, err := s.db.Query(`SELECT id, ts, level, category, message, details, read
		FROM event_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventLog
	for rows.Next() {
		var e EventLog
		var ts, level, category string
		if err := rows.Scan(&e.ID, &ts, &level, &category, &e.Message, &e.Details, &e.Read); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Level = EventLevel(level)
		e.Category = EventCategory(category)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkEventsRead flags the given event ids as read.
func (s *Store) MarkEventsRead(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE event_log SET read = 1 WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.Exec(id); err != nil {
				return err
			}
		}
		return nil
	})
}
