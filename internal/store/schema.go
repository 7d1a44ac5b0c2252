package store

// migrations is an ordered list of idempotent statements applied inside a
// single transaction on every Open, the same "apply-in-order" idiom the
// teacher used for ad-hoc Plex-DB schema discovery; no schema version is
// stamped. Here the store owns its schema outright so there is no need to
// introspect column names.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		username TEXT NOT NULL,
		password_handle TEXT NOT NULL,
		advertised_max_conns INTEGER NOT NULL DEFAULT 0,
		observed_max_conns INTEGER NOT NULL DEFAULT 0,
		last_check TEXT NOT NULL DEFAULT '',
		liveness TEXT NOT NULL DEFAULT 'unknown',
		active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS provider_streams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		provider_stream_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		icon_url TEXT NOT NULL DEFAULT '',
		category_id TEXT NOT NULL DEFAULT '',
		category_name TEXT NOT NULL DEFAULT '',
		qualities TEXT NOT NULL DEFAULT '[]',
		epg_hint_id TEXT NOT NULL DEFAULT '',
		archive INTEGER NOT NULL DEFAULT 0,
		archive_depth INTEGER NOT NULL DEFAULT 0,
		orphaned INTEGER NOT NULL DEFAULT 0,
		UNIQUE(account_id, provider_stream_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_streams_account ON provider_streams(account_id)`,
	`CREATE TABLE IF NOT EXISTS epg_channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		stable_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		icon_url TEXT NOT NULL DEFAULT '',
		synthetic INTEGER NOT NULL DEFAULT 0,
		UNIQUE(source_id, stable_id)
	)`,
	`CREATE TABLE IF NOT EXISTS epg_channel_settings (
		epg_channel_id INTEGER PRIMARY KEY REFERENCES epg_channels(id) ON DELETE CASCADE,
		enabled INTEGER NOT NULL DEFAULT 0,
		plex_display_order INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS channel_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		epg_channel_id INTEGER NOT NULL REFERENCES epg_channels(id) ON DELETE CASCADE,
		provider_stream_id INTEGER NOT NULL REFERENCES provider_streams(id) ON DELETE CASCADE,
		confidence REAL NOT NULL DEFAULT 0,
		manual INTEGER NOT NULL DEFAULT 0,
		is_primary INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		match_type TEXT NOT NULL DEFAULT 'Fuzzy',
		UNIQUE(epg_channel_id, provider_stream_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_epg_channel ON channel_mappings(epg_channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_provider_stream ON channel_mappings(provider_stream_id)`,
	`CREATE TABLE IF NOT EXISTS programs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		epg_channel_id INTEGER NOT NULL REFERENCES epg_channels(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		episode_tag TEXT NOT NULL DEFAULT '',
		start_utc TEXT NOT NULL,
		end_utc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_programs_channel_start ON programs(epg_channel_id, start_utc)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		level TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_ts ON event_log(ts)`,
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
