package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// Keys of the flat Settings store (SPEC_FULL.md §5 Configuration).
const (
	SettingServerPort         = "server_port"
	SettingMatchThreshold     = "match_threshold"
	SettingLogVerbosity       = "log_verbosity"
	SettingEPGRefreshHour     = "epg_refresh_hour"
	SettingEPGRefreshMinute   = "epg_refresh_minute"
	SettingEPGRefreshEnabled  = "epg_refresh_enabled"
	SettingEPGLastScheduled   = "epg_last_scheduled_refresh"
	// SettingEPGXMLTVSources is a comma-separated list of external XMLTV
	// feed URLs refreshed alongside the per-account Xtream catalogs. Each
	// URL is its own epg_channels.source_id.
	SettingEPGXMLTVSources = "epg_xmltv_sources"
)

// Defaults applied when a key has never been written.
const (
	DefaultServerPort     = 5004
	DefaultMatchThreshold = 0.85
	DefaultLogVerbosity   = "verbose"
)

// GetSetting returns the raw string value for key, or "" if unset.
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SetSetting upserts a single key/value pair.
func (s *Store) SetSetting(key, value string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
}

// AllSettings returns every stored key/value pair.
func (s *Store) AllSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ServerPort returns the configured port, defaulting to DefaultServerPort.
func (s *Store) ServerPort() (int, error) {
	v, err := s.GetSetting(SettingServerPort)
	if err != nil || v == "" {
		return DefaultServerPort, err
	}
	return strconv.Atoi(v)
}

// MatchThreshold returns the configured match threshold, defaulting to
// DefaultMatchThreshold.
func (s *Store) MatchThreshold() (float64, error) {
	v, err := s.GetSetting(SettingMatchThreshold)
	if err != nil || v == "" {
		return DefaultMatchThreshold, err
	}
	return strconv.ParseFloat(v, 64)
}

// EPGXMLTVSources returns the configured external XMLTV feed URLs, empty
// when none are configured.
func (s *Store) EPGXMLTVSources() ([]string, error) {
	v, err := s.GetSetting(SettingEPGXMLTVSources)
	if err != nil || v == "" {
		return nil, err
	}
	var out []string
	for _, u := range strings.Split(v, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
