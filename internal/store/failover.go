package store

// Candidate is one ranked failover option for an EpgChannel: a mapped
// provider stream plus the account credentials needed to build its
// upstream URL.
type Candidate struct {
	MappingID        int64
	ProviderStreamID int64
	AccountID        int64
	BaseURL          string
	Username         string
	PasswordHandle   string
	ProviderStream   string // provider's own stream id, for URL building
	Primary          bool
	Priority         int
}

// CandidatesForChannel returns the ranked list of failover candidates for
// an EpgChannel: mappings joined to their provider stream and the owning
// active account, ordered by ascending priority, primary first among
// equal priorities.
func (s *Store) CandidatesForChannel(epgChannelID int64) ([]Candidate, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.provider_stream_id, a.id, a.base_url, a.username, a.password_handle,
		       p.provider_stream_id, m.is_primary, m.priority
		FROM channel_mappings m
		JOIN provider_streams p ON p.id = m.provider_stream_id
		JOIN accounts a ON a.id = p.account_id
		WHERE m.epg_channel_id = ? AND a.active = 1
		ORDER BY m.priority ASC, m.is_primary DESC`, epgChannelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.MappingID, &c.ProviderStreamID, &c.AccountID, &c.BaseURL,
			&c.Username, &c.PasswordHandle, &c.ProviderStream, &c.Primary, &c.Priority); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
