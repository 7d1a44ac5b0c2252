package store

import "time"

// Account is a provider subscription.
type Account struct {
	ID                 int64
	DisplayName        string
	BaseURL             string
	Username            string
	PasswordHandle       string // opaque handle from internal/vault
	AdvertisedMaxConns  int
	ObservedMaxConns    int
	LastCheck           time.Time
	Liveness            string // "unknown" | "up" | "down"
	Active              bool
}

// ProviderStream is one live stream offered by one account.
type ProviderStream struct {
	ID             int64
	AccountID      int64
	ProviderStreamID string // provider-assigned id, unique within account
	DisplayName    string
	IconURL        string
	CategoryID     string
	CategoryName   string
	Qualities      []string // e.g. ["HD","SD"]
	EPGHintID      string   // provider-supplied epg_channel_id, optional
	Archive        bool
	ArchiveDepth   int
	Orphaned       bool // true once removed from the provider's catalog but kept alive by a manual mapping
}

// EpgChannel is one channel in the XMLTV lineup.
type EpgChannel struct {
	ID          int64
	SourceID    string
	StableID    string // tvg-id
	DisplayName string
	IconURL     string
	Synthetic   bool
}

// EpgChannelSettings are per-EpgChannel user settings.
type EpgChannelSettings struct {
	EpgChannelID    int64
	Enabled         bool
	PlexDisplayOrder *int
}

// MatchType classifies how a ChannelMapping was produced.
type MatchType string

const (
	MatchExactEpgID MatchType = "ExactEpgId"
	MatchExactName  MatchType = "ExactName"
	MatchFuzzy      MatchType = "Fuzzy"
)

// ChannelMapping is an edge between one EpgChannel and one ProviderStream.
type ChannelMapping struct {
	ID               int64
	EpgChannelID     int64
	ProviderStreamID int64
	Confidence       float64
	Manual           bool
	Primary          bool
	Priority         int
	MatchType        MatchType
}

// Program is an EPG programme entry.
type Program struct {
	ID           int64
	EpgChannelID int64
	Title        string
	Description  string
	Category     string
	EpisodeTag   string
	Start        time.Time
	End          time.Time
}

// EventLevel is the severity of an EventLog entry.
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// EventCategory classifies an EventLog entry.
type EventCategory string

const (
	CategoryConnection EventCategory = "connection"
	CategoryStream     EventCategory = "stream"
	CategoryMatch      EventCategory = "match"
	CategoryEPG        EventCategory = "epg"
	CategorySystem     EventCategory = "system"
	CategoryProvider   EventCategory = "provider"
)

// EventLog is an append-only audit record.
type EventLog struct {
	ID        int64
	Timestamp time.Time
	Level     EventLevel
	Category  EventCategory
	Message   string
	Details   string // optional JSON
	Read      bool
}

// RematchResult summarizes a matcher or reconciler run.
type RematchResult struct {
	Totals                int
	Matched               int
	Unmatched             int
	MultipleMatches       int
	NewMatches            int
	MappingsRemoved       int
	MappingsUpdated       int
	ManualMatchesPreserved int
	AffectedChannels      int
	WallClockMs           int64
}
