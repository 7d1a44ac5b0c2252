package matcher

import (
	"path/filepath"
	"testing"

	"github.com/streamforge/tuner-gateway/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun_ranksAndPersistsMappings(t *testing.T) {
	db := newTestStore(t)
	a, _ := db.CreateAccount(store.Account{DisplayName: "A", BaseURL: "http://x", Active: true})
	db.ReplaceAccountStreams(a.ID, []store.ProviderStream{
		{ProviderStreamID: "1", DisplayName: "ESPN HD"},
		{ProviderStreamID: "2", DisplayName: "ESPN"},
		{ProviderStreamID: "3", DisplayName: "Totally Unrelated Channel"},
	})
	db.RefreshSource("src", []store.EpgChannel{
		{SourceID: "src", StableID: "espn.us", DisplayName: "ESPN"},
	}, [][]store.Program{nil})

	result, err := Run(db, Config{Threshold: 0.85})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Matched != 1 {
		t.Errorf("Matched = %d, want 1", result.Matched)
	}
	if result.MultipleMatches != 1 {
		t.Errorf("MultipleMatches = %d, want 1", result.MultipleMatches)
	}

	channels, _ := db.AllEpgChannels()
	mappings, err := db.MappingsForChannel(channels[0].ID)
	if err != nil {
		t.Fatalf("MappingsForChannel: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings above threshold, got %d", len(mappings))
	}
	if !mappings[0].Primary || mappings[0].Priority != 0 {
		t.Errorf("expected rank 0 to be primary: %+v", mappings[0])
	}
}

func TestRun_unmatchedChannelDisabledAndSettingsEnsured(t *testing.T) {
	db := newTestStore(t)
	db.RefreshSource("src", []store.EpgChannel{
		{SourceID: "src", StableID: "lonely.us", DisplayName: "Totally Unique Name"},
	}, [][]store.Program{nil})

	result, err := Run(db, Config{Threshold: 0.85})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", result.Unmatched)
	}

	channels, _ := db.AllEpgChannels()
	settings, err := db.EpgChannelSettingsFor(channels[0].ID)
	if err != nil {
		t.Fatalf("EpgChannelSettingsFor: %v", err)
	}
	if settings.Enabled {
		t.Errorf("expected unmatched channel to be disabled")
	}
}

func TestRun_preservesManualMapping(t *testing.T) {
	db := newTestStore(t)
	a, _ := db.CreateAccount(store.Account{DisplayName: "A", BaseURL: "http://x", Active: true})
	db.ReplaceAccountStreams(a.ID, []store.ProviderStream{
		{ProviderStreamID: "1", DisplayName: "Completely Different Name"},
	})
	db.RefreshSource("src", []store.EpgChannel{
		{SourceID: "src", StableID: "espn.us", DisplayName: "ESPN"},
	}, [][]store.Program{nil})

	channels, _ := db.AllEpgChannels()
	streams, _ := db.StreamsForAccount(a.ID)
	if err := db.SetManualMapping(channels[0].ID, streams[0].ID, true); err != nil {
		t.Fatalf("SetManualMapping: %v", err)
	}

	if _, err := Run(db, Config{Threshold: 0.85}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mappings, _ := db.MappingsForChannel(channels[0].ID)
	if len(mappings) != 1 || !mappings[0].Manual {
		t.Fatalf("expected the manual mapping to survive an automatic rematch, got %+v", mappings)
	}
}
