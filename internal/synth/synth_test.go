package synth

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

// seedChannel creates one enabled, mapped EpgChannel backed by one
// provider stream, returning the channel.
func seedChannel(t *testing.T, db *store.Store, accountID int64, stableID, name string, order *int) store.EpgChannel {
	t.Helper()
	if err := db.RefreshSource(stableID+"-src", []store.EpgChannel{
		{SourceID: stableID + "-src", StableID: stableID, DisplayName: name},
	}, [][]store.Program{nil}); err != nil {
		t.Fatalf("RefreshSource: %v", err)
	}
	channels, err := db.EpgChannelsForSource(stableID + "-src")
	if err != nil || len(channels) != 1 {
		t.Fatalf("EpgChannelsForSource: %v %v", channels, err)
	}
	ch := channels[0]

	if err := db.ReplaceAccountStreams(accountID, []store.ProviderStream{
		{AccountID: accountID, ProviderStreamID: stableID + "-stream", DisplayName: name},
	}); err != nil {
		t.Fatalf("ReplaceAccountStreams: %v", err)
	}
	streams, err := db.StreamsForAccount(accountID)
	if err != nil || len(streams) == 0 {
		t.Fatalf("StreamsForAccount: %v %v", streams, err)
	}

	if err := db.SetManualMapping(ch.ID, streams[len(streams)-1].ID, true); err != nil {
		t.Fatalf("SetManualMapping: %v", err)
	}
	if err := db.SetEpgChannelSettings(store.EpgChannelSettings{
		EpgChannelID: ch.ID, Enabled: true, PlexDisplayOrder: order,
	}); err != nil {
		t.Fatalf("SetEpgChannelSettings: %v", err)
	}
	return ch
}

func TestChannelNumbers_explicitThenFillFromMax(t *testing.T) {
	zero, two := 0, 2
	channels := []store.PublishedChannel{
		{Settings: store.EpgChannelSettings{PlexDisplayOrder: &two}},
		{Settings: store.EpgChannelSettings{PlexDisplayOrder: nil}},
		{Settings: store.EpgChannelSettings{PlexDisplayOrder: &zero}},
	}
	got := channelNumbers(channels)
	if got[0] != 3 || got[2] != 1 {
		t.Fatalf("explicit numbers wrong: %v", got)
	}
	if got[1] != 4 {
		t.Errorf("unnumbered channel should fill from max+1, got %d want 4", got[1])
	}
}
