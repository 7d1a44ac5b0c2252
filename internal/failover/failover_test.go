package failover

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/streamforge/tuner-gateway/internal/appdir"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/vault"
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

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	dir, err := appdir.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("appdir.New: %v", err)
	}
	v, err := vault.New(dir)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

// seedTwoAccountChannel creates an EpgChannel mapped to a primary stream
// on account A (priority 0) and a backup stream on account B (priority 1).
func seedTwoAccountChannel(t *testing.T, db *store.Store, v *vault.Vault) (epgChannelID int64) {
	t.Helper()
	accA, err := db.CreateAccount(store.Account{DisplayName: "A", BaseURL: "http://a.example", Username: "userA", Active: true})
	if err != nil {
		t.Fatalf("CreateAccount A: %v", err)
	}
	handleA, err := v.Store(accA.ID, "passA")
	if err != nil {
		t.Fatalf("vault.Store A: %v", err)
	}
	accA.PasswordHandle = handleA
	if err := db.UpdateAccount(accA); err != nil {
		t.Fatalf("UpdateAccount A: %v", err)
	}

	accB, err := db.CreateAccount(store.Account{DisplayName: "B", BaseURL: "http://b.example", Username: "userB", Active: true})
	if err != nil {
		t.Fatalf("CreateAccount B: %v", err)
	}
	handleB, err := v.Store(accB.ID, "passB")
	if err != nil {
		t.Fatalf("vault.Store B: %v", err)
	}
	accB.PasswordHandle = handleB
	if err := db.UpdateAccount(accB); err != nil {
		t.Fatalf("UpdateAccount B: %v", err)
	}

	if err := db.ReplaceAccountStreams(accA.ID, []store.ProviderStream{
		{AccountID: accA.ID, ProviderStreamID: "100", DisplayName: "ESPN"},
	}); err != nil {
		t.Fatalf("ReplaceAccountStreams A: %v", err)
	}
	if err := db.ReplaceAccountStreams(accB.ID, []store.ProviderStream{
		{AccountID: accB.ID, ProviderStreamID: "200", DisplayName: "ESPN"},
	}); err != nil {
		t.Fatalf("ReplaceAccountStreams B: %v", err)
	}
	streamsA, _ := db.StreamsForAccount(accA.ID)
	streamsB, _ := db.StreamsForAccount(accB.ID)

	if err := db.RefreshSource("src", []store.EpgChannel{{SourceID: "src", StableID: "espn", DisplayName: "ESPN"}}, [][]store.Program{nil}); err != nil {
		t.Fatalf("RefreshSource: %v", err)
	}
	channels, _ := db.EpgChannelsForSource("src")
	ch := channels[0]

	if err := db.SetManualMapping(ch.ID, streamsA[0].ID, true); err != nil {
		t.Fatalf("SetManualMapping primary: %v", err)
	}
	if err := db.SetManualMapping(ch.ID, streamsB[0].ID, false); err != nil {
		t.Fatalf("SetManualMapping backup: %v", err)
	}
	return ch.ID
}

func TestNew_ordersCandidatesPrimaryFirst(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)

	c, err := New(db, v, chID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.Current().Primary {
		t.Fatal("expected the first candidate to be primary")
	}
}

func TestAdvance_movesToBackupThenExhausts(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)

	c, err := New(db, v, chID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.Advance(ReasonStreamError, 0) {
		t.Fatal("expected a backup candidate to be available")
	}
	if c.AtPrimary() {
		t.Fatal("expected controller to no longer be at primary after Advance")
	}
	if c.Advance(ReasonStreamError, 0) {
		t.Fatal("expected exhaustion after the only backup was tried")
	}
}

func TestAdvance_skipsRemainingCandidatesOnAccountLevelFailure(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)

	accC, _ := db.CreateAccount(store.Account{DisplayName: "C", BaseURL: "http://c.example", Username: "userC", Active: true})
	db.ReplaceAccountStreams(accC.ID, []store.ProviderStream{{AccountID: accC.ID, ProviderStreamID: "300", DisplayName: "ESPN"}})
	streamsC, _ := db.StreamsForAccount(accC.ID)
	db.SetManualMapping(chID, streamsC[0].ID, false)

	c, err := New(db, v, chID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	primaryAccount := c.Current().AccountID
	_ = primaryAccount
	if !c.Advance(ReasonHTTP, 401) {
		t.Fatal("expected a non-skipped candidate from a different account")
	}
	if c.Current().AccountID == primaryAccount {
		t.Fatal("advanced to a candidate from the same account that returned 401")
	}
}

func TestShouldAttemptQualityUpgrade_falseAtPrimary(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)
	c, _ := New(db, v, chID)

	if c.ShouldAttemptQualityUpgrade() {
		t.Fatal("expected no upgrade attempt while already at primary")
	}
	c.Advance(ReasonStreamError, 0)
	if c.ShouldAttemptQualityUpgrade() {
		t.Fatal("expected no upgrade attempt immediately after failing over")
	}
}

func TestCollapseToPrimary_resetsIndexAndTimer(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)
	c, _ := New(db, v, chID)

	c.Advance(ReasonStreamError, 0)
	c.CollapseToPrimary()
	if !c.AtPrimary() {
		t.Fatal("expected CollapseToPrimary to restore index 0")
	}
	if c.ShouldAttemptQualityUpgrade() {
		t.Fatal("expected the upgrade timer to be cleared after collapsing")
	}
}

func TestAttemptQualityUpgrade_falseAtPrimaryWithoutTouchingVault(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)
	c, _ := New(db, v, chID)

	if _, ok := c.AttemptQualityUpgrade(context.Background(), "sess-1"); ok {
		t.Fatal("expected no upgrade attempt while already at primary")
	}
}

func TestAttemptQualityUpgrade_resetsTimerOnConnectFailure(t *testing.T) {
	db := newTestStore(t)
	v := newTestVault(t)
	chID := seedTwoAccountChannel(t, db, v)
	c, _ := New(db, v, chID)

	c.Advance(ReasonStreamError, 0)
	c.lastFailover = time.Now().Add(-qualityUpgradeAfter)
	if !c.ShouldAttemptQualityUpgrade() {
		t.Fatal("expected the controller to be eligible for an upgrade attempt")
	}

	// Corrupt the primary candidate's password handle so upstreamURL fails
	// before remux.Start would ever be reached, keeping this test free of
	// any dependency on a real ffmpeg binary or upstream server.
	c.candidates[0].PasswordHandle = "not-a-real-handle"

	if _, ok := c.AttemptQualityUpgrade(context.Background(), "sess-1"); ok {
		t.Fatal("expected the upgrade attempt to fail against a corrupt password handle")
	}
	if c.AtPrimary() {
		t.Fatal("a failed upgrade attempt must not move the controller off the backup")
	}
	if c.ShouldAttemptQualityUpgrade() {
		t.Fatal("expected the retry clock to have been reset just now")
	}
}
