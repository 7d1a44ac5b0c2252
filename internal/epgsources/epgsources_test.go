package epgsources

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/streamforge/tuner-gateway/internal/appdir"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/synth"
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

const sampleXMLTV = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="espn.us"><display-name>ESPN</display-name></channel>
  <programme start="20260101120000 +0000" stop="20260101130000 +0000" channel="espn.us">
    <title>SportsCenter</title>
  </programme>
</tv>`

func TestXMLTVSource_refreshWritesChannelsAndProgrammes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleXMLTV))
	}))
	defer srv.Close()

	db := newTestStore(t)
	gen := &synth.Generation{}
	src := NewXMLTVSource(db, gen, srv.URL)

	if got := src.ID(); got != srv.URL {
		t.Fatalf("ID() = %q, want %q", got, srv.URL)
	}

	if err := src.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	channels, err := db.EpgChannelsForSource(srv.URL)
	if err != nil {
		t.Fatalf("EpgChannelsForSource: %v", err)
	}
	if len(channels) != 1 || channels[0].StableID != "espn.us" {
		t.Fatalf("channels = %+v, want one espn.us channel", channels)
	}

	progs, err := db.ProgramsForChannel(channels[0].ID, "2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("ProgramsForChannel: %v", err)
	}
	if len(progs) != 1 || progs[0].Title != "SportsCenter" {
		t.Fatalf("programs = %+v, want one SportsCenter programme", progs)
	}
}

func TestXMLTVSource_refreshBumpsGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleXMLTV))
	}))
	defer srv.Close()

	db := newTestStore(t)
	gen := &synth.Generation{}
	cache := synth.NewXMLTVCache(gen)
	first, _, err := cache.Get(db)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	src := NewXMLTVSource(db, gen, srv.URL)
	if err := src.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	second, _, err := cache.Get(db)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first == second {
		t.Fatalf("expected cache to regenerate after a source refresh bumped the generation")
	}
}

func TestRematchSource_idIsStable(t *testing.T) {
	db := newTestStore(t)
	src := NewRematchSource(db, &synth.Generation{})
	if src.ID() != "rematch" {
		t.Fatalf("ID() = %q, want %q", src.ID(), "rematch")
	}
}

func TestAccountSource_refreshAuthenticatesAndReconciles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "":
			w.Write([]byte(`{"user_info":{"auth":1,"status":"Active","exp_date":"1999999999","max_connections":"3","active_cons":"0","is_trial":"0"}}`))
		case "get_live_streams":
			w.Write([]byte(`[{"stream_id":101,"name":"ESPN HD","category_id":"5","epg_channel_id":"espn.us"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	db := newTestStore(t)
	v := newTestVault(t)
	acc, err := db.CreateAccount(store.Account{DisplayName: "A", BaseURL: srv.URL, Username: "user", Active: true})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	handle, err := v.Store(acc.ID, "pass")
	if err != nil {
		t.Fatalf("vault.Store: %v", err)
	}
	acc.PasswordHandle = handle
	if err := db.UpdateAccount(acc); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	gen := &synth.Generation{}
	src := NewAccountSource(db, v, acc, gen)
	if got, want := src.ID(), "account:"+strconv.FormatInt(acc.ID, 10); got != want {
		t.Fatalf("ID() = %q, want %q", got, want)
	}

	if err := src.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	updated, err := db.GetAccount(acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if updated.Liveness != "up" {
		t.Fatalf("Liveness = %q, want %q", updated.Liveness, "up")
	}
	if updated.ObservedMaxConns != 3 {
		t.Fatalf("ObservedMaxConns = %d, want 3", updated.ObservedMaxConns)
	}
	if updated.LastCheck.IsZero() {
		t.Fatal("expected LastCheck to be set after a refresh")
	}

	streams, err := db.StreamsForAccount(acc.ID)
	if err != nil {
		t.Fatalf("StreamsForAccount: %v", err)
	}
	if len(streams) != 1 || streams[0].DisplayName != "ESPN HD" {
		t.Fatalf("streams = %+v, want one ESPN HD stream", streams)
	}
	if len(streams[0].Qualities) != 1 || streams[0].Qualities[0] != "HD" {
		t.Fatalf("Qualities = %v, want [HD]", streams[0].Qualities)
	}
}

func TestAccountSource_refreshMarksDownOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_info":{"auth":0,"status":"Disabled"}}`))
	}))
	defer srv.Close()

	db := newTestStore(t)
	v := newTestVault(t)
	acc, err := db.CreateAccount(store.Account{DisplayName: "A", BaseURL: srv.URL, Username: "user", Active: true, Liveness: "unknown"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	handle, _ := v.Store(acc.ID, "pass")
	acc.PasswordHandle = handle
	db.UpdateAccount(acc)

	src := NewAccountSource(db, v, acc, &synth.Generation{})
	if err := src.Refresh(t.Context()); err == nil {
		t.Fatal("expected Refresh to return an error on auth failure")
	}

	updated, err := db.GetAccount(acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if updated.Liveness != "down" {
		t.Fatalf("Liveness = %q, want %q", updated.Liveness, "down")
	}
}
