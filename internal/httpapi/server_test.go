package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/streamforge/tuner-gateway/internal/appdir"
	"github.com/streamforge/tuner-gateway/internal/session"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/synth"
	"github.com/streamforge/tuner-gateway/internal/vault"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := appdir.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("appdir.New: %v", err)
	}
	v, err := vault.New(dir)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	return &Server{
		BaseURL:  "http://127.0.0.1:5004",
		DB:       db,
		Vault:    v,
		Sessions: session.NewManager(2),
		XMLTV:    synth.NewXMLTVCache(&synth.Generation{}),
		TestMode: true,
	}
}

func TestHandleHealth_returnsHealthyStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"status":"healthy"}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestHandlePlaylist_emptyCatalogStillServesHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/playlist.m3u", nil)
	rec := httptest.NewRecorder()
	s.handlePlaylist(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "#EXTM3U\n" {
		t.Fatalf("body = %q, want header only", rec.Body.String())
	}
}

func TestHandleStream_unknownChannelReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/stream/999", nil)
	rec := httptest.NewRecorder()
	s.handleStream(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleStream_capacityReachedReturns503(t *testing.T) {
	s := newTestServer(t)
	s.Sessions = session.NewManager(0)
	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	rec := httptest.NewRecorder()
	s.handleStream(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleTestSeed_postCreatesAccount(t *testing.T) {
	s := newTestServer(t)
	body := `{"displayName":"Test","baseUrl":"http://x","username":"u","password":"p","providerStreamId":"1","streamName":"ESPN"}`
	req := httptest.NewRequest(http.MethodPost, "/test/seed", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleTestSeed(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	accounts, err := s.DB.ListAccounts()
	if err != nil || len(accounts) != 1 {
		t.Fatalf("ListAccounts: %v %v", accounts, err)
	}
}

func TestHandleTestSeed_deactivatesAllAccounts(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.DB.CreateAccount(store.Account{DisplayName: "A", BaseURL: "http://x", Active: true}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, "/test/seed", nil)
	rec := httptest.NewRecorder()
	s.handleTestSeed(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	accounts, _ := s.DB.ListAccounts()
	for _, a := range accounts {
		if a.Active {
			t.Fatalf("expected every account deactivated, got active account %d", a.ID)
		}
	}
}
