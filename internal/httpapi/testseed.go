package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/streamforge/tuner-gateway/internal/store"
)

// seedRequest describes one account + live stream to create for an
// end-to-end test run. POST creates it; DELETE deactivates every account
// in the catalog, seeded or not (test mode only, never mounted otherwise).
type seedRequest struct {
	DisplayName      string `json:"displayName"`
	BaseURL          string `json:"baseUrl"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ProviderStreamID string `json:"providerStreamId"`
	StreamName       string `json:"streamName"`
}

func (s *Server) handleTestSeed(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.seedAccount(w, r)
	case http.MethodDelete:
		s.resetSeed(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) seedAccount(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid seed request body", http.StatusBadRequest)
		return
	}

	acc, err := s.DB.CreateAccount(store.Account{
		DisplayName: req.DisplayName,
		BaseURL:     req.BaseURL,
		Username:    req.Username,
		Active:      true,
	})
	if err != nil {
		http.Error(w, "seed: create account failed", http.StatusInternalServerError)
		return
	}
	handle, err := s.Vault.Store(acc.ID, req.Password)
	if err != nil {
		http.Error(w, "seed: store credential failed", http.StatusInternalServerError)
		return
	}
	acc.PasswordHandle = handle
	if err := s.DB.UpdateAccount(acc); err != nil {
		http.Error(w, "seed: attach credential failed", http.StatusInternalServerError)
		return
	}
	if err := s.DB.ReplaceAccountStreams(acc.ID, []store.ProviderStream{
		{AccountID: acc.ID, ProviderStreamID: req.ProviderStreamID, DisplayName: req.StreamName},
	}); err != nil {
		http.Error(w, "seed: create stream failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"accountId": acc.ID})
}

func (s *Server) resetSeed(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.DB.ListAccounts()
	if err != nil {
		http.Error(w, "seed: list accounts failed", http.StatusInternalServerError)
		return
	}
	for _, a := range accounts {
		a.Active = false
		_ = s.DB.UpdateAccount(a)
	}
	w.WriteHeader(http.StatusNoContent)
}
