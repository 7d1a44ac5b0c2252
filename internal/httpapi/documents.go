package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/streamforge/tuner-gateway/internal/synth"
)

// writeCompressible writes body as the response, brotli-encoding it when
// the client advertises "br" support. Only epg.xml and playlist.m3u use
// this: they are the two documents large enough, and regenerated rarely
// enough, for compression to be worth the CPU.
func writeCompressible(w http.ResponseWriter, r *http.Request, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	if strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		defer bw.Close()
		_, _ = bw.Write([]byte(body))
		return
	}
	_, _ = w.Write([]byte(body))
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	doc, err := synth.BuildM3U(s.DB, s.BaseURL)
	if err != nil {
		http.Error(w, "failed to build playlist", http.StatusInternalServerError)
		return
	}
	writeCompressible(w, r, "audio/x-mpegurl", doc)
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	doc, etag, err := s.XMLTV.Get(s.DB)
	if err != nil {
		http.Error(w, "failed to build guide", http.StatusInternalServerError)
		return
	}
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeCompressible(w, r, "application/xml", doc)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	doc, err := synth.BuildDiscover(s.DB, s.BaseURL, s.FriendlyName, hostname)
	if err != nil {
		http.Error(w, "failed to build discover document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, doc)
}

func (s *Server) handleLineup(w http.ResponseWriter, r *http.Request) {
	entries, err := synth.BuildLineup(s.DB, s.BaseURL)
	if err != nil {
		http.Error(w, "failed to build lineup", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleLineupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, synth.BuildLineupStatus())
}
