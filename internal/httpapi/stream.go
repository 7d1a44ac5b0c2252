package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamforge/tuner-gateway/internal/failover"
	"github.com/streamforge/tuner-gateway/internal/healthmon"
	"github.com/streamforge/tuner-gateway/internal/metrics"
	"github.com/streamforge/tuner-gateway/internal/remux"
)

// handleStream admits a session against C10, drives C11 (remux) through
// C13 (failover) guided by C12 (health), and streams the resulting
// MPEG-TS bytes as the chunked response body.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/stream/")
	epgChannelID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if !s.Sessions.CanStart() {
		http.Error(w, "no tuners available", http.StatusServiceUnavailable)
		return
	}

	ctrl, err := failover.New(s.DB, s.Vault, epgChannelID)
	if err != nil {
		metrics.StreamStartsTotal.WithLabelValues("no_candidates").Inc()
		http.NotFound(w, r)
		return
	}

	cur := ctrl.Current()
	sess, ok := s.Sessions.Start(cur.AccountID, cur.ProviderStreamID, epgChannelID, r.RemoteAddr)
	if !ok {
		http.Error(w, "no tuners available", http.StatusServiceUnavailable)
		return
	}
	defer s.Sessions.End(sess.ID)

	ctx := r.Context()
	pipe, err := ctrl.StartCurrent(ctx, sess.ID)
	if err != nil {
		pipe, err = ctrl.HandleFailure(ctx, sess.ID, failover.ReasonConnectionError, 0)
		if err != nil {
			metrics.StreamStartsTotal.WithLabelValues("exhausted").Inc()
			http.Error(w, "all streams failed", http.StatusBadGateway)
			return
		}
	}
	metrics.StreamStartsTotal.WithLabelValues("started").Inc()

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Del("Content-Length")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	swapped := false
	for {
		next, needsFailover := drainPipe(ctx, w, flusher, pipe, sess.Touch, ctrl, sess.ID, swapped)
		pipe.Stop()
		switch {
		case next != nil:
			pipe = next
			swapped = true
		case needsFailover:
			np, err := ctrl.HandleFailure(ctx, sess.ID, failover.ReasonStreamError, 0)
			if err != nil {
				return
			}
			pipe = np
			swapped = true
		default:
			return
		}
	}
}

// qualityUpgradeCheckInterval bounds how often drainPipe polls the
// failover controller for an opportunistic retry of the primary
// candidate; the controller itself enforces the 60s cool-down.
const qualityUpgradeCheckInterval = 10 * time.Second

// drainPipe writes pipe's chunks to w, honoring prefill, health-driven
// failover, and opportunistic quality-upgrade retries, until the pipe
// ends, the client disconnects, or a swap is warranted. A non-nil next
// means the caller should start serving next immediately (an upgrade
// already succeeded); needsFailover means the caller should drive a new
// pipe through ctrl.HandleFailure.
//
// swapped is true once the response body has already carried bytes from a
// previous pipe; pipe's own ffmpeg child starts PCR and continuity counters
// from scratch, so its output is routed through a DiscontinuitySpliceWriter
// that shims one discontinuity packet ahead of each PID's first appearance,
// matching the splice technique the HLS relay path uses on a mid-response
// source switch.
func drainPipe(ctx context.Context, w io.Writer, flusher http.Flusher, pipe *remux.Pipe, touch func(int), ctrl *failover.Controller, sessionID string, swapped bool) (next *remux.Pipe, needsFailover bool) {
	var splice *remux.DiscontinuitySpliceWriter
	if swapped {
		splice = remux.NewDiscontinuitySpliceWriter(w, 16)
		w = splice
		defer func() { _ = splice.FlushRemainder() }()
	}

	done := make(chan struct{})
	hm := healthmon.New(healthmon.Config{}, pipe.LastDataTime, done)
	hmCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go hm.Run(hmCtx)

	select {
	case <-pipe.PrefillDone():
	case <-ctx.Done():
		close(done)
		return nil, false
	}

	upgradeTicker := time.NewTicker(qualityUpgradeCheckInterval)
	defer upgradeTicker.Stop()

	watch := hm.Watch()
	for {
		select {
		case <-ctx.Done():
			close(done)
			return nil, false
		case <-upgradeTicker.C:
			if up, ok := ctrl.AttemptQualityUpgrade(ctx, sessionID); ok {
				close(done)
				return up, false
			}
		case tr, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			if tr.State == healthmon.FailoverNeeded {
				close(done)
				return nil, true
			}
		case c, ok := <-pipe.Output():
			if !ok {
				close(done)
				return nil, false
			}
			if len(c.Data) > 0 {
				if _, err := w.Write(c.Data); err != nil {
					close(done)
					return nil, false
				}
				touch(len(c.Data))
				if flusher != nil {
					flusher.Flush()
				}
			}
			if c.Err != nil {
				close(done)
				return nil, c.Err != io.EOF
			}
		}
	}
}

