// Package failover drives the ranked candidate list for one live stream,
// swapping to the next backup on a health signal or a pre-prefill
// connect failure and collapsing back to the primary on a quality-upgrade
// retry. It never touches the HTTP response body itself; the caller
// splices C11 pipes end-to-end so the client sees one continuous stream.
package failover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamforge/tuner-gateway/internal/metrics"
	"github.com/streamforge/tuner-gateway/internal/remux"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/vault"
)

// The 5s stream-read dead-man timeout from spec §5 is enforced by
// healthmon's FailoverTriggerSec default, not duplicated here.
const (
	perBackupConnectTimeout = 1 * time.Second
	totalFailoverBudget     = 2 * time.Second
	maxBackupsPerWindow     = 2
	qualityUpgradeAfter     = 60 * time.Second
)

// FailureReason classifies why a candidate was abandoned.
type FailureReason string

const (
	ReasonConnectionTimeout FailureReason = "ConnectionTimeout"
	ReasonConnectionError   FailureReason = "ConnectionError"
	ReasonHTTP              FailureReason = "Http"
	ReasonStreamError       FailureReason = "StreamError"
)

// accountSkipped reports whether code is an account-level auth failure.
func accountSkipped(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// Controller tracks failover state for one active stream.
type Controller struct {
	db    *store.Store
	vault *vault.Vault

	epgChannelID int64
	candidates   []store.Candidate
	index        int
	lastFailover time.Time

	connectLimiter *rate.Limiter
}

// New builds a Controller for an EpgChannel from its ranked candidates.
// Returns an error if there are no active-account candidates to serve.
func New(db *store.Store, v *vault.Vault, epgChannelID int64) (*Controller, error) {
	candidates, err := db.CandidatesForChannel(epgChannelID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("failover: no candidates for channel %d", epgChannelID)
	}
	return &Controller{
		db:           db,
		vault:        v,
		epgChannelID: epgChannelID,
		candidates:   candidates,
		index:        0,
		connectLimiter: rate.NewLimiter(rate.Every(perBackupConnectTimeout), 1),
	}, nil
}

// Current returns the candidate currently being served.
func (c *Controller) Current() store.Candidate {
	return c.candidates[c.index]
}

func parseProviderStreamID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func (c *Controller) upstreamURL(cand store.Candidate) (string, error) {
	password, err := c.vault.Retrieve(cand.AccountID, cand.PasswordHandle)
	if err != nil {
		return "", err
	}
	providerStreamID, err := parseProviderStreamID(cand.ProviderStream)
	if err != nil {
		return "", err
	}
	return remux.UpstreamURL(cand.BaseURL, cand.Username, password, providerStreamID), nil
}

// StartCurrent spawns a remux pipe for the currently selected candidate.
func (c *Controller) StartCurrent(ctx context.Context, sessionID string) (*remux.Pipe, error) {
	cand := c.Current()
	u, err := c.upstreamURL(cand)
	if err != nil {
		return nil, err
	}
	connCtx, cancel := context.WithTimeout(ctx, perBackupConnectTimeout)
	defer cancel()
	_ = c.connectLimiter.Wait(connCtx)
	return remux.Start(ctx, u, remux.Options{SessionID: sessionID})
}

// Advance moves to the next candidate, skipping every remaining candidate
// from the same account when reason indicates an account-level failure.
// Returns false once every candidate has been exhausted.
func (c *Controller) Advance(reason FailureReason, httpStatus int) bool {
	skipAccount := int64(-1)
	if reason == ReasonHTTP && accountSkipped(httpStatus) {
		skipAccount = c.Current().AccountID
	}
	for i := c.index + 1; i < len(c.candidates); i++ {
		if skipAccount != -1 && c.candidates[i].AccountID == skipAccount {
			continue
		}
		c.index = i
		c.lastFailover = time.Now()
		return true
	}
	return false
}

// AtPrimary reports whether the controller is currently serving the
// highest-ranked candidate (index 0).
func (c *Controller) AtPrimary() bool {
	return c.index == 0
}

// ShouldAttemptQualityUpgrade reports whether enough time has passed on a
// backup to retry the primary candidate.
func (c *Controller) ShouldAttemptQualityUpgrade() bool {
	return !c.AtPrimary() && !c.lastFailover.IsZero() && time.Since(c.lastFailover) >= qualityUpgradeAfter
}

// CollapseToPrimary switches back to index 0 after a successful
// quality-upgrade retry and clears the last-failover timer.
func (c *Controller) CollapseToPrimary() {
	c.index = 0
	c.lastFailover = time.Time{}
}

// ResetUpgradeTimer restarts the quality-upgrade clock after a failed
// retry attempt, keeping the current backup selected.
func (c *Controller) ResetUpgradeTimer() {
	c.lastFailover = time.Now()
}

// AttemptQualityUpgrade tries reconnecting to the primary candidate while
// serving a backup, per the spec's 60s quality-upgrade retry policy.
// Success collapses back to primary and returns the replacement pipe to
// splice into the response; failure resets the retry clock and leaves
// the current backup selected. Returns ok=false without attempting
// anything when ShouldAttemptQualityUpgrade is false.
func (c *Controller) AttemptQualityUpgrade(ctx context.Context, sessionID string) (pipe *remux.Pipe, ok bool) {
	if !c.ShouldAttemptQualityUpgrade() {
		return nil, false
	}
	primary := c.candidates[0]
	u, err := c.upstreamURL(primary)
	if err != nil {
		c.ResetUpgradeTimer()
		return nil, false
	}
	connCtx, cancel := context.WithTimeout(ctx, perBackupConnectTimeout)
	defer cancel()
	_ = c.connectLimiter.Wait(connCtx)
	pipe, err = remux.Start(ctx, u, remux.Options{SessionID: sessionID})
	if err != nil {
		c.ResetUpgradeTimer()
		return nil, false
	}
	from := c.Current().ProviderStreamID
	c.CollapseToPrimary()
	c.logUpgrade(from, primary.ProviderStreamID)
	return pipe, true
}

// logUpgrade appends an info-level EventLog entry for a successful
// quality-upgrade collapse back to the primary candidate.
func (c *Controller) logUpgrade(from, to int64) {
	details := fmt.Sprintf(`{"channelId":%d,"from":%d,"to":%d,"ts":%q}`,
		c.epgChannelID, from, to, time.Now().UTC().Format(time.RFC3339))
	_ = c.db.LogEvent(store.EventLog{
		Timestamp: time.Now(),
		Level:     store.LevelInfo,
		Category:  store.CategoryStream,
		Message:   fmt.Sprintf("quality upgrade back to primary on channel %d", c.epgChannelID),
		Details:   details,
	})
}

// logSwap appends a warn-level EventLog entry for a successful failover.
func (c *Controller) logSwap(from, to int64, reason FailureReason) {
	metrics.FailoverSwapsTotal.WithLabelValues(string(reason)).Inc()
	details := fmt.Sprintf(`{"channelId":%d,"from":%d,"to":%d,"reason":%q,"ts":%q}`,
		c.epgChannelID, from, to, reason, time.Now().UTC().Format(time.RFC3339))
	_ = c.db.LogEvent(store.EventLog{
		Timestamp: time.Now(),
		Level:     store.LevelWarn,
		Category:  store.CategoryStream,
		Message:   fmt.Sprintf("failover swap on channel %d", c.epgChannelID),
		Details:   details,
	})
}

// logExhaustion appends an error-level EventLog entry once every
// candidate has been tried and failed.
func (c *Controller) logExhaustion(reason FailureReason) {
	metrics.FailoverExhaustedTotal.Inc()
	details := fmt.Sprintf(`{"channelId":%d,"from":%d,"reason":%q,"ts":%q}`,
		c.epgChannelID, c.Current().ProviderStreamID, reason, time.Now().UTC().Format(time.RFC3339))
	_ = c.db.LogEvent(store.EventLog{
		Timestamp: time.Now(),
		Level:     store.LevelError,
		Category:  store.CategoryStream,
		Message:   fmt.Sprintf("all streams failed for channel %d", c.epgChannelID),
		Details:   details,
	})
}

// HandleFailure advances the controller on a health-monitor or connect
// failure signal, logging the swap or exhaustion, and returns the new
// pipe to splice into the response body; the pipe runs under ctx. No
// further backup is tried once totalFailoverBudget has elapsed.
func (c *Controller) HandleFailure(ctx context.Context, sessionID string, reason FailureReason, httpStatus int) (*remux.Pipe, error) {
	before := c.Current().ProviderStreamID
	budgetCtx, cancel := context.WithTimeout(ctx, totalFailoverBudget)
	defer cancel()

	attempts := 0
	for attempts < maxBackupsPerWindow && budgetCtx.Err() == nil {
		if !c.Advance(reason, httpStatus) {
			c.logExhaustion(reason)
			return nil, errors.New("failover: all streams failed")
		}
		attempts++
		pipe, err := c.StartCurrent(ctx, sessionID)
		if err != nil {
			continue
		}
		c.logSwap(before, c.Current().ProviderStreamID, reason)
		return pipe, nil
	}
	c.logExhaustion(reason)
	return nil, errors.New("failover: all streams failed")
}
