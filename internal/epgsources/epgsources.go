// Package epgsources adapts the two catalog feeds the scheduler (C8) drives
// on its daily/on-demand fire into scheduler.Source: one per active
// account (Xtream live-stream scan → reconciler), and one per configured
// external XMLTV feed URL (fetch/parse → store.RefreshSource). A final
// rematch pass runs after every fire regardless of which sources changed,
// since a reconcile can surface streams an XMLTV refresh's new channels
// would now match, and vice versa.
package epgsources

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/streamforge/tuner-gateway/internal/httpclient"
	"github.com/streamforge/tuner-gateway/internal/matcher"
	"github.com/streamforge/tuner-gateway/internal/metrics"
	"github.com/streamforge/tuner-gateway/internal/quality"
	"github.com/streamforge/tuner-gateway/internal/reconciler"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/synth"
	"github.com/streamforge/tuner-gateway/internal/vault"
	"github.com/streamforge/tuner-gateway/internal/xmltvsrc"
	"github.com/streamforge/tuner-gateway/internal/xtream"
)

// accountSource reconciles one account's live Xtream catalog.
type accountSource struct {
	db      *store.Store
	vault   *vault.Vault
	account store.Account
	gen     *synth.Generation
}

// NewAccountSource returns a scheduler.Source that fetches acc's live
// streams and reconciles them against the stored catalog.
func NewAccountSource(db *store.Store, v *vault.Vault, acc store.Account, gen *synth.Generation) *accountSource {
	return &accountSource{db: db, vault: v, account: acc, gen: gen}
}

func (a *accountSource) ID() string { return fmt.Sprintf("account:%d", a.account.ID) }

func (a *accountSource) Refresh(ctx context.Context) error {
	password, err := a.vault.Retrieve(a.account.ID, a.account.PasswordHandle)
	if err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("credential_error").Inc()
		return err
	}

	client := xtream.New(a.account.BaseURL, a.account.Username, password, 2)

	info, authErr := client.Authenticate(ctx)
	a.account.LastCheck = time.Now()
	if authErr != nil {
		a.account.Liveness = "down"
		_ = a.db.UpdateAccount(a.account)
		metrics.EpgRefreshesTotal.WithLabelValues("auth_error").Inc()
		return authErr
	}
	a.account.Liveness = "up"
	if n := info.MaxConnections.Int(); n > 0 {
		a.account.ObservedMaxConns = n
	}
	if err := a.db.UpdateAccount(a.account); err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("write_error").Inc()
		return err
	}

	streams, err := client.GetLiveStreams(ctx)
	if err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("fetch_error").Inc()
		return err
	}

	current := make([]store.ProviderStream, 0, len(streams))
	for _, s := range streams {
		tiers := quality.Classify(s.Name)
		qualities := make([]string, len(tiers))
		for i, t := range tiers {
			qualities[i] = string(t)
		}
		current = append(current, store.ProviderStream{
			AccountID:        a.account.ID,
			ProviderStreamID: s.StreamID.String(),
			DisplayName:      s.Name,
			IconURL:          s.StreamIcon,
			CategoryID:       s.CategoryID.String(),
			EPGHintID:        s.EPGChannelID,
			Qualities:        qualities,
			Archive:          s.TVArchive.Int() != 0,
			ArchiveDepth:     s.TVArchiveDuration.Int(),
		})
	}

	threshold, err := a.db.MatchThreshold()
	if err != nil {
		threshold = store.DefaultMatchThreshold
	}
	result, err := reconciler.Run(a.db, a.account.ID, current, reconciler.Config{Threshold: threshold})
	if err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("reconcile_error").Inc()
		return err
	}

	a.gen.Bump()
	metrics.EpgRefreshesTotal.WithLabelValues("ok").Inc()
	log.Printf("epgsources: account %d reconciled: new_matches=%d removed=%d updated=%d",
		a.account.ID, result.NewMatches, result.MappingsRemoved, result.MappingsUpdated)
	return nil
}

// xmltvSource fetches and parses one external XMLTV feed.
type xmltvSource struct {
	db  *store.Store
	gen *synth.Generation
	url string
}

// NewXMLTVSource returns a scheduler.Source that refreshes one configured
// XMLTV feed URL; the URL itself is the epg_channels.source_id.
func NewXMLTVSource(db *store.Store, gen *synth.Generation, sourceURL string) *xmltvSource {
	return &xmltvSource{db: db, gen: gen, url: sourceURL}
}

func (x *xmltvSource) ID() string { return x.url }

func (x *xmltvSource) Refresh(ctx context.Context) error {
	body, err := xmltvsrc.Fetch(ctx, httpclient.Default(), x.url)
	if err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("fetch_error").Inc()
		return err
	}
	defer body.Close()

	channels, programmes, err := xmltvsrc.Parse(body)
	if err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("parse_error").Inc()
		return err
	}

	freshChannels := make([]store.EpgChannel, 0, len(channels))
	programsByChannel := make(map[string][]store.Program, len(channels))
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		freshChannels = append(freshChannels, store.EpgChannel{
			SourceID:    x.url,
			StableID:    c.ID,
			DisplayName: c.DisplayName,
			IconURL:     c.IconURL,
		})
	}
	for _, p := range programmes {
		programsByChannel[p.ChannelID] = append(programsByChannel[p.ChannelID], store.Program{
			Title:       p.Title,
			Description: p.Description,
			Category:    p.Category,
			EpisodeTag:  p.EpisodeTag,
			Start:       p.Start,
			End:         p.End,
		})
	}

	freshPrograms := make([][]store.Program, len(freshChannels))
	for i, c := range freshChannels {
		freshPrograms[i] = programsByChannel[c.StableID]
	}

	if err := x.db.RefreshSource(x.url, freshChannels, freshPrograms); err != nil {
		metrics.EpgRefreshesTotal.WithLabelValues("write_error").Inc()
		return err
	}

	x.gen.Bump()
	metrics.EpgRefreshesTotal.WithLabelValues("ok").Inc()
	log.Printf("epgsources: xmltv source refreshed: channels=%d programmes=%d", len(freshChannels), len(programmes))
	return nil
}

// rematchSource runs the matcher over the full catalog. It appears after
// every account and XMLTV source in the scheduler's source list for one
// fire so every refresh above it has already committed.
type rematchSource struct {
	db  *store.Store
	gen *synth.Generation
}

// NewRematchSource returns a scheduler.Source that reruns the full
// channel/stream matcher.
func NewRematchSource(db *store.Store, gen *synth.Generation) *rematchSource {
	return &rematchSource{db: db, gen: gen}
}

func (r *rematchSource) ID() string { return "rematch" }

func (r *rematchSource) Refresh(ctx context.Context) error {
	threshold, err := r.db.MatchThreshold()
	if err != nil {
		threshold = store.DefaultMatchThreshold
	}
	result, err := matcher.Run(r.db, matcher.Config{Threshold: threshold})
	if err != nil {
		return err
	}
	r.gen.Bump()
	log.Printf("epgsources: rematch complete: matched=%d unmatched=%d new=%d took=%dms",
		result.Matched, result.Unmatched, result.NewMatches, result.WallClockMs)
	return nil
}
