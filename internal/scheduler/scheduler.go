// Package scheduler runs the daily EPG refresh trigger: a cron-style
// HH:MM fire time plus an on-demand "refresh now" channel, in the shape of
// the teacher's background worker (Config+setDefaults, buffered
// force-trigger channel, ticker/select loop).
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/streamforge/tuner-gateway/internal/store"
)

// Source is one EPG source the scheduler refreshes on each fire.
type Source interface {
	ID() string
	Refresh(ctx context.Context) error
}

// Config controls the refresh trigger loop.
type Config struct {
	// Hour, Minute: the daily fire time, validated 0<=Hour<=23, 0<=Minute<=59.
	Hour, Minute int
	// Enabled turns the automatic daily trigger on; when false only
	// ForceRefresh fires a refresh.
	Enabled bool
}

func (c *Config) setDefaults() {
	if c.Hour < 0 || c.Hour > 23 {
		c.Hour = 4
	}
	if c.Minute < 0 || c.Minute > 59 {
		c.Minute = 0
	}
}

// Validate reports whether hour/minute are in range.
func Validate(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("epg refresh hour must be 0-23, got %d", hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("epg refresh minute must be 0-59, got %d", minute)
	}
	return nil
}

// Scheduler fires Refresh on every configured Source once a day, or
// immediately on a ForceRefresh send.
type Scheduler struct {
	cfg Config
	db  *store.Store

	// ForceRefresh is a buffered (cap 1) channel; send to it to trigger an
	// immediate refresh ignoring the daily schedule. Created by New;
	// callers must not replace or close it.
	ForceRefresh chan struct{}
}

// New creates a Scheduler. db is used to stamp epg_last_scheduled_refresh
// after every fire, success or failure.
func New(cfg Config, db *store.Store) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{cfg: cfg, db: db, ForceRefresh: make(chan struct{}, 1)}
}

// TriggerNow sends a non-blocking force-refresh signal.
func (s *Scheduler) TriggerNow() {
	select {
	case s.ForceRefresh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing sources.Refresh on every
// Source at the configured daily time or whenever ForceRefresh is
// signaled. The timer is recomputed after every fire so a reconfigured
// time takes effect on the next wake without a restart.
func (s *Scheduler) Run(ctx context.Context, sources func() []Source) {
	log.Printf("scheduler: epg refresh worker started (hour=%d minute=%d enabled=%v)",
		s.cfg.Hour, s.cfg.Minute, s.cfg.Enabled)

	for {
		var timerC <-chan time.Time
		if s.cfg.Enabled {
			timer := time.NewTimer(time.Until(s.next()))
			timerC = timer.C
			defer timer.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-s.ForceRefresh:
			log.Print("scheduler: force refresh triggered")
			s.fireAll(ctx, sources())
		case <-timerC:
			log.Print("scheduler: daily refresh timer fired")
			s.fireAll(ctx, sources())
		}
	}
}

// next computes the next occurrence of the configured HH:MM, today if it
// hasn't passed yet, otherwise tomorrow.
func (s *Scheduler) next() time.Time {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) fireAll(ctx context.Context, sources []Source) {
	for _, src := range sources {
		if err := src.Refresh(ctx); err != nil {
			log.Printf("scheduler: refresh of source %q failed: %v", src.ID(), err)
			if s.db != nil {
				s.db.LogEvent(store.EventLog{
					Timestamp: time.Now(),
					Level:     store.LevelError,
					Category:  store.CategoryEPG,
					Message:   fmt.Sprintf("epg refresh failed for source %s", src.ID()),
					Details:   err.Error(),
				})
			}
		}
	}
	if s.db != nil {
		if err := s.db.SetSetting(store.SettingEPGLastScheduled, time.Now().UTC().Format(time.RFC3339)); err != nil {
			log.Printf("scheduler: failed to stamp epg_last_scheduled_refresh: %v", err)
		}
	}
}
