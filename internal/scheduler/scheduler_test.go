package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

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

type fakeSource struct {
	id      string
	calls   int32
	failing bool
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Refresh(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	if f.failing {
		return errors.New("fetch failed")
	}
	return nil
}

func TestConfig_setDefaults_invalidHourFallsBackToDefault(t *testing.T) {
	cfg := Config{Hour: 99, Minute: -1}
	cfg.setDefaults()
	if cfg.Hour != 4 || cfg.Minute != 0 {
		t.Fatalf("setDefaults = %+v, want Hour=4 Minute=0", cfg)
	}
}

func TestValidate_rejectsOutOfRange(t *testing.T) {
	if err := Validate(24, 0); err == nil {
		t.Error("expected error for hour=24")
	}
	if err := Validate(0, 60); err == nil {
		t.Error("expected error for minute=60")
	}
	if err := Validate(4, 30); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTriggerNow_firesSourcesAndStampsLastScheduled(t *testing.T) {
	db := newTestStore(t)
	src := &fakeSource{id: "one"}
	s := New(Config{Hour: 4, Minute: 0, Enabled: false}, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, func() []Source { return []Source{src} })
		close(done)
	}()

	s.TriggerNow()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&src.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forced refresh")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	v, err := db.GetSetting(store.SettingEPGLastScheduled)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v == "" {
		t.Error("expected epg_last_scheduled_refresh to be stamped")
	}
}

func TestTriggerNow_isNonBlockingWhenAlreadyPending(t *testing.T) {
	s := New(Config{Enabled: false}, nil)
	s.TriggerNow()
	s.TriggerNow() // must not block: channel is already full
}

func TestRun_continuesAfterPerSourceFailure(t *testing.T) {
	db := newTestStore(t)
	ok := &fakeSource{id: "ok"}
	bad := &fakeSource{id: "bad", failing: true}
	s := New(Config{Enabled: false}, db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func() []Source { return []Source{bad, ok} })
		close(done)
	}()

	s.TriggerNow()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&ok.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for refresh")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	events, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Category == store.CategoryEPG && e.Level == store.LevelError {
			found = true
		}
	}
	if !found {
		t.Error("expected an error event for the failing source")
	}
}

func TestNext_computesTodayOrTomorrow(t *testing.T) {
	s := New(Config{Hour: 4, Minute: 0, Enabled: true}, nil)
	n := s.next()
	now := time.Now()
	if !n.After(now) {
		t.Errorf("next() = %v, want a time after %v", n, now)
	}
	if n.Hour() != 4 || n.Minute() != 0 {
		t.Errorf("next() hour/minute = %d:%d, want 4:0", n.Hour(), n.Minute())
	}
}
