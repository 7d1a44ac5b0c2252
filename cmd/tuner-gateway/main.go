// Command tuner-gateway runs the StreamForge gateway: it owns the Catalog
// Store, reconciles Xtream/XMLTV sources on a daily schedule, matches
// streams to EPG channels, and serves the HDHomeRun/Plex-facing HTTP
// surface (playlist, guide, discovery, live stream proxy).
//
// All runtime configuration lives in the Settings table (see
// internal/store); only the pre-database bootstrap values
// (internal/config) and the optional ffmpeg path override
// (internal/remux) are read from the environment, which a .env file in
// the working directory can seed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/streamforge/tuner-gateway/internal/appdir"
	"github.com/streamforge/tuner-gateway/internal/config"
	"github.com/streamforge/tuner-gateway/internal/epgsources"
	"github.com/streamforge/tuner-gateway/internal/httpapi"
	"github.com/streamforge/tuner-gateway/internal/scheduler"
	"github.com/streamforge/tuner-gateway/internal/session"
	"github.com/streamforge/tuner-gateway/internal/store"
	"github.com/streamforge/tuner-gateway/internal/synth"
	"github.com/streamforge/tuner-gateway/internal/vault"
)

const version = "1.0.0"

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tuner-gateway runs the StreamForge IPTV-to-Plex gateway.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tuner-gateway [--version]\n\n")
		fmt.Fprintf(os.Stderr, "All runtime settings are configured through the gateway's Settings\n")
		fmt.Fprintf(os.Stderr, "table. These values are read from the environment (a .env file in the\n")
		fmt.Fprintf(os.Stderr, "working directory is loaded first):\n")
		fmt.Fprintf(os.Stderr, "  STREAMFORGE_DATA_DIR  app data directory (default ~/.local/share/streamforge-gateway)\n")
		fmt.Fprintf(os.Stderr, "  STREAMFORGE_DB_PATH   sqlite catalog path (default {dataDir}/catalog.db)\n")
		fmt.Fprintf(os.Stderr, "  STREAMFORGE_TEST_MODE enable the /test/seed endpoint (default off)\n")
		fmt.Fprintf(os.Stderr, "  STREAMFORGE_FFMPEG_PATH ffmpeg binary (default: ffmpeg on PATH)\n")
	}
	flag.Parse()

	if *versionFlag {
		fmt.Println("tuner-gateway " + version)
		return
	}

	if err := run(); err != nil {
		log.Fatalf("tuner-gateway: %v", err)
	}
}

func run() error {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("tuner-gateway: .env: %v", err)
	}
	cfg := config.Load()

	dir, err := appdir.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("app data dir: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer db.Close()

	v, err := vault.New(dir)
	if err != nil {
		return fmt.Errorf("open credential vault: %w", err)
	}

	gen := &synth.Generation{}
	xmltvCache := synth.NewXMLTVCache(gen)

	tuners, err := synth.TunerCount(db)
	if err != nil {
		return fmt.Errorf("compute tuner count: %w", err)
	}
	sessions := session.NewManager(tuners)

	port, err := db.ServerPort()
	if err != nil {
		return fmt.Errorf("read server_port setting: %w", err)
	}
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	hostname, _ := os.Hostname()

	srv := &httpapi.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		BaseURL:      baseURL,
		DeviceID:     synth.DeviceID(hostname),
		FriendlyName: "StreamForge Gateway",
		TestMode:     cfg.TestMode,
		DB:           db,
		Vault:        v,
		Sessions:     sessions,
		XMLTV:        xmltvCache,
	}

	hour, _ := db.GetSetting(store.SettingEPGRefreshHour)
	minute, _ := db.GetSetting(store.SettingEPGRefreshMinute)
	enabled, _ := db.GetSetting(store.SettingEPGRefreshEnabled)
	sched := scheduler.New(scheduler.Config{
		Hour:    atoiOr(hour, 4),
		Minute:  atoiOr(minute, 0),
		Enabled: enabled != "0",
	}, db)

	sourcesFn := func() []scheduler.Source {
		var sources []scheduler.Source

		accounts, err := db.ActiveAccounts()
		if err != nil {
			log.Printf("tuner-gateway: list active accounts: %v", err)
		}
		for _, acc := range accounts {
			sources = append(sources, epgsources.NewAccountSource(db, v, acc, gen))
		}

		urls, err := db.EPGXMLTVSources()
		if err != nil {
			log.Printf("tuner-gateway: read epg_xmltv_sources: %v", err)
		}
		for _, u := range urls {
			sources = append(sources, epgsources.NewXMLTVSource(db, gen, u))
		}

		sources = append(sources, epgsources.NewRematchSource(db, gen))
		sources = append(sources, tunerCountSource{db: db, sessions: sessions})
		return sources
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("tuner-gateway: shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	var httpErr error
	go func() {
		defer wg.Done()
		httpErr = srv.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx, sourcesFn)
	}()

	wg.Wait()
	return httpErr
}

// tunerCountSource keeps the session manager's concurrency cap in step
// with the active accounts' advertised/observed connection limits; it
// always runs last in a fire so it sees any accounts an earlier source's
// reconcile just touched.
type tunerCountSource struct {
	db       *store.Store
	sessions *session.Manager
}

func (t tunerCountSource) ID() string { return "tuner_count" }

func (t tunerCountSource) Refresh(ctx context.Context) error {
	n, err := synth.TunerCount(t.db)
	if err != nil {
		return err
	}
	t.sessions.SetMax(n)
	return nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
