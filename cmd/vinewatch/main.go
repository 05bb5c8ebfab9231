// Command vinewatch monitors the Vine notification feed in a terminal grid.
//
// Several vinewatch processes may run against one Redis session; one of
// them is elected master and owns the live connection and notifications,
// the others mirror its feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/vinewatch/internal/catchup"
	"github.com/abelbrown/vinewatch/internal/config"
	"github.com/abelbrown/vinewatch/internal/items"
	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/layout"
	"github.com/abelbrown/vinewatch/internal/live"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/monitor"
	"github.com/abelbrown/vinewatch/internal/notify"
	"github.com/abelbrown/vinewatch/internal/otel"
	"github.com/abelbrown/vinewatch/internal/pipeline"
	"github.com/abelbrown/vinewatch/internal/store"
	"github.com/abelbrown/vinewatch/internal/tabs"
	"github.com/abelbrown/vinewatch/internal/trend"
	"github.com/abelbrown/vinewatch/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.vinewatch/config.json)")
	headless := flag.Bool("headless", false, "run without the terminal UI, logging to stderr")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "vinewatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if cfg.Identity.AnonymousID == "" {
		cfg.Identity.AnonymousID = uuid.NewString()
		if err := cfg.Save(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "vinewatch: could not save anonymous id: %v\n", err)
		}
	}

	if headless {
		logging.SetOutput(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	} else if err := logging.Init(cfg.LogDir(), logging.ParseLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	tabID := uuid.NewString()
	journalLevel, err := otel.ParseLevel(cfg.JournalLevel)
	if err != nil {
		journalLevel = otel.LevelDebug
	}
	journal, ring, closeJournal := openJournal(cfg.JournalPath(), otel.WithSession(tabID), otel.WithMinLevel(journalLevel))
	defer closeJournal()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	logging.Info("starting", "tab", tabID, "session", cfg.Session, "headless", headless)
	journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "main", Msg: tabID})
	defer journal.Info(otel.KindShutdown, "main", tabID)

	// Coordination: without Redis this process is master on its own.
	var (
		elector tabs.Elector
		relay   tabs.Relay
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		elector = tabs.NewRedisElector(rdb, cfg.Session, tabID, cfg.Redis.LeaseTTL.D())
		rr := tabs.NewRedisRelay(rdb, cfg.Session, tabID)
		defer rr.Close()
		relay = rr
	}
	coordinator := tabs.NewCoordinator(tabID, elector, journal)

	// Notifications go through the role gate, off the ingest path.
	gate := notify.NewGate(coordinator, buildNotifier(cfg, headless), notify.NewBellPlayer(bellOutput(cfg, headless)), journal)
	dispatcher := notify.NewDispatcher(gate, gate, cfg.Notify.Queue)

	book := keyword.NewBook()
	settings := newSettingsSync(st, book, cfg.Feed.Capacity)
	settings.Reload()

	pipe := pipeline.New(book,
		pipeline.WithSettings(settings.Settings),
		pipeline.WithIntents(dispatcher),
		pipeline.WithJournal(journal),
	)

	trends := trend.New(trend.DefaultK, trend.DefaultWindow, trend.DefaultTick)

	var renderer *ui.Renderer
	opts := []monitor.Option{
		monitor.WithTrends(trends),
		monitor.WithRoles(coordinator),
		monitor.WithJournal(journal),
		monitor.WithPersist(func(pi monitor.PersistIntent) {
			if err := st.Set(pi.Key, pi.Value); err != nil {
				logging.Warn("persist failed", "key", pi.Key, "error", err)
			}
		}),
	}
	if relay != nil {
		opts = append(opts, monitor.WithRelay(relay))
	}
	if v, err := loadView(st); err == nil {
		opts = append(opts, monitor.WithView(v))
	} else {
		logging.Warn("stored view unreadable", "error", err)
	}
	if s, err := st.Get(monitor.KeySort); err == nil {
		opts = append(opts, monitor.WithSort(layout.Sort(s)))
	}
	if !headless {
		renderer = ui.NewRenderer(cfg.Feed.TileWidth)
		defer renderer.Close()
		opts = append(opts, monitor.WithRenderer(renderer))
	}

	capacity := st.Int(store.KeyCapacity, cfg.Feed.Capacity)
	mon := monitor.New(pipe, items.New(capacity), opts...)
	settings.onRules = mon.Reapply
	settings.onCapacity = mon.SetCapacity

	var liveChannel monitor.LiveChannel
	if cfg.Live.URL != "" {
		identity := live.Identity{
			Country:     cfg.Identity.Country,
			AnonymousID: cfg.Identity.AnonymousID,
			DeviceID:    cfg.Identity.DeviceID,
			AppVersion:  cfg.Identity.AppVersion,
		}
		liveChannel = live.NewManager(
			&live.WSDialer{URL: cfg.Live.URL, Timeout: cfg.Live.DialTimeout.D()},
			mon.HandleLive,
			live.WithIdentity(func() live.Identity { return identity }),
			live.WithInterval(cfg.Live.ReconnectInterval.D()),
			live.WithJournal(journal),
		)
	} else {
		logging.Warn("no live url configured, relying on catch-up only")
	}

	var catchUp monitor.CatchUp
	if cfg.Catchup.URL != "" {
		source := catchup.NewHTTPSource(cfg.Catchup.URL, cfg.Identity.Country, cfg.Catchup.Timeout.D(), cfg.Catchup.MinGap.D())
		catchUp = catchup.NewRunner(source, mon.IngestBatch,
			catchup.WithLimit(cfg.Catchup.Limit),
			catchup.WithInterval(cfg.Catchup.Interval.D()),
			catchup.WithTimeout(cfg.Catchup.Timeout.D()),
			catchup.WithJournal(journal),
		)
	}
	mon.Attach(liveChannel, catchUp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		st.Watch(gctx, store.DefaultWatchInterval, func(rev int64) { settings.Reload() })
		return nil
	})
	g.Go(func() error {
		coordinator.Start(gctx)
		coordinator.Wait()
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr) })
	}

	if headless {
		<-gctx.Done()
	} else {
		program := tea.NewProgram(ui.NewApp(mon, renderer, ring).WithTrends(trends), tea.WithAltScreen())
		g.Go(func() error {
			<-gctx.Done()
			program.Quit()
			return nil
		})
		if _, err := program.Run(); err != nil {
			logging.Error("ui stopped", "error", err)
		}
	}

	stop()
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openJournal opens the JSONL status journal with an in-memory ring for the
// debug pane. A journal that cannot be opened is replaced by a discarding one.
func openJournal(path string, opts ...otel.Option) (*otel.Logger, *otel.RingBuffer, func()) {
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	var w io.Writer = io.Discard
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Warn("event journal disabled", "path", path, "error", err)
	} else {
		w = f
	}
	journal := otel.NewLogger(w, opts...)
	journal.SetRingBuffer(ring)
	return journal, ring, func() {
		journal.Close()
		if f != nil {
			f.Close()
		}
	}
}

func buildNotifier(cfg *config.Config, headless bool) notify.Notifier {
	var ns notify.Multi
	if cfg.Notify.Terminal && headless {
		ns = append(ns, notify.NewTerminalNotifier(os.Stdout))
	}
	email := notify.EmailConfig{
		Host: cfg.Notify.Email.Host,
		Port: cfg.Notify.Email.Port,
		User: cfg.Notify.Email.User,
		Pass: cfg.Notify.Email.Pass,
		From: cfg.Notify.Email.From,
		To:   cfg.Notify.Email.To,
	}
	if email.Enabled() {
		ns = append(ns, notify.NewEmailNotifier(email))
	}
	return ns
}

// bellOutput is stdout when headless. Under the UI the bell goes to stderr
// so it does not interleave with frame writes.
func bellOutput(cfg *config.Config, headless bool) io.Writer {
	switch {
	case !cfg.Notify.Bell:
		return io.Discard
	case headless:
		return os.Stdout
	default:
		return os.Stderr
	}
}

func loadView(st *store.Store) (monitor.View, error) {
	raw, err := st.Get(monitor.KeyView)
	if errors.Is(err, store.ErrNotFound) {
		return monitor.View{}, nil
	}
	if err != nil {
		return monitor.View{}, err
	}
	return monitor.ParseView(raw)
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
