// Command sitesync-demo runs a sync manager against a simulated authority
// over a flaky connection, persisting its state in SQLite or PostgreSQL and
// exposing Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/metrics/prometheus"
	"github.com/c0deZ3R0/sitesync/storage/postgres"
	"github.com/c0deZ3R0/sitesync/storage/sqlite"
	"github.com/c0deZ3R0/sitesync/synckit"
	"github.com/c0deZ3R0/sitesync/transport/httpremote"
)

// Site is the domain entity edited by the demo.
type Site struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ValidationFailure is the error payload the authority attaches to rejections.
type ValidationFailure struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// authority is an in-process stand-in for the remote server, served over
// HTTP on a loopback listener.
type authority struct {
	mu         sync.Mutex
	sites      map[string]Site
	rejectRate float64
	latency    time.Duration
}

func (a *authority) Put(ctx context.Context, id string, value Site) (Site, error) {
	select {
	case <-ctx.Done():
		return Site{}, ctx.Err()
	case <-time.After(a.latency):
	}

	if value.Name == "" || rand.Float64() < a.rejectRate {
		return Site{}, &synckit.Rejection[ValidationFailure]{
			Payload: ValidationFailure{Field: "name", Message: "rejected by authority"},
			Err:     errors.New("validation failed"),
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sites[id] = value
	return value, nil
}

func (a *authority) All(ctx context.Context) (map[string]Site, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.latency):
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]Site, len(a.sites))
	for id, s := range a.sites {
		out[id] = s
	}
	return out, nil
}

// flakyNetwork toggles between online and offline.
type flakyNetwork struct {
	offline atomic.Bool
}

func (n *flakyNetwork) Offline() bool    { return n.offline.Load() }
func (n *flakyNetwork) Foreground() bool { return true }

type session struct{}

func (session) LoggedIn() bool { return true }

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML or JSON sync config")
		dbPath      = flag.String("db", "sitesync.db", "SQLite database file")
		databaseURL = flag.String("postgres", os.Getenv("DATABASE_URL"), "PostgreSQL connection string; overrides -db")
		metricsAddr = flag.String("metrics", ":9090", "address of the Prometheus metrics endpoint")
		duration    = flag.Duration("duration", 30*time.Second, "how long to run")
	)
	flag.Parse()

	logConfig, err := logging.GetConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logConfig)

	if err := run(*configPath, *dbPath, *databaseURL, *metricsAddr, *duration); err != nil {
		logging.Default().LogError(context.Background(), err, "Demo failed")
		os.Exit(1)
	}
}

func run(configPath, dbPath, databaseURL, metricsAddr string, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	logger := logging.WithComponent(logging.Component("demo"))

	config, err := synckit.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var kv synckit.KV
	if databaseURL != "" {
		pg, err := postgres.New(ctx, postgres.DefaultConfig(databaseURL))
		if err != nil {
			return err
		}
		go func() {
			err := pg.Watch(ctx, postgres.WatchOptions{}, func(key string) {
				logger.Debug("Sync state saved", slog.String("key", key))
			})
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("KV watch stopped", slog.String("error", err.Error()))
			}
		}()
		kv = pg
	} else {
		kv, err = sqlite.NewWithDataSource(dbPath)
		if err != nil {
			return err
		}
	}

	collector := prometheus.NewCollector("sitesync")
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector)
	server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	defer server.Close()

	remoteURL, err := serveAuthority(ctx, logger.Logger, &authority{
		sites:      make(map[string]Site),
		rejectRate: 0.1,
		latency:    50 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	remote := httpremote.NewClient[Site, ValidationFailure](remoteURL, nil, logger.Logger)

	manager, err := synckit.NewManager[Site, ValidationFailure](remote,
		synckit.WithConfig(config),
		synckit.WithLogger(logger.Logger),
		synckit.WithMetrics(collector),
		synckit.WithKV(kv),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	if _, err := manager.Load(ctx); err != nil {
		return err
	}
	_ = manager.Subscribe(func(e synckit.SyncEvent) {
		switch {
		case e.Push != nil && e.Push.Attempted > 0:
			logger.Info("Push cycle finished",
				slog.String("cycle_id", e.Push.CycleID),
				slog.Int("synced", len(e.Push.Synced)),
				slog.Int("failed", len(e.Push.Failed)),
				slog.Int("stale", len(e.Push.Stale)))
		case e.Pull != nil:
			logger.Info("Pull finished",
				slog.Int("received", e.Pull.Received),
				slog.Int("retained", len(e.Pull.Retained)))
		}
	})

	network := &flakyNetwork{}
	if err := manager.Start(ctx, network, session{}); err != nil {
		return err
	}

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	edits := time.NewTicker(300 * time.Millisecond)
	defer edits.Stop()
	flaps := time.NewTicker(5 * time.Second)
	defer flaps.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			snap := manager.Snapshot()
			logger.Info("Demo finished",
				slog.Int("entities", len(snap.Records())),
				slog.Int("unsynced", len(snap.UnsyncedIDs())),
				slog.Int("errors", len(snap.ErrorIDs())))
			manager.Stop()
			return nil
		case <-flaps.C:
			offline := !network.offline.Load()
			network.offline.Store(offline)
			logger.Info("Connectivity changed", slog.Bool("offline", offline))
		case <-edits.C:
			id := ids[rand.Intn(len(ids))]
			site := Site{Name: fmt.Sprintf("Site %d", n), Address: fmt.Sprintf("%d Main St", n)}
			if err := manager.Edit(ctx, id, site); err != nil && !syncErrors.IsKind(err, syncErrors.KindClosed) {
				logger.LogError(ctx, err, "Failed to persist edit", slog.String("entity_id", id))
			}
		}
	}
}

// serveAuthority serves the authority a on a loopback port until ctx ends and
// returns its base URL.
func serveAuthority(ctx context.Context, logger *slog.Logger, a *authority) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:           httpremote.NewHandler[Site, ValidationFailure](a, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Authority server stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	return "http://" + listener.Addr().String(), nil
}
