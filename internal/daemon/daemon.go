package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/trane-project/trane/internal/api"
	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/infra/manifest"
	"github.com/trane-project/trane/internal/infra/observability"
	"github.com/trane-project/trane/internal/infra/sqlitestore"
	"github.com/trane-project/trane/internal/propagate"
	"github.com/trane-project/trane/internal/scheduler"
	"github.com/trane-project/trane/internal/unitcache"
)

// Daemon owns every long-lived collaborator: storage, the graph, the
// cache, the propagator, the scheduler, and the HTTP server.
type Daemon struct {
	cfg     Config
	db      *sqlitestore.DB
	graph   *graph.Graph
	sched   *scheduler.Scheduler
	cache   *unitcache.Cache
	rewards domain.RewardLog
	server  *api.Server
}

// Graph returns the loaded unit dependency graph.
func (d *Daemon) Graph() *graph.Graph { return d.graph }

// Scheduler returns the wired scheduler instance.
func (d *Daemon) Scheduler() *scheduler.Scheduler { return d.sched }

// Cache returns the wired unit-score cache.
func (d *Daemon) Cache() *unitcache.Cache { return d.cache }

// Rewards returns the wired reward log, for recording direct (non-trial)
// reward events.
func (d *Daemon) Rewards() domain.RewardLog { return d.rewards }

// ResolveHandles interns-looks-up each dotted unit ID, erroring on the
// first one not present in the graph.
func (d *Daemon) ResolveHandles(ids []string) ([]domain.UnitHandle, error) {
	out := make([]domain.UnitHandle, 0, len(ids))
	for _, id := range ids {
		h, ok := d.graph.Interner().Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown unit %q", id)
		}
		out = append(out, h)
	}
	return out, nil
}

// Open loads libraryPath into a graph, opens storage under cfg.Storage.DataDir,
// and wires the scheduler and API server. The caller must call Close when done.
func Open(cfg Config, libraryPath string) (*Daemon, error) {
	g, warnings, err := graph.LoadFile(libraryPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load library: %w", err)
	}
	for _, w := range warnings {
		log.Printf("trane: %s", w)
	}

	dbPath := filepath.Join(cfg.Storage.DataDir, "trane.db")
	db, err := sqlitestore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open storage: %w", err)
	}

	trials := sqlitestore.NewTrialLog(db)
	rewards := sqlitestore.NewRewardLog(db)
	blacklist := sqlitestore.NewBlacklist(db)

	manifests := manifest.New(cfg.Storage.DataDir, db)
	if err := manifests.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: init manifest store: %w", err)
	}

	cache := unitcache.New(unitcache.Config{Graph: g, Trials: trials, Rewards: rewards})
	prop := propagate.New(propagate.Config{
		Graph:   g,
		Cache:   cache,
		Rewards: rewards,
		Depth:   cfg.Scheduler.PropagationDepth,
	})

	passingVersion, err := cfg.Scheduler.passingVersion()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: %w", err)
	}

	opts := scheduler.DefaultOptions()
	opts.BatchSize = cfg.Scheduler.BatchSize
	opts.CandidateMultiple = cfg.Scheduler.CandidateMultiple
	opts.SupersedingScore = cfg.Scheduler.SupersedingScore
	opts.PropagationDepth = cfg.Scheduler.PropagationDepth
	opts.PassingVersion = passingVersion
	opts.Seed = cfg.Scheduler.Seed

	sched, err := scheduler.New(scheduler.Config{
		Graph:      g,
		Cache:      cache,
		Trials:     trials,
		Propagator: prop,
		Blacklist:  blacklist,
		Manifests:  manifests,
		Options:    opts,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: construct scheduler: %w", err)
	}

	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	server := api.NewServer(api.Config{
		Graph:      g,
		Scheduler:  sched,
		Cache:      cache,
		Propagator: prop,
		Trials:     trials,
		Rewards:    rewards,
		Tracer:     tracer,
	})
	if cfg.API.MetricsEnabled {
		server.EnableMetrics()
	}

	return &Daemon{cfg: cfg, db: db, graph: g, sched: sched, cache: cache, rewards: rewards, server: server}, nil
}

// Close releases storage.
func (d *Daemon) Close() error { return d.db.Close() }

// ListenAndServe starts the HTTP API and blocks until ctx is cancelled or
// the server returns an error.
func (d *Daemon) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	srv := &http.Server{Addr: addr, Handler: d.server.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
