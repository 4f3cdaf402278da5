// Command corestore runs the content-repository storage engine: the
// DocumentEngine/SegmentEngine pair described across the component design,
// fronted by a NodeStore facade and its background split/GC workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/contentgraph/corestore/document"
	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/internal/config"
	"github.com/contentgraph/corestore/internal/rlog"
	"github.com/contentgraph/corestore/nodestore"
	"github.com/contentgraph/corestore/revision"
	"github.com/contentgraph/corestore/segment"
)

// defaultWorkspace is the single SegmentEngine workspace this process
// serves until the transport layer exposes per-caller workspace selection.
const defaultWorkspace = "default"

var configPathFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML config file",
	Value: "corestore.toml",
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		rlog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		rlog.Warn("corestore: GOMAXPROCS autodetect failed", "error", err)
	}

	app := &cli.App{
		Name:  "corestore",
		Usage: "content-repository storage engine",
		Flags: []cli.Flag{configPathFlag},
		Commands: []*cli.Command{
			serveCommand,
			checkpointCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		rlog.Crit("corestore: " + err.Error())
	}
}

// everyMapEntryIsCommitted is the split worker's commit classifier in the
// single-writer, single-cluster default configuration: every value this
// process has ever written to a document went through Commit, so a
// dedicated uncommitted-marker scan would revisit work Commit already did.
// A deployment accepting unmerged-branch writes on the same documents
// should replace this with a closure that consults the _revisions marker
// directly, same as document.Resolver.classify does.
func everyMapEntryIsCommitted(string, revision.Revision) bool { return true }

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String(configPathFlag.Name)
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

// lockDataDir takes an exclusive advisory lock on <dataDir>/LOCK so two
// corestore processes never open the same on-disk stores concurrently.
func lockDataDir(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("corestore: create data dir: %w", err)
	}
	lock := flock.New(dataDir + "/LOCK")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("corestore: lock data dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("corestore: data dir %q is already locked by another process", dataDir)
	}
	return lock, nil
}

// openSegmentEngine wires up the SegmentEngine commit path's pieces: a
// disk-backed segment Store, the pebble-backed Journal tracking each
// workspace's CAS head, a shared Cache in front of both, and the
// SegmentStore/GC built on top. The returned *segment.FileStore and
// *segment.Journal are the caller's to Close; segEngine.Reopen has already
// been called so it reflects whatever was last published before this
// process started.
func openSegmentEngine(cfg *config.Config) (*segment.FileStore, *segment.Journal, *segment.GC, *nodestore.SegmentStore, error) {
	fileStore, err := segment.NewFileStore(cfg.DataDir + "/segments")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open segment store: %w", err)
	}

	journal, err := segment.OpenJournal(cfg.DataDir + "/segment-journal")
	if err != nil {
		fileStore.Close()
		return nil, nil, nil, nil, fmt.Errorf("open segment journal: %w", err)
	}

	factory := segment.NewFactory()
	cache := segment.NewCache(fileStore, factory, cfg.SegmentCacheBytes)
	writer := segment.NewWriter(factory, fileStore)
	gc := segment.NewGC(factory, fileStore, cache)

	engine := nodestore.NewSegmentStore(writer, journal, cache, defaultWorkspace)
	if err := engine.Reopen(); err != nil {
		journal.Close()
		fileStore.Close()
		return nil, nil, nil, nil, fmt.Errorf("reopen segment store: %w", err)
	}

	return fileStore, journal, gc, engine, nil
}

// runSegmentGC sweeps the SegmentEngine's store on interval until ctx is
// canceled. It runs with an empty pin set: the SegmentEngine keeps only
// one live generation per workspace (no checkpoint retains older ones yet),
// so every segment not reachable from the current journal head is already
// safe to reclaim.
func runSegmentGC(ctx context.Context, gc *segment.GC, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := gc.Sweep(nil)
			if err != nil {
				rlog.Warn("corestore: segment gc sweep failed", "error", err)
				continue
			}
			if stats.Swept > 0 {
				rlog.Info("corestore: segment gc swept", "count", stats.Swept, "bytes", stats.Bytes)
			}
		}
	}
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the storage engine's background workers until interrupted",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		level, err := rlog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		rlog.SetDefault(rlog.New(os.Stderr, level))

		lock, err := lockDataDir(cfg.DataDir)
		if err != nil {
			return err
		}
		defer lock.Unlock()

		docs, err := document.OpenPebbleStore(cfg.DataDir + "/documents")
		if err != nil {
			return fmt.Errorf("corestore: open document store: %w", err)
		}
		defer docs.Close()

		gen := revision.NewGenerator(cfg.ClusterID, clock.System{})
		cmp := revision.NewComparator(cfg.ClusterID)
		store := nodestore.NewStore(docs, gen, cmp, cfg.ClusterID)

		interval := time.Duration(cfg.GCIntervalSeconds) * time.Second
		splitWorker := document.NewSplitWorker(docs, cfg.ClusterID, interval,
			cfg.RevisionsSplitOffSize, cfg.ForceSplitThresholdBytes, everyMapEntryIsCommitted)

		segFileStore, segJournal, segGC, segEngine, err := openSegmentEngine(cfg)
		if err != nil {
			return fmt.Errorf("corestore: open segment engine: %w", err)
		}
		defer segJournal.Close()
		defer segFileStore.Close()

		runCtx, cancel := context.WithCancel(context.Background())
		go splitWorker.Run(runCtx)
		go runSegmentGC(runCtx, segGC, interval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		rlog.Info("corestore: serving", "data_dir", cfg.DataDir, "cluster_id", cfg.ClusterID)
		_ = store.GetRoot()        // ready to accept readers/writers once wired to a transport
		_, _, _ = segEngine.Head() // ready to accept readers/writers once wired to a transport
		<-sigCh
		cancel()
		rlog.Info("corestore: shutting down")
		return nil
	},
}

var checkpointCommand = &cli.Command{
	Name:  "checkpoint",
	Usage: "checkpoint inspection utilities",
	Subcommands: []*cli.Command{
		{
			Name:  "ttl",
			Usage: "print the lifetime (seconds) a checkpoint created now would carry before expiring",
			Flags: []cli.Flag{
				&cli.DurationFlag{Name: "lifetime", Value: 5 * time.Minute},
			},
			Action: func(ctx *cli.Context) error {
				fmt.Println(ctx.Duration("lifetime").Seconds())
				return nil
			},
		},
	},
}
