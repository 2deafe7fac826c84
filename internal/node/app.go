package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/Borislavv/segment-registry/internal/node/server"
	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/k8s/probe/liveness"
	"github.com/Borislavv/segment-registry/pkg/loader"
	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/Borislavv/segment-registry/pkg/reclaim"
	"github.com/Borislavv/segment-registry/pkg/retry"
	"github.com/Borislavv/segment-registry/pkg/shutdown"
	"github.com/Borislavv/segment-registry/pkg/storage"
	"github.com/Borislavv/segment-registry/pkg/storage/table"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// App defines the node application lifecycle interface.
type App interface {
	Start(gc shutdown.Gracefuller)
	IsAlive(ctx context.Context) bool
}

// Node owns the table registries, the segment loader and the admin HTTP server.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	probe  liveness.Prober
	loader *loader.Loader
	tables *storage.Tables
	queue  *reclaim.Queue // nil in inline reclaim mode
	server server.Http
}

// NewApp wires meter, reclaim strategy, loader, one started registry per configured table and the server.
func NewApp(ctx context.Context, cfg *config.Config, probe liveness.Prober) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	meter, err := metrics.New()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init meter: %w", err)
	}

	node := &Node{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		probe:  probe,
		loader: loader.New(cfg.Node.Loader, retry.NewExponential(cfg.Node.Loader.Retry), meter),
		tables: storage.NewTables(),
	}

	var strategy reclaim.Strategy = reclaim.Inline{}
	if cfg.IsBackgroundReclaim() {
		if node.queue, err = reclaim.NewQueue(ctx, meter, cfg.Node.Reclaim.Workers, cfg.Node.Reclaim.Capacity); err != nil {
			cancel()
			return nil, fmt.Errorf("init reclaim queue: %w", err)
		}
		strategy = node.queue
	}

	for _, tableCfg := range cfg.Node.Tables {
		reg := table.NewRegistry(
			table.WithStrategy(strategy),
			table.WithMeter(meter),
			table.WithPreallocate(cfg.Node.Preallocate.PerShard),
			table.WithStatsLogger(ctx, cfg.Node.Logs.StatsInterval),
		)
		if err = reg.Init(tableCfg); err == nil {
			err = reg.Start()
		}
		if err == nil {
			err = node.tables.Register(reg)
		}
		if err != nil {
			node.abort()
			return nil, fmt.Errorf("init table %s: %w", tableCfg.Name, err)
		}
	}

	if node.server, err = server.New(ctx, cfg, node.tables, node.loader, probe, meter); err != nil {
		node.abort()
		return nil, err
	}

	return node, nil
}

// Start bootstraps the tables from their data directories, serves the admin API
// and blocks until the context is done. Done is called on gc once everything is released.
func (n *Node) Start(gc shutdown.Gracefuller) {
	defer func() {
		n.stop()
		gc.Done()
	}()

	log.Info().Msg("[app] starting node")

	for _, tableCfg := range n.cfg.Node.Tables {
		if err := n.bootstrap(tableCfg); err != nil {
			log.Error().Err(err).Str("table", tableCfg.Name).Msg("[app] table bootstrap incomplete")
		}
	}

	waitCh := make(chan struct{})
	go func() {
		defer close(waitCh)
		n.probe.Watch(n) // Call first due to it does not block the green-thread
		n.server.Start() // Blocks the green-thread until the server will be stopped
	}()

	log.Info().Msg("[app] node has been started")

	<-waitCh
}

// bootstrap loads every segment file found in the table's data directory,
// worker_threads files at a time. A failed file does not stop the others.
func (n *Node) bootstrap(tableCfg config.Table) error {
	reg, err := n.tables.Get(tableCfg.Name)
	if err != nil {
		return err
	}
	names, err := n.loader.Discover(tableCfg)
	if err != nil {
		return err
	}

	var (
		g    errgroup.Group
		errs = make([]error, len(names))
	)
	g.SetLimit(tableCfg.WorkerThreads)
	for i, name := range names {
		g.Go(func() error {
			seg, lerr := n.loader.Load(n.ctx, tableCfg, name)
			if lerr != nil {
				errs[i] = lerr
				return nil
			}
			if aerr := reg.Add(name, seg); errors.Is(aerr, table.ErrWrongState) {
				errs[i] = errors.Join(aerr, seg.Destroy())
			} else {
				errs[i] = aerr
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Msgf("[app][%s] bootstrapped %d of %d segments from %s", tableCfg.Name, reg.Len(), len(names), tableCfg.DataDir)
	return errors.Join(errs...)
}

// stop releases the registries' references and drains the reclaim queue.
func (n *Node) stop() {
	log.Info().Msg("[app] stopping node")
	n.abort()
	log.Info().Msg("[app] node has been stopped")
}

func (n *Node) abort() {
	defer n.cancel()

	if err := n.tables.Shutdown(); err != nil {
		log.Err(err).Msg("[app] tables shutdown reported teardown failures")
	}
	if n.queue != nil {
		n.queue.Close()
	}
}

// IsAlive is called by liveness probes to check app health.
func (n *Node) IsAlive(_ context.Context) bool {
	if !n.server.IsAlive() {
		log.Info().Msg("[app] http server has gone away")
		return false
	}
	return true
}
