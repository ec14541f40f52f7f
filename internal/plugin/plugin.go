// Package plugin wires probes, measures, filters, timers and storage into the
// engine that consumes document lifecycle events.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/probeline/probeline/internal/filter"
	"github.com/probeline/probeline/internal/hooks"
	"github.com/probeline/probeline/internal/measure"
	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/persist"
	"github.com/probeline/probeline/internal/probe"
	"github.com/probeline/probeline/internal/scheduler"
	"github.com/probeline/probeline/internal/storage"
)

// DefaultQueueSize is the capacity of each watcher event queue.
const DefaultQueueSize = 1024

// OpenFunc opens the storage backend at url.
type OpenFunc func(ctx context.Context, url string) (storage.Store, error)

// Options tunes Initialize. Zero values select the defaults.
type Options struct {
	// Dummy keeps the probe set inspectable but disables every side effect.
	Dummy        bool
	OpenStore    OpenFunc
	Engine       filter.Engine
	Clock        clock.Clock
	Logger       *slog.Logger
	Metrics      metrics.Recorder
	QueueSize    int
	FlushTimeout time.Duration
}

// Plugin is an initialized probe engine.
type Plugin struct {
	config   *probe.PluginConfig
	registry *probe.Registry
	table    *hooks.Table
	byType   map[probe.Type][]*probe.Probe

	measures  *measure.Store
	filters   *filter.Adapter
	filterIDs map[string]filter.ID
	store     storage.Store
	gateway   *persist.Gateway
	scheduler *scheduler.Scheduler
	pipelines map[string]*pipeline

	flushLocks   map[string]*sync.Mutex
	flushes      sync.WaitGroup
	flushTimeout time.Duration

	logger  *slog.Logger
	metrics metrics.Recorder

	mu     sync.RWMutex
	closed bool
}

// Initialize validates raw, registers watcher filters, opens the storage
// backend named by the first databases entry, arms the flush timers and
// starts the watcher pipelines.
//
// A malformed top-level configuration is returned as an error wrapping
// probe.ErrConfiguration. Invalid probes and probes whose filter cannot be
// registered are logged and left out.
func Initialize(ctx context.Context, raw map[string]any, opts Options) (*Plugin, error) {
	opts = withDefaults(opts)
	logger := opts.Logger.With("component", "plugin")

	cfg, err := probe.Validate(raw)
	if err != nil {
		return nil, err
	}
	for _, rejected := range cfg.Rejected {
		logger.Warn("probe rejected", "probe_id", rejected.ProbeID, "reason", rejected.Reason)
	}

	p := &Plugin{
		config:       cfg,
		registry:     probe.NewRegistry(cfg.Probes, opts.Dummy),
		filterIDs:    make(map[string]filter.ID),
		pipelines:    make(map[string]*pipeline),
		flushLocks:   make(map[string]*sync.Mutex),
		flushTimeout: opts.FlushTimeout,
		logger:       logger,
		metrics:      opts.Metrics,
	}

	if p.registry.Dummy() {
		p.build()
		logger.Info("plugin running in dummy mode", "probes", p.registry.Len())
		return p, nil
	}

	p.filters = filter.NewAdapter(opts.Engine, opts.Logger, opts.Metrics)
	for _, w := range p.registry.OfType(probe.TypeWatcher) {
		id, err := p.filters.Register(ctx, w.Index, w.Collection, w.Filter)
		if err != nil {
			logger.Warn("probe deactivated", "probe_id", w.ID, "error", err)
			p.registry.Remove(w.ID)
			continue
		}
		p.filterIDs[w.ID] = id
	}
	p.build()

	if p.registry.Len() == 0 {
		logger.Info("no active probe left, running in dummy mode")
		return p, nil
	}

	target, err := storage.ParseTarget(cfg.Databases[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", probe.ErrConfiguration, err)
	}
	store, err := opts.OpenStore(ctx, target.URL)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", target.Name, err)
	}
	p.store = store
	p.gateway = persist.New(store, cfg.StorageIndex, opts.Clock)
	p.scheduler = scheduler.New(opts.Clock, opts.Logger)

	for _, pr := range p.registry.All() {
		p.flushLocks[pr.ID] = &sync.Mutex{}
	}
	for _, w := range p.byType[probe.TypeWatcher] {
		p.pipelines[w.ID] = p.startPipeline(w, opts.QueueSize)
	}
	p.armTimers(ctx)

	logger.Info("plugin initialized",
		"probes", p.registry.Len(),
		"rejected", len(cfg.Rejected),
		"storage", target.Name,
		"scheme", scheme(target.URL),
		"storage_index", cfg.StorageIndex,
	)
	return p, nil
}

func withDefaults(opts Options) Options {
	if opts.OpenStore == nil {
		opts.OpenStore = storage.Open
	}
	if opts.Engine == nil {
		opts.Engine = filter.NewExprEngine()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return opts
}

// scheme keeps credentials in the storage URL out of the logs.
func scheme(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return url
}

// build derives the routing table and measures from the active probes.
func (p *Plugin) build() {
	active := p.registry.All()
	p.table = hooks.Build(active)
	p.measures = measure.New(active)
	p.byType = make(map[probe.Type][]*probe.Probe, len(probe.Types))
	for _, t := range probe.Types {
		p.byType[t] = p.registry.OfType(t)
	}
}

// armTimers schedules the periodic flush of every interval-driven probe.
// Collecting probes whose collection cannot be prepared get no timer.
func (p *Plugin) armTimers(ctx context.Context) {
	for _, pr := range p.registry.All() {
		if pr.Collecting() {
			if err := p.gateway.EnsureCollection(ctx, pr.ID); err != nil {
				p.logger.Error("failed to prepare collection",
					"probe_id", pr.ID,
					"error", err,
				)
				continue
			}
		}
		if pr.Immediate() {
			continue
		}

		id := pr.ID
		if _, err := p.scheduler.Every(id, pr.Interval, func() { p.flushAsync(id, true) }); err != nil {
			p.logger.Error("failed to arm flush timer", "probe_id", id, "error", err)
			continue
		}
		p.logger.Debug("flush timer armed", "probe_id", id, "interval", pr.Interval.String())
	}
}

// Dummy reports whether the plugin ignores events.
func (p *Plugin) Dummy() bool {
	return p.registry.Dummy() || p.registry.Len() == 0
}

// Probes returns the active probes ordered by ID.
func (p *Plugin) Probes() []*probe.Probe {
	return p.registry.All()
}

// Probe returns an active probe.
func (p *Plugin) Probe(id string) (*probe.Probe, bool) {
	return p.registry.Get(id)
}

// Rejected returns the probes dropped during validation.
func (p *Plugin) Rejected() []*probe.DefinitionError {
	return p.config.Rejected
}

// Routes returns the probe types an event is routed to.
func (p *Plugin) Routes(event string) []probe.Type {
	return p.table.Route(event)
}

// Measure returns a copy of the current measure of a probe.
func (p *Plugin) Measure(id string) (measure.Snapshot, bool) {
	return p.measures.Snapshot(id)
}

// Scheduled reports whether a flush timer runs for a probe.
func (p *Plugin) Scheduled(id string) bool {
	return p.scheduler != nil && p.scheduler.Scheduled(id)
}

// Ping checks the storage backend. A dummy plugin has none and is always
// ready.
func (p *Plugin) Ping(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	return p.store.Ping(ctx)
}
