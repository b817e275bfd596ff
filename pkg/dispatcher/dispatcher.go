// Package dispatcher implements the scan dispatcher: it composes scanner
// modules with a shared lifecycle, fans per-domain work out across bounded
// worker pools, chooses between local and remote execution, and writes one
// result table per scanner plus a run metadata record.
package dispatcher

import (
	"sync"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/cache"
	"github.com/GlobalCyberAlliance/domainscan/pkg/executor"
	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/rs/zerolog"
)

// Config carries the run-wide knobs spec.md §6 lists as CLI-surface
// collaborator concerns.
type Config struct {
	ResultsDir string
	CacheDir   string

	CacheEnabled bool
	MetaEnabled  bool
	SortOutput   bool
	Suffix       string

	UseLambda     bool
	LambdaRetries int
	LambdaDetails bool

	DefaultWorkers int
	GlobalMaxTasks int

	SettleDelay time.Duration

	Command string
}

// Dispatcher owns the shared collaborators every scanner's lifecycle and
// per-domain tasks run against: the result cache, the two executors, and
// the logger.
type Dispatcher struct {
	Config Config
	Logger zerolog.Logger

	Registry map[string]*module.Registration

	Cache  *cache.ResultCache
	Local  *executor.Local
	Remote *executor.Remote
	Logs   LogsClient

	globalSem chan struct{}
}

// New builds a Dispatcher ready to run the scanners registered via
// Register, sharing one cache, local executor, and remote executor across
// every scanner and domain task.
func New(cfg Config, logger zerolog.Logger, resultCache *cache.ResultCache, local *executor.Local, remote *executor.Remote) *Dispatcher {
	if cfg.GlobalMaxTasks <= 0 {
		cfg.GlobalMaxTasks = 1000
	}
	if cfg.DefaultWorkers <= 0 {
		cfg.DefaultWorkers = 8
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 20 * time.Second
	}

	return &Dispatcher{
		Config:    cfg,
		Logger:    logger,
		Registry:  make(map[string]*module.Registration),
		Cache:     resultCache,
		Local:     local,
		Remote:    remote,
		globalSem: make(chan struct{}, cfg.GlobalMaxTasks),
	}
}

// Register adds a scanner module to the dispatcher. Registration order
// carries no weight: run order is decided by Select, per spec.md §4.5's
// "processed in the order given on the command line" tie-break.
func (d *Dispatcher) Register(reg *module.Registration) {
	d.Registry[reg.Name] = reg
}

// Select narrows the scanners a Run will execute, in the order given in
// names, per spec.md §4.5's "processed in the order given on the command
// line" tie-break. A name repeated in names is only selected once, at its
// first occurrence; unknown names are silently ignored.
func (d *Dispatcher) Select(names []string) []*module.Registration {
	seen := make(map[string]struct{}, len(names))

	var selected []*module.Registration
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if reg, ok := d.Registry[name]; ok {
			selected = append(selected, reg)
		}
	}

	return selected
}

func filterBySuffix(domains []string, suffix string) []string {
	if suffix == "" {
		return domains
	}

	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if len(d) >= len(suffix) && d[len(d)-len(suffix):] == suffix {
			out = append(out, d)
		}
	}

	return out
}

// acquireGlobal bounds total in-flight tasks across every scanner to
// Config.GlobalMaxTasks, on top of the per-scanner worker pool.
func (d *Dispatcher) acquireGlobal() { d.globalSem <- struct{}{} }
func (d *Dispatcher) releaseGlobal() { <-d.globalSem }

type workerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{sem: make(chan struct{}, size)}
}

func (p *workerPool) submit(fn func()) {
	p.wg.Add(1)
	p.sem <- struct{}{}

	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		fn()
	}()
}

func (p *workerPool) wait() { p.wg.Wait() }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
