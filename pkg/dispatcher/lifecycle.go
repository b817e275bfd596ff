package dispatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/GlobalCyberAlliance/domainscan/pkg/rowwriter"
)

// abortErr signals that a scanner's init hook returned false, which is a
// hard abort of the whole run per spec.md §4.5 step 3.
type abortErr struct {
	scanner string
}

func (e *abortErr) Error() string {
	return fmt.Sprintf("scanner %q init aborted the run", e.scanner)
}

// runScanner is the Scanner Lifecycle Driver: it opens the scanner's output
// table, builds its base environment, runs init, fans per-domain tasks out
// across a bounded worker pool, and runs finalize.
func (d *Dispatcher) runScanner(ctx context.Context, reg *module.Registration, domains []string, scanUUID string) (module.ScannerDuration, error) {
	start := time.Now()

	useRemote := d.Config.UseLambda
	if reg.UseLambda != nil {
		useRemote = *reg.UseLambda
	}

	workers := d.Config.DefaultWorkers
	if reg.Workers > 0 {
		workers = reg.Workers
	}
	workers = minInt(workers, d.Config.GlobalMaxTasks)

	env := module.Environment{
		"scan_method": "local",
		"scan_uuid":   scanUUID,
		"workers":     workers,
	}
	if useRemote {
		env["scan_method"] = "remote"
	}

	opts := map[string]interface{}{}

	if reg.Init != nil {
		delta, ok := reg.Init(env, opts)
		if !ok {
			return module.ScannerDuration{}, &abortErr{scanner: reg.Name}
		}
		env.Merge(delta)
	}

	table, err := rowwriter.NewTable(
		filepath.Join(d.Config.ResultsDir, reg.Name+".csv"),
		rowwriter.Headers(reg.Headers, d.Config.MetaEnabled, useRemote),
		d.Config.SortOutput,
	)
	if err != nil {
		return module.ScannerDuration{}, err
	}

	pool := newWorkerPool(workers)

	for _, domain := range domains {
		domain := domain

		d.acquireGlobal()
		pool.submit(func() {
			defer d.releaseGlobal()
			d.runDomainTask(ctx, reg, domain, env, opts, useRemote, table)
		})
	}

	pool.wait()

	if err := table.Close(); err != nil {
		return module.ScannerDuration{}, err
	}

	if reg.Finalize != nil {
		reg.Finalize(env, opts)
	}

	end := time.Now()

	return module.ScannerDuration{Start: start, End: end, Duration: end.Sub(start)}, nil
}
