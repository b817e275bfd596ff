package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/GlobalCyberAlliance/domainscan/pkg/rowwriter"
)

// runDomainTask is the Per-Domain Task: cache lookup, executor selection,
// post-scan hook, cache write, and row emission, all captured under one
// meta record.
func (d *Dispatcher) runDomainTask(
	ctx context.Context,
	reg *module.Registration,
	domain string,
	scannerEnv module.Environment,
	opts map[string]interface{},
	useRemote bool,
	table *rowwriter.Table,
) {
	meta := &module.Meta{Errors: []string{}}

	scanEnv := scannerEnv

	if reg.InitDomain != nil {
		perDomain := scannerEnv.Clone()

		delta, ok := reg.InitDomain(domain, perDomain, opts)
		if !ok {
			// Silent skip, per spec.md §9's "init_domain returning false"
			// open question: no row, no log line.
			return
		}

		perDomain.Merge(delta)
		scanEnv = perDomain
	}

	baseDomain, err := module.BaseDomain(domain)
	if err != nil {
		meta.Errors = append(meta.Errors, err.Error())
		baseDomain = domain
	}

	var payload interface{}
	var cacheHit bool

	if d.Config.CacheEnabled && d.Cache != nil {
		payload, cacheHit, err = d.Cache.Read(reg.Name, domain)
		if err != nil {
			meta.Errors = append(meta.Errors, err.Error())
			cacheHit = false
		}
	}

	if !cacheHit {
		meta.StartTime = time.Now()

		if useRemote {
			// Only the Remote Executor's envelope must never carry the
			// fast-cache entry; the Local Executor runs in-process and may
			// read it directly.
			execEnv := scanEnv.WithoutFastCache()
			payload, err = d.Remote.Invoke(ctx, reg.Name, domain, execEnv, opts, meta)
		} else {
			payload, err = d.Local.Invoke(ctx, reg, domain, scanEnv, opts)
		}

		meta.EndTime = time.Now()
		meta.Duration = meta.EndTime.Sub(meta.StartTime)

		if err != nil {
			meta.Errors = append(meta.Errors, err.Error())
			payload = nil
		}
	}

	if reg.PostScan != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					meta.Errors = append(meta.Errors, fmt.Sprintf("post_scan panic: %v", r))
				}
			}()
			reg.PostScan(domain, payload, scanEnv, opts)
		}()
	}

	if !cacheHit && d.Cache != nil {
		if err := d.Cache.Write(reg.Name, domain, payload); err != nil {
			meta.Errors = append(meta.Errors, err.Error())
		}
		if payload == nil {
			meta.Errors = append(meta.Errors, "Scan returned nothing.")
		}
	}

	var scannerRows [][]string
	if payload != nil && reg.ToRows != nil {
		scannerRows = reg.ToRows(payload)
	}
	if len(scannerRows) == 0 {
		scannerRows = [][]string{make([]string, len(reg.Headers))}
	}

	for _, e := range meta.Errors {
		d.Logger.Warn().Str("scanner", reg.Name).Str("domain", domain).Msg(e)
	}

	for _, row := range scannerRows {
		full := make([]string, 0, 2+len(row)+len(rowwriter.LocalHeaders)+len(rowwriter.RemoteHeaders))
		full = append(full, domain, baseDomain)
		full = append(full, row...)

		if d.Config.MetaEnabled {
			full = append(full,
				joinErrors(meta.Errors),
				formatTime(meta.StartTime),
				formatTime(meta.EndTime),
				meta.Duration.String(),
			)

			if useRemote {
				var requestID, logGroup, logStream, lambdaStart, lambdaEnd, memLimit, measured string
				if meta.Lambda != nil {
					requestID = meta.Lambda.RequestID
					logGroup = meta.Lambda.LogGroupName
					logStream = meta.Lambda.LogStreamName
					lambdaStart = formatTime(meta.Lambda.StartTime)
					lambdaEnd = formatTime(meta.Lambda.EndTime)
					if meta.Lambda.MemoryLimit != 0 {
						memLimit = fmt.Sprintf("%d", meta.Lambda.MemoryLimit)
					}
					measured = meta.Lambda.MeasuredDuration.String()
				}

				full = append(full, requestID, logGroup, logStream, lambdaStart, lambdaEnd, memLimit, measured)
			}
		}

		if err := table.WriteRow(full); err != nil {
			d.Logger.Warn().Str("scanner", reg.Name).Str("domain", domain).Err(err).Msg("failed to emit row")
		}
	}
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
