package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Run is the Run Controller: it truncates prior results, runs every
// selected scanner in order, optionally enriches tables with remote
// metadata, and writes the run metadata file.
func (d *Dispatcher) Run(ctx context.Context, domains []string, scannerNames []string) (*module.RunMetadata, error) {
	selected := d.Select(scannerNames)
	if len(selected) == 0 {
		return nil, errors.New("no scanners selected")
	}

	if err := os.MkdirAll(d.Config.ResultsDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create results directory")
	}

	if err := d.truncateResults(selected); err != nil {
		return nil, errors.Wrap(err, "truncate prior results")
	}

	domains = filterBySuffix(domains, d.Config.Suffix)

	scanUUID := uuid.NewString()
	runStart := time.Now()

	durations := make(map[string]module.ScannerDuration, len(selected))
	usedRemote := false

	for _, reg := range selected {
		useRemote := d.Config.UseLambda
		if reg.UseLambda != nil {
			useRemote = *reg.UseLambda
		}
		if useRemote {
			usedRemote = true
		}

		duration, err := d.runScanner(ctx, reg, domains, scanUUID)
		if err != nil {
			return nil, err
		}

		durations[reg.Name] = duration
	}

	if usedRemote && d.Config.LambdaDetails {
		d.Logger.Info().Dur("settle", d.Config.SettleDelay).Msg("waiting for remote log delivery before enrichment")

		select {
		case <-time.After(d.Config.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		for _, reg := range selected {
			useRemote := d.Config.UseLambda
			if reg.UseLambda != nil {
				useRemote = *reg.UseLambda
			}
			if !useRemote {
				continue
			}

			path := filepath.Join(d.Config.ResultsDir, reg.Name+".csv")
			if err := d.enrichTable(ctx, path); err != nil {
				d.Logger.Warn().Str("scanner", reg.Name).Err(err).Msg("post-run enrichment failed")
			}
		}
	}

	runEnd := time.Now()

	metadata := &module.RunMetadata{
		StartTime: runStart,
		EndTime:   runEnd,
		Duration:  runEnd.Sub(runStart),
		Durations: durations,
		Command:   d.Config.Command,
		ScanUUID:  scanUUID,
	}

	if err := d.writeRunMetadata(metadata); err != nil {
		return nil, err
	}

	return metadata, nil
}

func (d *Dispatcher) truncateResults(selected []*module.Registration) error {
	for _, reg := range selected {
		path := filepath.Join(d.Config.ResultsDir, reg.Name+".csv")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	metaPath := filepath.Join(d.Config.ResultsDir, "meta.json")
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (d *Dispatcher) writeRunMetadata(metadata *module.RunMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "\t")
	if err != nil {
		return err
	}

	path := filepath.Join(d.Config.ResultsDir, "meta.json")

	tmp, err := os.CreateTemp(d.Config.ResultsDir, ".tmp-meta-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
