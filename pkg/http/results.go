package http

import (
	"context"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goccy/go-json"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/GlobalCyberAlliance/domainscan/pkg/rowwriter"
)

// ScannerTableResponse carries one scanner's result table as parsed CSV.
type ScannerTableResponse struct {
	Body struct {
		Scanner string     `json:"scanner"`
		Header  []string   `json:"header"`
		Rows    [][]string `json:"rows"`
	}
}

// ScannerTableInput names the scanner whose table to fetch.
type ScannerTableInput struct {
	Scanner string `path:"scanner" doc:"Scanner module name, e.g. dns, tlshardening, htmla11y."`
}

// RunMetadataResponse carries the latest run's meta.json verbatim.
type RunMetadataResponse struct {
	Body module.RunMetadata
}

func (s *Server) registerResultsRoutes() {
	huma.Register(s.router, huma.Operation{
		OperationID: "get-scanner-table",
		Summary:     "Get the most recent run's result table for a scanner",
		Method:      "GET",
		Path:        s.apiPath + "/results/{scanner}",
		Tags:        []string{"Results"},
	}, func(ctx context.Context, input *ScannerTableInput) (*ScannerTableResponse, error) {
		path := filepath.Join(s.resultsDir, input.Scanner+".csv")

		header, rows, err := rowwriter.ReadCSV(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, huma.Error404NotFound("no results for scanner " + input.Scanner)
			}
			return nil, huma.Error500InternalServerError("reading result table", err)
		}

		resp := &ScannerTableResponse{}
		resp.Body.Scanner = input.Scanner
		resp.Body.Header = header
		resp.Body.Rows = rows

		return resp, nil
	})

	huma.Register(s.router, huma.Operation{
		OperationID: "get-run-metadata",
		Summary:     "Get metadata for the most recent run",
		Method:      "GET",
		Path:        s.apiPath + "/results/meta",
		Tags:        []string{"Results"},
	}, func(ctx context.Context, input *struct{}) (*RunMetadataResponse, error) {
		path := filepath.Join(s.resultsDir, "meta.json")

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, huma.Error404NotFound("no run metadata available yet")
			}
			return nil, huma.Error500InternalServerError("reading run metadata", err)
		}

		resp := &RunMetadataResponse{}
		if err := json.Unmarshal(data, &resp.Body); err != nil {
			return nil, huma.Error500InternalServerError("decoding run metadata", err)
		}

		return resp, nil
	})
}
