package main

import (
	"github.com/spf13/cobra"

	domainscanhttp "github.com/GlobalCyberAlliance/domainscan/pkg/http"
)

func init() {
	cmd.AddCommand(cmdServe)

	cmdServe.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to serve the results API on")
	cmdServe.Flags().StringVar(&serveResultsDir, "resultsDir", "results", "Directory to read the most recent run's result tables and meta.json from")
}

var (
	cmdServe = &cobra.Command{
		Use:     "serve",
		Short:   "Serve the most recent scan run's results over HTTP",
		Example: "  domainscan serve --resultsDir results --port 8080",
		Args:    cobra.NoArgs,
		Run: func(command *cobra.Command, args []string) {
			server := domainscanhttp.NewServer(log, serveResultsDir, cmd.Version)
			server.Serve(servePort)
		},
	}

	servePort       int
	serveResultsDir string
)
