package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// support OS-specific path separators.
const slash = string(os.PathSeparator)

var (
	cmd = &cobra.Command{
		Use:     "domainscan",
		Short:   "Run scanner modules against a batch of domains.",
		Long:    "Run scanner modules against a batch of domains.\nhttps://github.com/GlobalCyberAlliance/domainscan",
		Version: "1.0.0",
		PersistentPreRun: func(command *cobra.Command, args []string) {
			var logWriter io.Writer
			if prettyLog {
				logWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
			} else {
				logWriter = os.Stdout
			}

			if debug {
				log = zerolog.New(logWriter).With().Timestamp().Logger().Level(zerolog.DebugLevel)
			} else {
				log = zerolog.New(logWriter).With().Timestamp().Logger().Level(zerolog.InfoLevel)
			}

			configDir, err := os.UserHomeDir()
			if err != nil {
				log.Fatal().Err(err).Msg("unable to retrieve user's home directory")
			}

			cfg, err = NewConfig(fmt.Sprintf("%s%s.config%sdomainscan", strings.TrimSuffix(configDir, slash), slash, slash))
			if err != nil {
				log.Fatal().Err(err).Msg("unable to initialize config")
			}

			if len(nameservers) == 0 {
				nameservers = cfg.Nameservers
			}
		},
	}

	cfg *Config
	log zerolog.Logger

	debug, prettyLog bool
	nameservers      []string
)

func main() {
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Print debug logs")
	cmd.PersistentFlags().BoolVar(&prettyLog, "prettyLog", true, "Pretty print logs to console")
	cmd.PersistentFlags().StringSliceVarP(&nameservers, "nameservers", "n", nil, "Use specific nameservers, in `host[:port]` format; may be specified multiple times")

	_ = cmd.Execute()
}
