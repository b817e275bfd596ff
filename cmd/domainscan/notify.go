package main

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/GlobalCyberAlliance/domainscan/pkg/mail"
	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

func init() {
	cmd.AddCommand(cmdNotify)

	cmdNotify.Flags().StringVar(&notifyResultsDir, "resultsDir", "results", "Directory to read the most recent run's meta.json from")
	cmdNotify.Flags().StringVar(&notifyRecipient, "to", "", "Recipient email address")
	cmdNotify.Flags().StringVar(&notifySMTPHost, "smtpHost", "", "Outbound SMTP host")
	cmdNotify.Flags().IntVar(&notifySMTPPort, "smtpPort", 587, "Outbound SMTP port")
	cmdNotify.Flags().StringVar(&notifySMTPUser, "smtpUser", "", "Outbound SMTP username")
	cmdNotify.Flags().StringVar(&notifySMTPPass, "smtpPass", "", "Outbound SMTP password")

	_ = setRequiredFlags(cmdNotify, "to", "smtpHost", "smtpUser", "smtpPass")
}

var (
	cmdNotify = &cobra.Command{
		Use:     "notify",
		Short:   "Email a summary of the most recent scan run",
		Example: "  domainscan notify --to ops@example.com --smtpHost smtp.example.com --smtpUser bot --smtpPass secret",
		Args:    cobra.NoArgs,
		Run: func(command *cobra.Command, args []string) {
			data, err := os.ReadFile(notifyResultsDir + slash + "meta.json")
			if err != nil {
				log.Fatal().Err(err).Msg("unable to read run metadata")
			}

			var metadata module.RunMetadata
			if err := json.Unmarshal(data, &metadata); err != nil {
				log.Fatal().Err(err).Msg("unable to decode run metadata")
			}

			notifier := mail.NewNotifier(mail.Config{
				Host: notifySMTPHost,
				Port: notifySMTPPort,
				User: notifySMTPUser,
				Pass: notifySMTPPass,
			})

			if err := notifier.SendRunSummary(notifyRecipient, &metadata); err != nil {
				log.Fatal().Err(err).Msg("unable to send run-completion notification")
			}

			log.Info().Str("to", notifyRecipient).Msg("run-completion notification sent")
		},
	}

	notifyResultsDir                                        string
	notifyRecipient, notifySMTPHost, notifySMTPUser, notifySMTPPass string
	notifySMTPPort                                           int
)

func setRequiredFlags(command *cobra.Command, flags ...string) error {
	for _, flag := range flags {
		if err := command.MarkFlagRequired(flag); err != nil {
			return err
		}
	}

	return nil
}
