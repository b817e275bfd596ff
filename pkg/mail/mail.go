// Package mail sends an optional run-completion notification once a
// dispatcher run finishes: a summary of per-scanner durations rendered with
// hermes and delivered over SMTP. The teacher's inbound IMAP mailbox polling
// has no role in a batch dispatcher and is not carried over.
package mail

import (
	"fmt"
	"sort"
	"time"

	gomail "github.com/go-mail/mail/v2"
	"github.com/matcornic/hermes/v2"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

// Config holds the outbound SMTP credentials used to deliver run-completion
// notifications.
type Config struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	User string `json:"user" yaml:"user"`
	Pass string `json:"pass" yaml:"pass"`
}

// Notifier sends run-completion emails.
type Notifier struct {
	config Config
	hermes hermes.Hermes
}

// NewNotifier returns a Notifier that signs outgoing mail as "domainscan".
func NewNotifier(config Config) *Notifier {
	return &Notifier{
		config: config,
		hermes: hermes.Hermes{
			Product: hermes.Product{
				Name: "domainscan",
				Link: "https://github.com/GlobalCyberAlliance/domainscan",
			},
		},
	}
}

// SendRunSummary emails recipient a table of per-scanner durations for the
// run described by metadata.
func (n *Notifier) SendRunSummary(recipient string, metadata *module.RunMetadata) error {
	email := hermes.Email{
		Body: hermes.Body{
			Title: "Your domain scan run has finished.",
			Intros: []string{
				fmt.Sprintf("Run %s completed in %s.", metadata.ScanUUID, metadata.Duration.Round(time.Millisecond)),
			},
			Table:     durationsTable(metadata.Durations),
			Signature: "Thanks",
		},
	}

	html, err := n.hermes.GenerateHTML(email)
	if err != nil {
		return fmt.Errorf("failed to render html notification: %w", err)
	}

	plaintext, err := n.hermes.GeneratePlainText(email)
	if err != nil {
		return fmt.Errorf("failed to render plaintext notification: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.config.User)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", "Domain scan run complete")
	m.SetBody("text/plain", plaintext)
	m.AddAlternative("text/html", html)

	dialer := gomail.NewDialer(n.config.Host, n.config.Port, n.config.User, n.config.Pass)

	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send run-completion notification: %w", err)
	}

	return nil
}

func durationsTable(durations map[string]module.ScannerDuration) hermes.Table {
	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]hermes.Entry, 0, len(names))
	for _, name := range names {
		rows = append(rows, []hermes.Entry{
			{Key: "Scanner", Value: name},
			{Key: "Duration", Value: durations[name].Duration.Round(time.Millisecond).String()},
		})
	}

	return hermes.Table{Data: rows}
}
