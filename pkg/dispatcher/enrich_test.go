package dispatcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/GlobalCyberAlliance/domainscan/pkg/rowwriter"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/rs/zerolog"
)

type fakeLogsClient struct {
	events []cwtypes.FilteredLogEvent
	err    error
}

func (f *fakeLogsClient) FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatchlogs.FilterLogEventsOutput{Events: f.events}, nil
}

func TestEnrichTable_AppendsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.csv")

	header := append(append([]string{}, rowwriter.PrefixHeaders...), "SPF", "Errors", "Start Time", "End Time", "Duration", "Request ID", "Log Group Name", "Log Stream Name", "Start Time ", "End Time ", "Memory Limit", "Measured Duration")
	if err := rowwriter.WriteCSVAtomic(path, header, [][]string{
		append(append([]string{}, "example.com", "example.com"), "v=spf1 -all", "", "", "", "", "req-1", "/aws/lambda/task_dns", "stream-1", "", "", "", ""),
	}); err != nil {
		t.Fatalf("seed table: %v", err)
	}

	d := &Dispatcher{Logger: zerolog.Nop(), Logs: &fakeLogsClient{
		events: []cwtypes.FilteredLogEvent{
			{Message: aws.String("REPORT RequestId: req-1\tDuration: 120.00 ms\tBilled Duration: 121 ms\tMemory Size: 128 MB\tMax Memory Used: 64 MB")},
		},
	}}

	if err := d.enrichTable(context.Background(), path); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	newHeader, rows, err := rowwriter.ReadCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	if len(newHeader) != len(header)+len(enrichHeaders) {
		t.Errorf("found %d header columns, want %d", len(newHeader), len(header)+len(enrichHeaders))
	}
	if len(rows[0]) != len(header)+len(enrichHeaders) {
		t.Errorf("found %d row columns, want %d", len(rows[0]), len(header)+len(enrichHeaders))
	}
}

func TestEnrichTable_NoLogsClientIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.csv")
	if err := rowwriter.WriteCSVAtomic(path, []string{"Domain"}, [][]string{{"example.com"}}); err != nil {
		t.Fatalf("seed table: %v", err)
	}

	d := &Dispatcher{Logger: zerolog.Nop()}
	if err := d.enrichTable(context.Background(), path); err != nil {
		t.Fatalf("expected enrichTable to no-op without a Logs client: %v", err)
	}
}

func TestEnrichRow_NoRequestID(t *testing.T) {
	d := &Dispatcher{Logger: zerolog.Nop(), Logs: &fakeLogsClient{}}

	reported, logDelay, memory, coldStart, fetchErr := d.enrichRow(context.Background(), "", "", "", "")
	if reported != "" || logDelay != "" || memory != "" || coldStart != "" || fetchErr == "" {
		t.Errorf("found (%q,%q,%q,%q,%q), want empty fields and a fetch error for a missing request id", reported, logDelay, memory, coldStart, fetchErr)
	}
}

func TestEnrichRow_ThrottledError(t *testing.T) {
	d := &Dispatcher{Logger: zerolog.Nop(), Logs: &fakeLogsClient{err: errors.New("too many requests")}}

	_, _, _, _, fetchErr := d.enrichRow(context.Background(), "group", "stream", "req-1", "")
	if fetchErr != "too many requests" {
		t.Errorf("found %q, want the throttling message surfaced verbatim", fetchErr)
	}
}

func TestEnrichRow_ColdStart(t *testing.T) {
	d := &Dispatcher{Logger: zerolog.Nop(), Logs: &fakeLogsClient{
		events: []cwtypes.FilteredLogEvent{
			{Message: aws.String("REPORT RequestId: req-1\tDuration: 450.00 ms\tBilled Duration: 451 ms\tMemory Size: 128 MB\tMax Memory Used: 90 MB\tInit Duration: 200.00 ms")},
		},
	}}

	_, _, _, coldStart, fetchErr := d.enrichRow(context.Background(), "group", "stream", "req-1", "")
	if fetchErr != "" {
		t.Fatalf("unexpected fetch error: %q", fetchErr)
	}
	if coldStart != "true" {
		t.Errorf("found %q, want true when the REPORT log carries an Init Duration line", coldStart)
	}
}

func TestEnrichRow_WarmStart(t *testing.T) {
	d := &Dispatcher{Logger: zerolog.Nop(), Logs: &fakeLogsClient{
		events: []cwtypes.FilteredLogEvent{
			{Message: aws.String("REPORT RequestId: req-1\tDuration: 120.00 ms\tBilled Duration: 121 ms\tMemory Size: 128 MB\tMax Memory Used: 64 MB")},
		},
	}}

	_, _, _, coldStart, fetchErr := d.enrichRow(context.Background(), "group", "stream", "req-1", "")
	if fetchErr != "" {
		t.Fatalf("unexpected fetch error: %q", fetchErr)
	}
	if coldStart != "false" {
		t.Errorf("found %q, want false without an Init Duration line", coldStart)
	}
}

func TestHasInitDuration(t *testing.T) {
	if hasInitDuration([]string{"Duration: 1 ms", "Memory Size: 128 MB"}) {
		t.Error("expected false without an Init Duration field")
	}
	if !hasInitDuration([]string{"Duration: 1 ms", "Init Duration: 200.00 ms"}) {
		t.Error("expected true with an Init Duration field")
	}
}

func TestFieldValue(t *testing.T) {
	fields := []string{"REPORT RequestId: req-1", "Duration: 120.00 ms", "Billed Duration: 121 ms", "Memory Size: 128 MB", "Max Memory Used: 64 MB"}

	if got := fieldValue(fields, 1); got != "120.00 ms" {
		t.Errorf("found %q, want 120.00 ms", got)
	}
	if got := fieldValue(fields, 99); got != "" {
		t.Errorf("found %q, want empty string for an out-of-range index", got)
	}
}

func TestIndexOf(t *testing.T) {
	header := []string{"Domain", "Request ID", "Log Group Name"}

	if got := indexOf(header, "Request ID"); got != 1 {
		t.Errorf("found %d, want 1", got)
	}
	if got := indexOf(header, "Missing"); got != -1 {
		t.Errorf("found %d, want -1", got)
	}
}
