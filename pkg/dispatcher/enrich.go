package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/rowwriter"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// LogsClient is the subset of the CloudWatch Logs client the enricher
// needs; satisfied by *cloudwatchlogs.Client.
type LogsClient interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// enrichHeaders are the columns the Post-run Remote Enricher appends to
// every row of a remote scanner's table, in this order.
var enrichHeaders = []string{"Reported Duration", "Log Delay", "Memory Used", "Cold Start", "Fetching Errors"}

func (d *Dispatcher) enrichTable(ctx context.Context, path string) error {
	if d.Logs == nil {
		return nil
	}

	header, rows, err := rowwriter.ReadCSV(path)
	if err != nil {
		return err
	}
	if len(header) == 0 {
		return nil
	}

	requestIDIdx := indexOf(header, "Request ID")
	logGroupIdx := indexOf(header, "Log Group Name")
	logStreamIdx := indexOf(header, "Log Stream Name")
	endTimeIdx := indexOf(header, "Local End Time")

	if requestIDIdx < 0 || logGroupIdx < 0 {
		return nil
	}

	newHeader := append(append([]string{}, header...), enrichHeaders...)

	for i, row := range rows {
		requestID := valueAt(row, requestIDIdx)
		logGroup := valueAt(row, logGroupIdx)
		logStream := valueAt(row, logStreamIdx)
		localEnd := valueAt(row, endTimeIdx)

		reported, logDelay, memory, coldStart, fetchErr := d.enrichRow(ctx, logGroup, logStream, requestID, localEnd)

		rows[i] = append(row, reported, logDelay, memory, coldStart, fetchErr)
	}

	return rowwriter.WriteCSVAtomic(path, newHeader, rows)
}

func (d *Dispatcher) enrichRow(ctx context.Context, logGroup, logStream, requestID, localEndRaw string) (reported, logDelay, memory, coldStart, fetchErr string) {
	if logGroup == "" || requestID == "" {
		return "", "", "", "", "No logs found for this task."
	}

	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:  aws.String(logGroup),
		FilterPattern: aws.String(fmt.Sprintf("%q %q", requestID, "Max Memory Used")),
	}
	if logStream != "" {
		input.LogStreamNames = []string{logStream}
	}

	out, err := d.Logs.FilterLogEvents(ctx, input)
	if err != nil {
		if isThrottled(err) {
			return "", "", "", "", "too many requests"
		}
		return "", "", "", "", err.Error()
	}

	event := lastEvent(out.Events)
	if event == nil {
		return "", "", "", "", "No logs found for this task."
	}

	fields := strings.Split(aws.ToString(event.Message), "\t")
	reported = fieldValue(fields, 1)
	memory = fieldValue(fields, 4)
	if hasInitDuration(fields) {
		coldStart = "true"
	} else {
		coldStart = "false"
	}

	if localEnd, err := time.Parse(time.RFC3339Nano, localEndRaw); err == nil && event.IngestionTime != nil {
		ingestion := time.UnixMilli(*event.IngestionTime)
		logDelay = ingestion.Sub(localEnd).String()
	}

	return reported, logDelay, memory, coldStart, ""
}

func lastEvent(events []cwtypes.FilteredLogEvent) *cwtypes.FilteredLogEvent {
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

func fieldValue(fields []string, index int) string {
	if index < 0 || index >= len(fields) {
		return ""
	}

	parts := strings.SplitN(fields[index], ":", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(fields[index])
	}

	return strings.TrimSpace(parts[1])
}

// hasInitDuration reports whether a REPORT log's tab-separated fields
// include an "Init Duration" entry, the signal Lambda adds only when that
// invocation had to cold-start a fresh execution environment.
func hasInitDuration(fields []string) bool {
	for _, f := range fields {
		if strings.Contains(f, "Init Duration") {
			return true
		}
	}
	return false
}

func isThrottled(err error) bool {
	var throttled *cwtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "too many requests") || strings.Contains(strings.ToLower(err.Error()), "throttl")
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func valueAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}
