package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/goccy/go-json"
)

// LambdaInvoker is the subset of the Lambda client the Remote Executor
// needs; satisfied by *lambda.Client.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Remote invokes a named serverless function synchronously, per the wire
// contract in SPEC_FULL.md §4.4/§6.
type Remote struct {
	Lambda     LambdaInvoker
	MaxRetries int
}

type envelope struct {
	Domain      string                 `json:"domain"`
	Options     map[string]interface{} `json:"options"`
	Scanner     string                 `json:"scanner"`
	Environment module.Environment     `json:"environment"`
}

type lambdaResponse struct {
	ErrorMessage string              `json:"errorMessage,omitempty"`
	Lambda       *lambdaResponseMeta `json:"lambda,omitempty"`
	Data         json.RawMessage     `json:"data,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type lambdaResponseMeta struct {
	RequestID       string `json:"requestId"`
	LogGroupName    string `json:"logGroupName"`
	LogStreamName   string `json:"logStreamName"`
	MemoryLimitInMB int64  `json:"memoryLimitInMB"`
}

// Invoke calls task_<scannerName> with the envelope {domain, options,
// scanner, environment} (fast-cache key already stripped by the caller),
// retrying up to r.MaxRetries times on retriable failures (counted in
// meta.Lambda.Retries) and returning the most recently decoded payload on
// exhaustion.
func (r *Remote) Invoke(ctx context.Context, scannerName, domain string, env module.Environment, opts map[string]interface{}, meta *module.Meta) (interface{}, error) {
	if meta.Lambda == nil {
		meta.Lambda = &module.LambdaMeta{}
	}

	body, err := json.Marshal(envelope{
		Domain:      domain,
		Options:     opts,
		Scanner:     scannerName,
		Environment: env,
	})
	if err != nil {
		return nil, err
	}

	functionName := "task_" + scannerName

	var (
		lastData interface{}
		haveLast bool
		finalErr error
	)

	for attempt := 0; ; attempt++ {
		out, invokeErr := r.Lambda.Invoke(ctx, &lambda.InvokeInput{
			FunctionName:   aws.String(functionName),
			InvocationType: lambdatypes.InvocationTypeRequestResponse,
			Payload:        body,
		})

		if invokeErr != nil {
			meta.Errors = append(meta.Errors, invokeErr.Error())
			finalErr = invokeErr
			if isRetriable(invokeErr) && attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		if out.FunctionError != nil {
			meta.Errors = append(meta.Errors, string(out.Payload))
			finalErr = errors.New(*out.FunctionError)
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		if len(out.Payload) == 0 {
			meta.Errors = append(meta.Errors, "empty response body")
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		var resp lambdaResponse
		if err := json.Unmarshal(out.Payload, &resp); err != nil {
			meta.Errors = append(meta.Errors, err.Error())
			finalErr = err
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		if resp.ErrorMessage != "" {
			meta.Errors = append(meta.Errors, resp.ErrorMessage)
			finalErr = errors.New(resp.ErrorMessage)
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		if resp.Lambda != nil {
			meta.Lambda.RequestID = resp.Lambda.RequestID
			meta.Lambda.LogGroupName = resp.Lambda.LogGroupName
			meta.Lambda.LogStreamName = resp.Lambda.LogStreamName
			meta.Lambda.MemoryLimit = resp.Lambda.MemoryLimitInMB
		}

		if resp.Error != "" {
			meta.Errors = append(meta.Errors, resp.Error)
			finalErr = errors.New(resp.Error)
			if len(resp.Data) > 0 {
				var data interface{}
				if err := json.Unmarshal(resp.Data, &data); err == nil {
					lastData, haveLast = data, true
				}
			}
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		if len(resp.Data) == 0 {
			meta.Errors = append(meta.Errors, "remote scanner returned no data")
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		var data interface{}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			meta.Errors = append(meta.Errors, err.Error())
			finalErr = err
			if attempt < r.MaxRetries {
				meta.Lambda.Retries = attempt + 1
				continue
			}
			break
		}

		// Success.
		return data, nil
	}

	if haveLast {
		return lastData, nil
	}

	return nil, finalErr
}

func isRetriable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection reset")
}

// DialTimeout is the minimum read timeout the Remote Executor's Lambda
// client should be configured with, per SPEC_FULL.md §5.
const DialTimeout = 15 * time.Minute
