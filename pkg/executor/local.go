package executor

import (
	"context"
	"errors"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/goccy/go-json"
)

// HeadlessFunc is the external headless-browser-bridge collaborator. It is
// injected rather than imported so the dispatcher never depends on a
// browser-automation package directly.
type HeadlessFunc func(ctx context.Context, scannerName, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error)

// Local invokes a scanner module's probe in the current process.
type Local struct {
	Headless HeadlessFunc
}

// Invoke runs reg's Scan hook (or, when the scanner declares
// ScanHeadless, delegates to the headless bridge) and normalizes the
// result through a JSON round trip, canonicalizing timestamps and
// numeric forms the same way the wire format would.
func (l *Local) Invoke(ctx context.Context, reg *module.Registration, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
	var (
		payload interface{}
		err     error
	)

	switch {
	case reg.ScanHeadless:
		if l.Headless == nil {
			return nil, errors.New("scanner requires a headless bridge, but none is configured")
		}
		payload, err = l.Headless(ctx, reg.Name, domain, env, opts)
	case reg.Scan != nil:
		payload, err = reg.Scan(ctx, domain, env, opts)
	default:
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return normalize(payload)
}

func normalize(payload interface{}) (interface{}, error) {
	if payload == nil {
		return nil, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}
