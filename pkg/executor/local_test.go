package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

func TestLocal_Invoke_Scan(t *testing.T) {
	reg := &module.Registration{
		Name: "dns",
		Scan: func(ctx context.Context, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
			return struct {
				SPF string `json:"spf"`
			}{SPF: "v=spf1 -all"}, nil
		},
	}

	local := &Local{}

	payload, err := local.Invoke(context.Background(), reg, "example.com", module.Environment{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, ok := payload.(map[string]interface{})
	if !ok || decoded["spf"] != "v=spf1 -all" {
		t.Errorf("found %v, want normalized map with spf field", payload)
	}
}

func TestLocal_Invoke_ScanError(t *testing.T) {
	reg := &module.Registration{
		Name: "dns",
		Scan: func(ctx context.Context, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}

	local := &Local{}

	if _, err := local.Invoke(context.Background(), reg, "example.com", module.Environment{}, nil); err == nil {
		t.Error("expected an error to propagate from Scan")
	}
}

func TestLocal_Invoke_HeadlessRequiresBridge(t *testing.T) {
	reg := &module.Registration{Name: "a11y", ScanHeadless: true}

	local := &Local{}

	if _, err := local.Invoke(context.Background(), reg, "example.com", module.Environment{}, nil); err == nil {
		t.Error("expected an error when a headless scanner has no bridge configured")
	}
}

func TestLocal_Invoke_NoScanFunc(t *testing.T) {
	reg := &module.Registration{Name: "noop"}

	local := &Local{}

	payload, err := local.Invoke(context.Background(), reg, "example.com", module.Environment{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Errorf("found %v, want nil payload for a scanner with no Scan hook", payload)
	}
}
