package scanners

import (
	"testing"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/advisor"
	fastcache "github.com/GlobalCyberAlliance/domainscan/pkg/cache"
	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

func TestStringField(t *testing.T) {
	m := map[string]interface{}{"spf": "v=spf1 -all", "mx": 42}

	if got := stringField(m, "spf"); got != "v=spf1 -all" {
		t.Errorf("found %q, want v=spf1 -all", got)
	}
	if got := stringField(m, "missing"); got != "" {
		t.Errorf("found %q, want empty string for a missing key", got)
	}
	if got := stringField(m, "mx"); got != "" {
		t.Errorf("found %q, want empty string for a non-string value", got)
	}
}

func TestSliceField(t *testing.T) {
	m := map[string]interface{}{
		"ns": []interface{}{"ns1.example.com", "ns2.example.com"},
	}

	got := sliceField(m, "ns")
	if len(got) != 2 || got[0] != "ns1.example.com" {
		t.Errorf("found %v, want [ns1.example.com ns2.example.com]", got)
	}

	if got := sliceField(m, "missing"); got != nil {
		t.Errorf("found %v, want nil for a missing key", got)
	}
}

func TestJoinStrings(t *testing.T) {
	if got := joinStrings([]string{"a", "b"}); got != "a|b" {
		t.Errorf("found %q, want a|b", got)
	}
	if got := joinStrings(nil); got != "" {
		t.Errorf("found %q, want empty string for no values", got)
	}
}

func TestSummarizeAdvice(t *testing.T) {
	advice := map[string][]string{
		"spf":   {"missing -all qualifier"},
		"dmarc": {"policy is p=none"},
	}

	got := summarizeAdvice(advice)
	if got != "dmarc: policy is p=none // spf: missing -all qualifier" {
		t.Errorf("found %q, want categories joined in fixed order", got)
	}
}

func TestNewDNSHardening_ToRows(t *testing.T) {
	reg := NewDNSHardening(nil, nil)

	if len(reg.Headers) != 7 {
		t.Fatalf("found %d headers without an advisor, want 7", len(reg.Headers))
	}

	payload := map[string]interface{}{
		"bimi":  "",
		"dkim":  "v=DKIM1; k=rsa",
		"dmarc": "v=DMARC1; p=reject",
		"mx":    []interface{}{"mx1.example.com"},
		"ns":    []interface{}{"ns1.example.com"},
		"spf":   "v=spf1 -all",
		"error": "",
	}

	rows := reg.ToRows(payload)
	if len(rows) != 1 {
		t.Fatalf("found %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row[2] != "v=DMARC1; p=reject" || row[3] != "mx1.example.com" || row[5] != "v=spf1 -all" {
		t.Errorf("found %v, want fields mapped in header order", row)
	}
}

func TestNewDNSHardening_ToRows_NonMapPayload(t *testing.T) {
	reg := NewDNSHardening(nil, nil)

	if rows := reg.ToRows("not a map"); rows != nil {
		t.Errorf("found %v, want nil rows for an unexpected payload type", rows)
	}
}

func TestNewDNSHardening_Init_SeedsFastCache(t *testing.T) {
	adv := advisor.NewAdvisor(time.Second, false, false)
	reg := NewDNSHardening(nil, adv)

	if reg.Init == nil {
		t.Fatal("expected an Init hook when an advisor is configured")
	}

	delta, ok := reg.Init(module.Environment{}, nil)
	if !ok {
		t.Fatal("expected Init to succeed")
	}

	if _, ok := delta[module.FastCacheKey].(*fastcache.FastCache[[]string]); !ok {
		t.Errorf("found %v, want a *FastCache[[]string] under FastCacheKey", delta[module.FastCacheKey])
	}
}

func TestNewDNSHardening_Init_NilWithoutAdvisor(t *testing.T) {
	reg := NewDNSHardening(nil, nil)

	if reg.Init != nil {
		t.Error("expected no Init hook when no advisor is configured")
	}
}

func TestMxAdvice_CacheHit(t *testing.T) {
	adv := advisor.NewAdvisor(time.Second, false, false)
	fc := fastcache.NewFastCache[[]string](time.Minute)

	sentinel := []string{"cached sentinel advice"}
	fc.Set(joinStrings([]string{"mx1.example.com."}), &sentinel)

	env := module.Environment{module.FastCacheKey: fc}

	got := mxAdvice(env, adv, []string{"mx1.example.com."})
	if len(got) != 1 || got[0] != "cached sentinel advice" {
		t.Errorf("found %v, want the cached sentinel advice instead of a fresh CheckMX computation", got)
	}
}

func TestMxAdvice_PopulatesCacheOnMiss(t *testing.T) {
	adv := advisor.NewAdvisor(time.Second, false, false)
	fc := fastcache.NewFastCache[[]string](time.Minute)
	env := module.Environment{module.FastCacheKey: fc}

	mx := []string{"mx1.example.com."}
	first := mxAdvice(env, adv, mx)

	cached := fc.Get(joinStrings(mx))
	if cached == nil {
		t.Fatal("expected mxAdvice to populate the fast cache on a miss")
	}
	if len(*cached) != len(first) {
		t.Errorf("cached advice %v does not match returned advice %v", *cached, first)
	}
}

func TestMxAdvice_NoFastCache(t *testing.T) {
	adv := advisor.NewAdvisor(time.Second, false, false)

	got := mxAdvice(module.Environment{}, adv, []string{"mx1.example.com."})
	if len(got) == 0 {
		t.Error("expected the direct CheckMX fallback to still return advice with no fast cache present")
	}
}
