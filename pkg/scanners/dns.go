// Package scanners provides the concrete scanner modules this repository
// ships: DNS/mail-posture hardening, TLS hardening, and HTML accessibility.
// Each is a plain *module.Registration, built the way the spec's Design
// Notes ask — capabilities declared at construction, never probed for.
package scanners

import (
	"context"
	"strings"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/advisor"
	fastcache "github.com/GlobalCyberAlliance/domainscan/pkg/cache"
	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/GlobalCyberAlliance/domainscan/pkg/scanner"
)

// mxAdviceCacheTTL bounds how long a run's shared MX-provider advice
// lookup keeps an entry before a fresh CheckMX re-dial is allowed.
const mxAdviceCacheTTL = 10 * time.Minute

// NewDNSHardening wraps the DNS scanning engine (BIMI/DKIM/DMARC/MX/NS/SPF)
// as a scanner module. When adv is non-nil, Scan attaches posture advice
// for each record that ToRows folds into an Advice column. Init seeds the
// Environment's fast cache with a table memoizing CheckMX's advice (which
// includes a live TLS handshake against every mail server) by the MX
// record set, so domains that share a mail provider within the same run
// don't repeat the same handshakes.
func NewDNSHardening(sc *scanner.Scanner, adv *advisor.Advisor) *module.Registration {
	headers := []string{"BIMI", "DKIM", "DMARC", "MX", "NS", "SPF", "Error"}
	if adv != nil {
		headers = append(headers, "Advice")
	}

	reg := &module.Registration{
		Name:    "dns",
		Headers: headers,
		Scan: func(ctx context.Context, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
			results, err := sc.Scan(domain)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return nil, nil
			}

			result := results[0]

			payload := map[string]interface{}{
				"domain": result.Domain,
				"bimi":   result.BIMI,
				"dkim":   result.DKIM,
				"dmarc":  result.DMARC,
				"mx":     result.MX,
				"ns":     result.NS,
				"spf":    result.SPF,
				"error":  result.Error,
			}

			if adv != nil {
				payload["advice"] = summarizeAdvice(map[string][]string{
					"bimi":   adv.CheckBIMI(result.BIMI),
					"dkim":   adv.CheckDKIM(result.DKIM),
					"dmarc":  adv.CheckDMARC(result.DMARC),
					"domain": adv.CheckDomain(result.Domain, adv.ChecksTLS()),
					"mx":     mxAdvice(env, adv, result.MX),
					"spf":    adv.CheckSPF(result.SPF),
				})
			}

			return payload, nil
		},
		ToRows: func(payload interface{}) [][]string {
			fields, ok := payload.(map[string]interface{})
			if !ok {
				return nil
			}

			row := []string{
				stringField(fields, "bimi"),
				stringField(fields, "dkim"),
				stringField(fields, "dmarc"),
				joinStrings(sliceField(fields, "mx")),
				joinStrings(sliceField(fields, "ns")),
				stringField(fields, "spf"),
				stringField(fields, "error"),
			}

			if adv != nil {
				row = append(row, stringField(fields, "advice"))
			}

			return [][]string{row}
		},
	}

	if adv != nil {
		reg.Init = func(env module.Environment, opts map[string]interface{}) (module.Environment, bool) {
			return module.Environment{
				module.FastCacheKey: fastcache.NewFastCache[[]string](mxAdviceCacheTTL),
			}, true
		}
	}

	return reg
}

// mxAdvice returns adv.CheckMX's advice for mx, consulting the scanner's
// shared fast cache (keyed by the exact MX record set) before dialing any
// mail server, and populating it on a miss.
func mxAdvice(env module.Environment, adv *advisor.Advisor, mx []string) []string {
	fc, _ := env[module.FastCacheKey].(*fastcache.FastCache[[]string])
	if fc == nil {
		return adv.CheckMX(mx, adv.ChecksTLS())
	}

	key := joinStrings(mx)

	if cached := fc.Get(key); cached != nil {
		return *cached
	}

	advice := adv.CheckMX(mx, adv.ChecksTLS())
	fc.Set(key, &advice)

	return advice
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func sliceField(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func joinStrings(values []string) string {
	return strings.Join(values, "|")
}

func summarizeAdvice(advice map[string][]string) string {
	var lines []string
	for _, category := range []string{"bimi", "dkim", "dmarc", "domain", "mx", "spf"} {
		for _, line := range advice[category] {
			lines = append(lines, category+": "+line)
		}
	}
	return strings.Join(lines, " // ")
}
