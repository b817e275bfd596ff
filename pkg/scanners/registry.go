package scanners

import (
	"net"
	"net/http"
	"time"

	"github.com/GlobalCyberAlliance/domainscan/pkg/advisor"
	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
	"github.com/GlobalCyberAlliance/domainscan/pkg/scanner"
)

// BuildOptions carries the collaborators All builds every scanner module
// with.
type BuildOptions struct {
	DNSScanner *scanner.Scanner
	Advisor    *advisor.Advisor

	DialTimeout   time.Duration
	TLSCacheTTL   time.Duration
	HTTPTimeout   time.Duration
}

// All returns every scanner module this repository ships, in a stable
// order: dns, tlshardening, htmla11y.
func All(opts BuildOptions) []*module.Registration {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}

	return []*module.Registration{
		NewDNSHardening(opts.DNSScanner, opts.Advisor),
		NewTLSHardening(dialer, opts.TLSCacheTTL),
		NewHTMLA11Y(&http.Client{Timeout: opts.HTTPTimeout}, opts.HTTPTimeout),
	}
}
