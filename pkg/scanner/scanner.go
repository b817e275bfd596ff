package scanner

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrInvalidDomain is returned (as Result.Error) when a supplied name
// isn't a syntactically valid domain.
const ErrInvalidDomain = "invalid domain"

// Option configures a *Scanner.
type Option func(*Scanner) error

type cachedResult struct {
	expiry time.Time
	result *Result
}

// Scanner queries the DNS records of one or more domains for the record
// types a caller's scanners care about, fanning work out across a bounded
// pool of goroutines.
type Scanner struct {
	cacheDuration time.Duration
	cacheMutex    sync.Mutex
	cacheResults  map[string]cachedResult

	dkimSelectors []string
	dnsBuffer     uint16
	dnsClient     *dns.Client
	logger        zerolog.Logger
	nameservers   []string
	nsidx         uint32
	poolSize      uint16
	timeout       time.Duration
}

// New builds a *Scanner that logs through logger and bounds every DNS
// exchange to timeout, applying each Option in order.
func New(logger zerolog.Logger, timeout time.Duration, options ...Option) (*Scanner, error) {
	s := &Scanner{
		cacheResults: make(map[string]cachedResult),
		dnsBuffer:    4096,
		dnsClient:    &dns.Client{Timeout: timeout, SingleInflight: true},
		logger:       logger,
		nameservers:  []string{"8.8.8.8:53", "8.8.4.4:53", "1.1.1.1:53"},
		poolSize:     uint16(runtime.NumCPU()),
		timeout:      timeout,
	}

	for _, option := range options {
		if option == nil {
			return nil, fmt.Errorf("invalid option")
		}

		if err := option(s); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	return s, nil
}

// WithDNSProtocol selects the transport ("udp", "tcp", or "tcp-tls") used
// for DNS exchanges.
func WithDNSProtocol(protocol string) Option {
	return func(s *Scanner) error {
		switch protocol {
		case "", "udp", "tcp", "tcp-tls":
			s.dnsClient.Net = protocol
			return nil
		default:
			return fmt.Errorf("unsupported DNS protocol: %s", protocol)
		}
	}
}

func (s *Scanner) getNS() string {
	if len(s.nameservers) == 1 {
		return s.nameservers[0]
	}

	return s.nameservers[int(atomic.AddUint32(&s.nsidx, 1))%len(s.nameservers)]
}

// Scan resolves the requested record set for each of domains, running up
// to poolSize lookups concurrently.
func (s *Scanner) Scan(domains ...string) ([]*Result, error) {
	results := make([]*Result, len(domains))

	sem := make(chan struct{}, maxInt(int(s.poolSize), 1))
	var wg sync.WaitGroup

	for i, domain := range domains {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, domain string) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = s.scanOne(domain)
		}(i, domain)
	}

	wg.Wait()

	return results, nil
}

// ScanZone reads domain names from an RFC 1035 zone file and scans each
// one, skipping bare NS anchor records.
func (s *Scanner) ScanZone(r io.Reader) ([]*Result, error) {
	z := dns.NewZoneParser(r, "", "")
	z.SetIncludeAllowed(true)

	var domains []string
	seen := make(map[string]struct{})

	for tok, ok := z.Next(); ok; tok, ok = z.Next() {
		if tok.Header().Rrtype == dns.TypeNS {
			continue
		}

		name := strings.Trim(tok.Header().Name, ".")
		if !strings.Contains(name, ".") {
			continue
		}

		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		domains = append(domains, name)
	}

	if err := z.Err(); err != nil {
		return nil, errors.Wrap(err, "parse zone file")
	}

	return s.Scan(domains...)
}

// ScanTextFile reads newline-separated domain names from r and scans each.
func (s *Scanner) ScanTextFile(r io.Reader) ([]*Result, error) {
	var domains []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.Trim(sc.Text(), ". \t")
		if name == "" {
			continue
		}

		domains = append(domains, name)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return s.Scan(domains...)
}

func (s *Scanner) scanOne(domain string) *Result {
	domain = strings.Trim(strings.ToLower(domain), ".")

	if !isValidDomain(domain) {
		return &Result{Domain: domain, Error: ErrInvalidDomain}
	}

	if s.cacheDuration > 0 {
		s.cacheMutex.Lock()
		cached, ok := s.cacheResults[domain]
		s.cacheMutex.Unlock()

		if ok && time.Since(cached.expiry) < s.cacheDuration {
			return cached.result
		}
	}

	start := time.Now()
	res := &Result{Domain: domain}

	if err := s.GetDNSRecords(res, "BIMI", "DKIM", "DMARC", "MX", "NS", "SPF"); err != nil {
		res.Error = err.Error()
	}

	res.Duration = time.Since(start)

	if s.cacheDuration > 0 {
		s.cacheMutex.Lock()
		s.cacheResults[domain] = cachedResult{expiry: time.Now(), result: res}
		s.cacheMutex.Unlock()
	}

	return res
}

func isValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}

	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
	}

	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
