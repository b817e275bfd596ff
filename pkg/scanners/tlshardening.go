package scanners

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	patrickmncache "github.com/patrickmn/go-cache"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

// TLSHardeningPayload is the JSON payload produced by the TLS hardening
// scanner.
type TLSHardeningPayload struct {
	Reachable bool   `json:"reachable"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewTLSHardening builds a module that dials port 443 on each domain and
// reports the negotiated TLS version, memoizing handshakes per host for
// cacheTTL so repeated domains within a run don't redial, the same
// memoization pattern the teacher's advisor applies to its own TLS checks.
func NewTLSHardening(dialer *net.Dialer, cacheTTL time.Duration) *module.Registration {
	handshakeCache := patrickmncache.New(cacheTTL, 2*cacheTTL)

	return &module.Registration{
		Name:    "tlshardening",
		Headers: []string{"Reachable", "TLS Version", "Error"},
		Scan: func(ctx context.Context, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
			if cached, ok := handshakeCache.Get(domain); ok {
				payload := cached.(TLSHardeningPayload)
				return payload, nil
			}

			payload := probeTLS(dialer, domain)
			handshakeCache.Set(domain, payload, patrickmncache.DefaultExpiration)

			return payload, nil
		},
		ToRows: func(payload interface{}) [][]string {
			p, ok := payload.(TLSHardeningPayload)
			if !ok {
				if m, ok := payload.(map[string]interface{}); ok {
					p = TLSHardeningPayload{
						Reachable: boolField(m, "reachable"),
						Version:   stringField(m, "version"),
						Error:     stringField(m, "error"),
					}
				} else {
					return nil
				}
			}

			return [][]string{{boolString(p.Reachable), p.Version, p.Error}}
		},
	}
}

func probeTLS(dialer *net.Dialer, domain string) TLSHardeningPayload {
	conn, err := tls.DialWithDialer(dialer, "tcp", domain+":443", nil)
	if err != nil {
		return TLSHardeningPayload{Reachable: false, Error: err.Error()}
	}
	defer conn.Close()

	return TLSHardeningPayload{Reachable: true, Version: tlsVersionName(conn.ConnectionState().Version)}
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}

func boolField(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
