package module

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// BaseDomain derives the registrable suffix (the "Base Domain") of domain
// via the public-suffix list. The dispatcher treats this as an opaque
// pure function, per the Domain/Base Domain contract.
func BaseDomain(domain string) (string, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(domain), ".")

	base, err := publicsuffix.EffectiveTLDPlusOne(trimmed)
	if err != nil {
		return trimmed, err
	}

	return base, nil
}
