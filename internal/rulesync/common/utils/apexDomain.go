package utils

import "golang.org/x/net/publicsuffix"

// ApexDomain returns the registrable domain (eTLD+1) for name. When the
// public suffix list cannot place the name, the canonical name is returned.
func ApexDomain(name string) string {
	name = CanonicalHostname(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
