package rules

// GenerateOptions controls the rule built by Generate.
type GenerateOptions struct {
	// Allow builds an exception ("@@") rule instead of a block rule.
	Allow bool
	// Important appends the $important modifier.
	Important bool
}

// Generate builds a domain rule for hostname. The hostname is expected to be
// validated already (see hostname.Parse).
func Generate(hostname string, opts GenerateOptions) string {
	rule := blockPrefix + hostname + "^"
	if opts.Allow {
		rule = allowPrefix + rule
	}
	if opts.Important {
		rule += "$important"
	}
	return rule
}
