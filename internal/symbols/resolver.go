// Package symbols reconciles instrument identifiers across quoting
// conventions. Brokers report positions as concatenated pairs (BTCUSD),
// data feeds use slash or dash notation (BTC/USD, BTC-USD), and quote
// currencies may be aliased (USDT treated as USD). The resolver maps all
// of these onto one canonical form.
package symbols

import (
	"sort"
	"strings"
)

// Resolver canonicalizes raw symbols and generates broker-side candidate
// forms for matching returned positions back to tracked instruments.
type Resolver interface {
	// Canonicalize normalizes a raw symbol to its canonical form.
	Canonicalize(raw string) string
	// Candidates returns the ordered raw forms to probe when matching a
	// canonical symbol against an external system. The first candidate is
	// always the canonical form itself.
	Candidates(canonical string) []string
	// IsPair reports whether the symbol is a currency pair rather than a
	// plain equity ticker.
	IsPair(symbol string) bool
}

// ResolverConfig controls alias handling.
type ResolverConfig struct {
	// QuoteAliases maps alias quote currencies to their canonical
	// counterpart, e.g. {"USDT": "USD"}. Empty means no aliasing.
	QuoteAliases map[string]string `json:"quote_aliases" yaml:"quote_aliases"`
}

// DefaultResolverConfig treats USDT-quoted pairs as equivalent to their
// USD-quoted counterparts, matching the broker's quoting convention.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		QuoteAliases: map[string]string{
			"USDT": "USD",
		},
	}
}

// knownQuotes are the quote currencies recognized when splitting
// concatenated pair forms. Longer entries are checked first so USDT and
// USDC are not mistaken for USD.
var knownQuotes = []string{"USDT", "USDC", "USD", "EUR", "GBP", "BTC", "ETH"}

// ResolverV1 implements Resolver. It is stateless beyond its configuration
// so repeated reconciliation passes are deterministic.
type ResolverV1 struct {
	config ResolverConfig
}

// NewResolver creates a resolver with the given configuration.
func NewResolver(config ResolverConfig) *ResolverV1 {
	return &ResolverV1{config: config}
}

// Canonicalize implements Resolver. Pairs normalize to upper-case
// BASE/QUOTE with quote aliases applied; anything that cannot be split
// into a recognized pair is treated as a plain ticker.
func (r *ResolverV1) Canonicalize(raw string) string {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return ""
	}

	base, quote, ok := r.split(symbol)
	if !ok {
		return symbol
	}

	if alias, found := r.config.QuoteAliases[quote]; found {
		quote = alias
	}

	return base + "/" + quote
}

// Candidates implements Resolver. For pairs it yields the canonical form
// followed by the concatenated, dashed, and alias-expanded variants; for
// plain tickers the ticker itself is the only candidate.
func (r *ResolverV1) Candidates(canonical string) []string {
	symbol := strings.ToUpper(strings.TrimSpace(canonical))

	base, quote, ok := r.split(symbol)
	if !ok {
		return []string{symbol}
	}

	candidates := []string{
		base + "/" + quote,
		base + quote,
		base + "-" + quote,
	}

	// Probe the alias forms too: a position held as BTCUSDT must match a
	// tracked BTC/USD when the alias is configured. Alias keys are sorted
	// so repeated reconciliation passes probe in the same order.
	aliases := make([]string, 0, len(r.config.QuoteAliases))
	for alias, target := range r.config.QuoteAliases {
		if target == quote {
			aliases = append(aliases, alias)
		}
	}

	sort.Strings(aliases)

	for _, alias := range aliases {
		candidates = append(candidates,
			base+"/"+alias,
			base+alias,
			base+"-"+alias,
		)
	}

	return candidates
}

// IsPair implements Resolver.
func (r *ResolverV1) IsPair(symbol string) bool {
	_, _, ok := r.split(strings.ToUpper(strings.TrimSpace(symbol)))

	return ok
}

// split breaks a symbol into base and quote. Explicit separators always
// win; concatenated forms are split on a recognized quote suffix only when
// a plausible base remains, so plain tickers like MSFT stay whole.
func (r *ResolverV1) split(symbol string) (base, quote string, ok bool) {
	for _, sep := range []string{"/", "-"} {
		if idx := strings.Index(symbol, sep); idx > 0 {
			return symbol[:idx], symbol[idx+len(sep):], true
		}
	}

	for _, q := range knownQuotes {
		if !strings.HasSuffix(symbol, q) {
			continue
		}

		b := strings.TrimSuffix(symbol, q)
		if len(b) >= 2 && len(b) <= 5 {
			return b, q, true
		}
	}

	return "", "", false
}

// Verify ResolverV1 implements the Resolver interface.
var _ Resolver = (*ResolverV1)(nil)
