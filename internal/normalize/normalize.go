// Package normalize canonicalizes free-text utility provider names so that
// answers from independent sources can be compared by identity.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NoService is the distinguished identity returned for values that mean
// "this location has no provider in this category" (propane, private well,
// and similar sentinels). It never competes with real candidates.
const NoService = "NO_SERVICE"

// legalSuffixes lists common legal entity suffixes to strip during cleanup.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " L.P",
	" LLP", " L.L.P.", " L.L.P",
	" CO", " CO.", " COMPANY",
	" COOP", " CO-OP", " COOPERATIVE",
	" EMC", " E.M.C.",
	" PLC", " P.L.C.",
	" DBA", " D/B/A",
}

// noServiceSentinels are cleaned forms that mean "no provider serves this
// location" rather than naming a provider.
var noServiceSentinels = map[string]struct{}{
	"NONE":            {},
	"N/A":             {},
	"NA":              {},
	"NOT APPLICABLE":  {},
	"NO SERVICE":      {},
	"NO PROVIDER":     {},
	"PROPANE":         {},
	"PRIVATE WELL":    {},
	"WELL":            {},
	"WELL WATER":      {},
	"SEPTIC":          {},
	"SELF SUPPLIED":   {},
	"BOTTLED GAS":     {},
	"NO GAS SERVICE":  {},
	"OFF GRID":        {},
	"NOT SERVED":      {},
	"OUTSIDE SERVICE": {},
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

var upper = cases.Upper(language.AmericanEnglish)

// Normalizer maps raw provider strings to canonical identities. Alias
// tables are category-scoped because the same raw string can mean different
// things in different categories. Read-only after construction.
type Normalizer struct {
	// aliases: category -> cleaned raw form -> canonical identity.
	aliases map[string]map[string]string
}

// New builds a Normalizer from category-scoped alias tables
// (category -> raw -> canonical). Keys are cleaned on load so lookups are
// insensitive to case, punctuation, and legal suffixes. Every canonical
// value also maps to itself, which keeps normalization idempotent.
func New(tables map[string]map[string]string) *Normalizer {
	n := &Normalizer{aliases: make(map[string]map[string]string, len(tables))}
	for cat, table := range tables {
		m := make(map[string]string, len(table)*2)
		for raw, canonical := range table {
			m[Clean(raw)] = canonical
			m[Clean(canonical)] = canonical
		}
		n.aliases[cat] = m
	}
	return n
}

// Normalize returns the canonical identity for a raw provider string within
// a category. Resolution order: no-service sentinel, category alias table,
// cleaned raw form. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(category, raw string) string {
	identity, _ := n.Lookup(category, raw)
	return identity
}

// Lookup is Normalize plus an aliased flag: false means no alias matched and
// the cleaned raw form became its own identity. Callers log unaliased names
// for alias-table improvement; the miss itself is never fatal.
func (n *Normalizer) Lookup(category, raw string) (identity string, aliased bool) {
	if raw == NoService {
		return NoService, true
	}

	cleaned := Clean(raw)
	if cleaned == "" {
		return NoService, true
	}
	if _, ok := noServiceSentinels[cleaned]; ok {
		return NoService, true
	}

	if table, ok := n.aliases[category]; ok {
		if canonical, ok := table[cleaned]; ok {
			return canonical, true
		}
	}

	return cleaned, false
}

// IsNoService reports whether an identity is the no-service sentinel.
func IsNoService(identity string) bool {
	return identity == NoService
}

// Clean standardizes a provider name for matching:
//  1. Trim whitespace
//  2. Uppercase
//  3. Strip one trailing legal suffix (LLC, Inc, Co-op, ...)
//  4. Strip punctuation, fold "&" to "AND"
//  5. Collapse runs of spaces
//
// Clean runs to a fixpoint so that cleaning an already-clean string is a
// no-op; identities fall out idempotent.
func Clean(name string) string {
	for i := 0; i < 4; i++ {
		next := cleanOnce(name)
		if next == name {
			return name
		}
		name = next
	}
	return name
}

func cleanOnce(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = upper.String(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
		"(", " ",
		")", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
