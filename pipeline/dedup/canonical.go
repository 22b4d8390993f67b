// Package dedup gives every posting a stable identity. The same job seen
// on three boards canonicalizes to the same triple and therefore the same
// fingerprint; postings that genuinely differ (a seniority suffix in the
// title, another city) stay distinct. There is no fuzzy matching.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/teranos/pursuit/am/geotime"
)

// fingerprintSeparator joins the triple before hashing. Normalization
// removes '|' from every component, so the joined form is unambiguous.
const fingerprintSeparator = "|"

// corporateSuffixes are legal-form tokens stripped from the end of company
// names. "Acme GmbH" and "Acme" are the same employer; "Costa Coffee"
// keeps its "co" because only trailing tokens are dropped.
var corporateSuffixes = map[string]bool{
	"inc":          true,
	"llc":          true,
	"ltd":          true,
	"gmbh":         true,
	"bv":           true,
	"corp":         true,
	"co":           true,
	"plc":          true,
	"sa":           true,
	"ag":           true,
	"limited":      true,
	"incorporated": true,
}

// Canonical is a posting's normalized identity. Company, Title and
// Location are the case-folded, punctuation-free forms; Region is the
// coarse location token the fingerprint actually uses.
type Canonical struct {
	Company  string
	Title    string
	Location string
	Region   string
}

// Canonicalize normalizes the identifying fields of a raw posting:
// case-fold, strip punctuation, collapse whitespace, and drop trailing
// corporate legal suffixes from the company. The location additionally
// resolves to a coarse region token via the geotime keyword table;
// locations the table does not know keep their normalized string, so
// two spellings of an unknown city still merge.
func Canonicalize(company, title, location string) Canonical {
	c := Canonical{
		Company:  stripCorporateSuffixes(normalize(company)),
		Title:    normalize(title),
		Location: normalize(location),
	}

	if tz := geotime.GuessTimezoneFromLocation(location); tz != "" {
		c.Region = tz
	} else {
		c.Region = c.Location
	}
	return c
}

// Fingerprint hashes the canonical triple. Identical triples always
// produce identical fingerprints; the title keeps seniority suffixes, so
// "engineer" and "senior engineer" never merge.
func Fingerprint(c Canonical) string {
	sum := sha256.Sum256([]byte(c.Company + fingerprintSeparator + c.Title + fingerprintSeparator + c.Region))
	return hex.EncodeToString(sum[:])
}

// normalize case-folds, replaces every non-alphanumeric rune with a space,
// and collapses the result to single-spaced tokens.
func normalize(s string) string {
	lowered := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(lowered), " ")
}

// stripCorporateSuffixes drops trailing legal-form tokens from an already
// normalized company name, keeping at least one token.
func stripCorporateSuffixes(company string) string {
	tokens := strings.Fields(company)
	for len(tokens) > 1 && corporateSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
