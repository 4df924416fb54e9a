package threads

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle reduces a product title to a comparison form: NFKC,
// case folded, trimmed, inner whitespace collapsed.
func NormalizeTitle(title string) string {
	// Casers are stateful; one per call keeps this safe for concurrent use.
	title = cases.Fold().String(norm.NFKC.String(title))
	return strings.Join(strings.Fields(title), " ")
}
