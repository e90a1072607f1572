package store

import (
	"fmt"
	"strings"
)

const AdviceSummaryLimit = 10

// AdviceSummary joins advice texts into "[Advice for <domain>: a; b]", or ""
// when entries is empty.
func AdviceSummary(domain string, entries []AdviceEntry) string {
	if len(entries) == 0 {
		return ""
	}
	texts := make([]string, 0, len(entries))
	for _, entry := range entries {
		texts = append(texts, entry.Advice)
	}
	return fmt.Sprintf("[Advice for %s: %s]", NormalizeDomain(domain), strings.Join(texts, "; "))
}
