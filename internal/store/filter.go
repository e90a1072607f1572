package store

import "strings"

// Normalize lowercases the filters and clamps the limit.
func (f SearchFilter) Normalize() SearchFilter {
	return SearchFilter{
		Domain:      NormalizeDomain(f.Domain),
		URLContains: strings.ToLower(strings.TrimSpace(f.URLContains)),
		Limit:       ClampLimit(f.Limit, DefaultSearchLimit, MaxSearchLimit),
	}
}

func (f AdviceFilter) Normalize() AdviceFilter {
	return AdviceFilter{
		Domain: NormalizeDomain(f.Domain),
		Limit:  ClampLimit(f.Limit, DefaultSearchLimit, MaxSearchLimit),
	}
}

// MatchesDomain applies the case-insensitive partial domain match to a
// request. A request without a domain only matches an empty filter.
func (f SearchFilter) MatchesDomain(req ScrapeRequest) bool {
	if f.Domain == "" {
		return true
	}
	if req.Domain == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*req.Domain), f.Domain)
}

// MatchesURL reports whether any step URL contains the filter substring.
func (f SearchFilter) MatchesURL(steps []Step) bool {
	if f.URLContains == "" {
		return true
	}
	for _, step := range steps {
		if strings.Contains(strings.ToLower(step.URL), f.URLContains) {
			return true
		}
	}
	return false
}

// EscapeLike escapes LIKE wildcards using backslash as the escape character.
func EscapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
