package phone

import "regexp"

// Body-text patterns. Bare local numbers are deliberately not matched: a
// pattern like [689]\d{3}-\d{4} also matches the tail of "(+852) 6150-9118".
var textPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+65[\s\-.]?[689]\d{3}[\s\-.]?\d{4}`),
	regexp.MustCompile(`\(\+65\)[\s\-.]?[689]\d{3}[\s\-.]?\d{4}`),
	regexp.MustCompile(`\b65[\s\-][689]\d{3}[\s\-.]?\d{4}\b`),
}

// FindCandidates returns the raw phone-like substrings of text that match the
// explicit Singapore patterns, in pattern order. Matches are not validated.
func FindCandidates(text string) []string {
	var out []string
	for _, re := range textPatterns {
		out = append(out, re.FindAllString(text, -1)...)
	}
	return out
}
