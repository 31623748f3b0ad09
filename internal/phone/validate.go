// Package phone validates Singapore telephone numbers found in scraped text.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/unicode/norm"
)

const (
	// CountryCode is the Singapore calling code.
	CountryCode = "65"
	// Prefix is prepended to every validated number.
	Prefix = "+" + CountryCode
	// Region is the numbering plan region used for strict checks.
	Region = "SG"
)

var (
	localRe     = regexp.MustCompile(`^[689]\d{7}$`)
	canonicalRe = regexp.MustCompile(`^\+65[689]\d{7}$`)
)

// Validator maps raw phone-like text to a canonical +65 number.
type Validator struct {
	banned CodeSet
	strict bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithBannedCodes replaces the banned calling-code list.
func WithBannedCodes(codes []string) Option {
	return func(v *Validator) {
		v.banned = NewCodeSet(codes)
	}
}

// WithStrict additionally requires libphonenumber to accept the result as a
// valid Singapore number.
func WithStrict(strict bool) Option {
	return func(v *Validator) {
		v.strict = strict
	}
}

// NewValidator creates a Validator using the built-in banned codes unless
// overridden.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{banned: NewCodeSet(defaultBannedCodes)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = NewValidator()

// Validate checks raw with the default validator.
func Validate(raw string) (string, bool) {
	return defaultValidator.Validate(raw)
}

// Validate returns "+65" followed by eight digits when raw is a Singapore
// number, and false otherwise.
//
// Only 8 and 10 digit inputs are considered. At 10 digits the leading calling
// code is checked against the banned list before the 65 prefix is accepted,
// so foreign numbers whose tail looks local (e.g. 852 9123456x) are rejected.
func (v *Validator) Validate(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	digits := Digits(raw)

	var local string
	switch len(digits) {
	case 8:
		local = digits
	case 10:
		if _, banned := v.banned.MatchPrefix(digits); banned {
			return "", false
		}
		if digits[:2] != CountryCode {
			return "", false
		}
		local = digits[2:]
	default:
		return "", false
	}

	if !localRe.MatchString(local) {
		return "", false
	}

	out := Prefix + local
	if v.strict && !isValidForRegion(out) {
		return "", false
	}
	return out, true
}

// Canonical reports whether s is already in validated form.
func Canonical(s string) bool {
	return canonicalRe.MatchString(s)
}

// Digits returns the ASCII digits of s after NFKC normalization, so that
// full-width digits count as digits.
func Digits(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ValidateAll validates every candidate and returns the distinct valid numbers
// in first-seen order, or nil when none validate.
func (v *Validator) ValidateAll(candidates []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		p, ok := v.Validate(c)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func isValidForRegion(e164 string) bool {
	num, err := phonenumbers.Parse(e164, Region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumberForRegion(num, Region)
}
