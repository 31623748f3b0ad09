package phone

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultBannedCodes are calling codes of countries other than Singapore that
// show up as the first digits of 10-digit numbers on Singapore business pages.
var defaultBannedCodes = []string{
	"1", "7",
	"20", "27", "30", "31", "32", "33", "34", "36", "39",
	"40", "41", "43", "44", "45", "46", "47", "48", "49",
	"51", "52", "53", "54", "55", "56", "57", "58",
	"60", "61", "62", "63", "64", "66",
	"81", "82", "84", "86",
	"90", "91", "92", "93", "94", "95", "98",
	"212", "213", "216", "220", "234", "254", "255", "260",
	"351", "352", "353", "354", "358",
	"370", "371", "372", "373", "374", "375", "376", "377", "378",
	"380", "381", "382", "385", "386", "387", "389",
	"420", "421", "423",
	"500", "501", "502", "503", "504", "505", "506", "507", "508", "509",
	"590", "591", "592", "593", "594", "595", "596", "597", "598", "599",
	"670", "672", "673", "674", "675", "676", "677", "678", "679",
	"680", "681", "682", "683", "685", "686", "687", "688", "689",
	"690", "691", "692",
	"850", "852", "853", "855", "856", "880", "886",
	"960", "961", "962", "963", "964", "965", "966", "967", "968",
	"970", "971", "972", "973", "974", "975", "976", "977",
}

// DefaultBannedCodes returns a copy of the built-in banned calling codes.
func DefaultBannedCodes() []string {
	out := make([]string, len(defaultBannedCodes))
	copy(out, defaultBannedCodes)
	return out
}

// CodeSet is a set of calling-code prefixes of length 1 to 3.
type CodeSet map[string]struct{}

// NewCodeSet builds a CodeSet, ignoring blanks, non-digit entries and entries
// longer than three digits.
func NewCodeSet(codes []string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, c := range codes {
		c = strings.TrimPrefix(strings.TrimSpace(c), "+")
		if c == "" || len(c) > 3 || !isDigits(c) {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// MatchPrefix reports the banned code that digits starts with, if any.
func (s CodeSet) MatchPrefix(digits string) (string, bool) {
	for n := 1; n <= 3 && n <= len(digits); n++ {
		if _, ok := s[digits[:n]]; ok {
			return digits[:n], true
		}
	}
	return "", false
}

// Codes returns the set contents sorted by length then value.
func (s CodeSet) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// codesFile is the on-disk shape of a banned-code override file.
//
//	replace: false
//	codes: ["852", "853"]
type codesFile struct {
	Replace bool     `yaml:"replace"`
	Codes   []string `yaml:"codes"`
}

// LoadBannedCodes reads a YAML code list. Unless the file sets replace: true
// its codes are added to the built-in list.
func LoadBannedCodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "phone: read banned codes %s", path)
	}

	var f codesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "phone: parse banned codes %s", path)
	}

	if f.Replace {
		return f.Codes, nil
	}
	return append(DefaultBannedCodes(), f.Codes...), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
