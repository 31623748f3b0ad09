package phone

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "bare mobile", raw: "91234567", want: "+6591234567", ok: true},
		{name: "spaced with plus", raw: "+65 9123 4567", want: "+6591234567", ok: true},
		{name: "ten digits with 65", raw: "6591234567", want: "+6591234567", ok: true},
		{name: "parenthesized", raw: "(+65) 6123-4567", want: "+6561234567", ok: true},
		{name: "dotted landline", raw: "6123.4567", want: "+6561234567", ok: true},
		{name: "starts with 8", raw: "8123 4567", want: "+6581234567", ok: true},
		{name: "tel prefix", raw: "tel:+6598765432", want: "+6598765432", ok: true},
		{name: "full width digits", raw: "９１２３４５６７", want: "+6591234567", ok: true},
		{name: "hong kong ten digits", raw: "8529123456"},
		{name: "hong kong eleven digits", raw: "85291234567"},
		{name: "macau", raw: "853 9123 456"},
		{name: "malaysia", raw: "+60 91234567"},
		{name: "bad leading digit", raw: "12345678"},
		{name: "seven digits", raw: "9123456"},
		{name: "nine digits", raw: "659123456"},
		{name: "eleven digits", raw: "+65 9123 45678"},
		{name: "ten digits not 65", raw: "6891234567"},
		{name: "65 prefix but bad local", raw: "6571234567"},
		{name: "empty", raw: ""},
		{name: "whitespace", raw: "   "},
		{name: "letters only", raw: "call us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Validate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	inputs := []string{
		"91234567", "+65 9123 4567", "6591234567", "8529123456",
		"12345678", "", "(+65) 6123-4567", "garbage", "+6581234567",
	}
	for _, in := range inputs {
		first, ok := Validate(in)
		second, ok2 := Validate(first)
		assert.Equal(t, ok, ok2, "input %q", in)
		assert.Equal(t, first, second, "input %q", in)
		if ok {
			assert.True(t, Canonical(first))
		}
	}
}

func TestValidator_CustomBannedCodes(t *testing.T) {
	// A validator with no banned codes still rejects non-65 ten-digit numbers.
	v := NewValidator(WithBannedCodes(nil))
	_, ok := v.Validate("8529123456")
	assert.False(t, ok)

	got, ok := v.Validate("6591234567")
	assert.True(t, ok)
	assert.Equal(t, "+6591234567", got)
}

func TestValidator_Strict(t *testing.T) {
	v := NewValidator(WithStrict(true))
	got, ok := v.Validate("+65 6595 6868")
	assert.True(t, ok)
	assert.Equal(t, "+6565956868", got)

	_, ok = v.Validate("12345678")
	assert.False(t, ok)
}

func TestValidator_ValidateAll(t *testing.T) {
	v := NewValidator()
	got := v.ValidateAll([]string{"91234567", "+65 9123 4567", "bogus", "61234567"})
	assert.Equal(t, []string{"+6591234567", "+6561234567"}, got)

	assert.Nil(t, v.ValidateAll([]string{"bogus", ""}))
	assert.Nil(t, v.ValidateAll(nil))
}

func TestCodeSet_MatchPrefix(t *testing.T) {
	set := NewCodeSet([]string{"1", "+44", "852", "", "abc", "1234"})

	code, ok := set.MatchPrefix("8529123456")
	assert.True(t, ok)
	assert.Equal(t, "852", code)

	code, ok = set.MatchPrefix("4420123456")
	assert.True(t, ok)
	assert.Equal(t, "44", code)

	_, ok = set.MatchPrefix("6591234567")
	assert.False(t, ok)

	assert.Equal(t, []string{"1", "44", "852"}, set.Codes())
}

func TestDefaultBannedCodes_ExcludesSingapore(t *testing.T) {
	set := NewCodeSet(DefaultBannedCodes())
	_, ok := set.MatchPrefix("65")
	assert.False(t, ok)
	_, ok = set.MatchPrefix("852")
	assert.True(t, ok)
}

func TestLoadBannedCodes(t *testing.T) {
	dir := t.TempDir()

	extend := filepath.Join(dir, "extend.yaml")
	require.NoError(t, os.WriteFile(extend, []byte("codes: [\"999\"]\n"), 0o644))
	codes, err := LoadBannedCodes(extend)
	require.NoError(t, err)
	assert.Contains(t, codes, "999")
	assert.Contains(t, codes, "852")

	replace := filepath.Join(dir, "replace.yaml")
	require.NoError(t, os.WriteFile(replace, []byte("replace: true\ncodes: [\"999\"]\n"), 0o644))
	codes, err = LoadBannedCodes(replace)
	require.NoError(t, err)
	assert.Equal(t, []string{"999"}, codes)

	_, err = LoadBannedCodes(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFindCandidates(t *testing.T) {
	text := `Call +65 9123 4567 or (+65) 6123-4567.
Hotline: 65 8123 4567. Hong Kong office (+852) 6150-9118.`

	got := FindCandidates(text)
	require.Len(t, got, 4)

	var valid []string
	for _, c := range got {
		if p, ok := Validate(c); ok {
			valid = append(valid, p)
		}
	}
	assert.Contains(t, valid, "+6591234567")
	assert.Contains(t, valid, "+6561234567")
	assert.Contains(t, valid, "+6581234567")
	assert.NotContains(t, valid, "+6561509118")
}
