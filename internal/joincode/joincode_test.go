package joincode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := Generate()
		require.Len(t, code, 8)
		assert.True(t, Valid(code), "generated code %q must be valid", code)
		seen[code] = true
	}
	// 100회 생성에서 충돌이 나면 엔트로피가 망가진 것이다
	assert.Greater(t, len(seen), 99)
}

func TestGenerateExcludesAmbiguousSymbols(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := Generate()
		for _, c := range "0OI1L" {
			assert.NotContains(t, code, string(c))
		}
	}
}

func TestGenerateSymbolDistribution(t *testing.T) {
	const codes = 20000
	counts := map[byte]int{}
	for i := 0; i < codes; i++ {
		code := Generate()
		for j := 0; j < len(code); j++ {
			counts[code[j]]++
		}
	}
	// 256 % 31 = 8: 앞 8글자가 과대표집되면 모듈로 편향이 돌아온 것
	mean := float64(codes*codeLength) / float64(len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		assert.InDelta(t, mean, float64(counts[c]), mean*0.06, "symbol %c frequency skewed", c)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABCD2345", Normalize("abcd-2345"))
	assert.Equal(t, "ABCD2345", Normalize("  AbCd-23 45 "))
	assert.Equal(t, "ABCD2345", Normalize("ABCD2345"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("ABCD-2345"))
	assert.True(t, Valid("abcd2345"))
	assert.False(t, Valid("ABC"))
	assert.False(t, Valid("ABCD-234O"), "O is excluded from the alphabet")
	assert.False(t, Valid("ABCD-2341"), "1 is excluded from the alphabet")
	assert.False(t, Valid(""))
	assert.False(t, Valid("ABCD23456"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "ABCD-2345", Format("abcd2345"))
	assert.Equal(t, "ABCD-2345", Format("ABCD-2345"))
}

func TestFormatRoundTrip(t *testing.T) {
	code := Generate()
	formatted := Format(code)
	require.True(t, strings.Contains(formatted, "-"))
	assert.Equal(t, code, Normalize(formatted))
}
