package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "กข1234", NormalizePlate(" กข 1234 "))
	assert.Equal(t, "abc123", NormalizePlate("ABC-123"))
	assert.Equal(t, "8ฟม4325", NormalizePlate("8ฟม 4325"))
	assert.Equal(t, "", NormalizePlate("  ?!. "))
}

func TestNormalizePlateIdempotent(t *testing.T) {
	inputs := []string{"กข 1234", "ABC-123", "8ฟม4325", "", "??", "1กก1234", "มท 213 กทม"}
	for _, in := range inputs {
		once := NormalizePlate(in)
		assert.Equal(t, once, NormalizePlate(once), "normalization of %q must be idempotent", in)
	}
}

func TestTrailingDigits(t *testing.T) {
	assert.Equal(t, "4325", TrailingDigits("8ฟม4325"))
	assert.Equal(t, "1234", TrailingDigits("1กก1234"))
	assert.Equal(t, "", TrailingDigits("abc"))
	assert.Equal(t, "", TrailingDigits(""))
	assert.Equal(t, "123", TrailingDigits("กข 123"))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "8ฟม", Prefix("8ฟม4325"))
	assert.Equal(t, "1กก", Prefix("1กก1234"))
	assert.Equal(t, "abc", Prefix("abc"))
	assert.Equal(t, "", Prefix("1234"))
}

func TestNormalizeProvince(t *testing.T) {
	assert.Equal(t, "กรุงเทพมหานคร", NormalizeProvince("กทม"))
	assert.Equal(t, "กรุงเทพมหานคร", NormalizeProvince("กทม."))
	assert.Equal(t, "กรุงเทพมหานคร", NormalizeProvince("กรุงเทพฯ"))
	assert.Equal(t, "กรุงเทพมหานคร", NormalizeProvince(" Bangkok "))
	assert.Equal(t, "กรุงเทพมหานคร", NormalizeProvince("กรุงเทพมหานคร"))
	assert.Equal(t, "นครราชสีมา", NormalizeProvince("โคราช"))

	// Unknown input passes through folded and trimmed.
	assert.Equal(t, "ระยอง", NormalizeProvince(" ระยอง "))
	assert.Equal(t, "rayong", NormalizeProvince("Rayong"))

	// Empty stays empty.
	assert.Equal(t, "", NormalizeProvince(""))
	assert.Equal(t, "", NormalizeProvince("   "))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("ระยอง", "ระยอง"))
	assert.Equal(t, 0.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("", "ระยอง"))

	// One substituted rune out of seven.
	got := Ratio("8ฟม4325", "8ฟน4325")
	assert.InDelta(t, 6.0/7.0, got, 1e-9)

	assert.Greater(t, Ratio("กข1234", "กข1235"), Ratio("กข1234", "พย9999"))
}
