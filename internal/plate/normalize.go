// Package plate canonicalizes OCR-read plate and province strings so the
// matching engine compares like with like. Normalization never substitutes
// characters; deciding how much to trust the alphabetic part is the
// scorer's job.
package plate

import (
	"strings"
	"unicode"
)

// NormalizePlate strips whitespace and punctuation and case-folds. The
// result contains only letters and digits. Idempotent.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// TrailingDigits returns the last maximal run of digits in the normalized
// form of raw, or "" if it contains none. On Thai plates the serial number
// is the trailing digit group; leading digits belong to the category
// prefix and are not a reliable identifier.
func TrailingDigits(raw string) string {
	runes := []rune(NormalizePlate(raw))
	end := len(runes)
	for end > 0 && !unicode.IsDigit(runes[end-1]) {
		end--
	}
	start := end
	for start > 0 && unicode.IsDigit(runes[start-1]) {
		start--
	}
	return string(runes[start:end])
}

// Prefix returns the normalized plate with its trailing digit run removed:
// the alphabetic/category segment, which OCR misreads most often.
func Prefix(raw string) string {
	norm := NormalizePlate(raw)
	return strings.TrimSuffix(norm, TrailingDigits(raw))
}

// provinceAliases maps common abbreviations and short spellings to one
// canonical province name. Keys are normalized (lowercased, trimmed,
// punctuation stripped) before lookup.
var provinceAliases = map[string]string{
	"กทม":       "กรุงเทพมหานคร",
	"กรุงเทพ":   "กรุงเทพมหานคร",
	"bangkok":   "กรุงเทพมหานคร",
	"bkk":       "กรุงเทพมหานคร",
	"อยุธยา":    "พระนครศรีอยุธยา",
	"โคราช":     "นครราชสีมา",
	"อุบล":      "อุบลราชธานี",
	"สุราษ":     "สุราษฎร์ธานี",
	"สุราษฎร์":  "สุราษฎร์ธานี",
	"chiangmai": "เชียงใหม่",
}

// NormalizeProvince case-folds, trims, and maps known aliases to a
// canonical spelling. Unknown input passes through folded and trimmed.
// Empty input stays empty and never matches a non-empty province.
func NormalizeProvince(raw string) string {
	folded := strings.ToLower(strings.TrimSpace(raw))
	folded = strings.TrimSuffix(folded, "ฯ")
	folded = strings.TrimSuffix(folded, ".")
	if folded == "" {
		return ""
	}
	if canonical, ok := provinceAliases[folded]; ok {
		return canonical
	}
	return folded
}
