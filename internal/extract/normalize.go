package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanText collapses whitespace runs into single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// priceDigits strips everything but digits from a price string.
var priceDigits = regexp.MustCompile(`[^\d]`)

// ParsePriceCentavos parses a Brazilian price text such as
// "R$ 1.234.567" into centavos. Prices on cards are whole reais; a
// trailing ",dd" decimal part is honored when present.
// Returns 0 for texts without digits ("Sob consulta").
func ParsePriceCentavos(text string) int64 {
	text = CleanText(text)
	if text == "" {
		return 0
	}

	// Split decimal centavos off before stripping punctuation.
	centavos := int64(0)
	if i := strings.LastIndex(text, ","); i >= 0 && len(text)-i == 3 {
		if v, err := strconv.ParseInt(text[i+1:], 10, 64); err == nil {
			centavos = v
			text = text[:i]
		}
	}

	digits := priceDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	reais, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return reais*100 + centavos
}

// areaPattern extracts the leading number from an area text like
// "120 m²" or "80-120 m²" (ranges yield the lower bound).
var areaPattern = regexp.MustCompile(`(\d+)`)

// ParseAreaM2 parses a usable-area text into square meters.
// Returns 0 when no number is present.
func ParseAreaM2(text string) int {
	m := areaPattern.FindString(CleanText(text))
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}

// ParseCount parses a small integer field such as a bedroom count.
// "3 quartos" yields 3. Returns 0 when no number is present.
func ParseCount(text string) int {
	return ParseAreaM2(text)
}

// accentFolder removes combining marks after NFD decomposition, turning
// "São Paulo" into "Sao Paulo".
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldAccents removes diacritics from Portuguese text.
func FoldAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

// slugInvalid matches characters that may not appear in a slug.
var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns arbitrary text into a file-system friendly slug:
// accents folded, lowercased, non-alphanumerics collapsed to dashes.
func Slugify(s string) string {
	s = strings.ToLower(FoldAccents(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
