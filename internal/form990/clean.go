package form990

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxPlausibleAmount rejects amounts that are almost certainly OCR noise.
const maxPlausibleAmount = 1e12

// CleanAmount converts a matched amount such as "$1,234", "(5,000)" or
// "12 345" to a float. Parenthesized amounts are negative. It reports false
// for anything that is not a number or exceeds one trillion in magnitude.
func CleanAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if negative {
		v = -v
	}
	if v > maxPlausibleAmount || v < -maxPlausibleAmount {
		return 0, false
	}
	return v, true
}

// Normalize folds compatibility characters produced by OCR engines
// (full-width digits, ligatures, non-breaking spaces) and unifies line
// endings.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// head returns at most the first n bytes of s.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
