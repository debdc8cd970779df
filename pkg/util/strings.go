package util

import (
	"math"
	"strconv"
	"strings"
)

var numberCleaner = strings.NewReplacer("£", "", "$", "", "€", "", ",", "", " ", "", "%", "")

// ParseNumber parses spreadsheet numbers such as "£1,250.50" or "12%".
// NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = numberCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Normalize lowercases s and folds spaces, dashes and underscores into one
// underscore, for matching column headers.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	sep := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' || r == '(' || r == ')' || r == '/' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
