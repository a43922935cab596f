package points

import (
	"strconv"
	"strings"
)

// separators are the grouping characters a rendered point count may carry.
var separators = strings.NewReplacer(
	",", "",
	".", "",
	"'", "",
	"_", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
)

// ParsePoints turns a rendered point count such as "6,512" or "6.512" into
// an integer. It reports false when anything other than digits remains
// after stripping separators, or when no digits remain at all.
func ParsePoints(raw string) (int64, bool) {
	s := separators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasDigit reports whether s contains at least one ASCII digit.
func HasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// FormatThousands renders n with comma grouping, the form ParsePoints reads.
func FormatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
