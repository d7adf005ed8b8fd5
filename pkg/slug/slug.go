package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Letters that do not decompose into an ASCII base letter plus marks.
var special = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "ø", "o", "œ", "oe", "đ", "d", "ł", "l", "ı", "i",
)

// Generate turns a display name into a URL slug:
//
//	"Dr. María José Núñez" -> "dr-maria-jose-nunez"
//	"  Anna-Lena   Groß "  -> "anna-lena-gross"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = special.Replace(s)

	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Trim(nonAlnum.ReplaceAllString(b.String(), "-"), "-")
}
