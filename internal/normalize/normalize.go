// Package normalize holds the pure string normalisation used to derive
// identifiers and display values from scraped names.
package normalize

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// platformSuffixes are stripped from a domain name before it is title-cased.
var platformSuffixes = []string{".com", ".cy", ".gr", ".eu", ".net", ".org", ".co", ".uk"}

// Slug lowercases s, turns spaces into hyphens and "&" into "and", drops
// combining accents and every character that is not a letter, digit,
// hyphen or underscore, and collapses repeated hyphens.
//
//	Slug("Bob's Burgers & Fries") == "bobs-burgers-and-fries"
func Slug(s string) string {
	s = foldAccents(strings.ToLower(strings.TrimSpace(s)))
	s = strings.ReplaceAll(s, "&", "and")

	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r) || r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.Trim(b.String(), "-")
}

// DisplayName derives a human-readable platform name from its host:
// "www." and common TLD suffixes are removed, remaining dots become spaces,
// and the result is title-cased. "foody.com.cy" -> "Foody".
func DisplayName(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	for changed := true; changed; {
		changed = false
		for _, suf := range platformSuffixes {
			if strings.HasSuffix(d, suf) && len(d) > len(suf) {
				d = strings.TrimSuffix(d, suf)
				changed = true
			}
		}
	}
	d = strings.NewReplacer(".", " ", "-", " ", "_", " ").Replace(d)
	return cases.Title(language.Und).String(strings.Join(strings.Fields(d), " "))
}

// BaseURL returns the canonical https URL of a platform host.
func BaseURL(domain string) string {
	return "https://" + strings.TrimSpace(domain)
}

// HostOf returns the lowercased host of rawURL without a "www." prefix,
// or "" when rawURL is not an absolute URL.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Name trims surrounding whitespace from a scraped entity name. Lookups by
// name always go through it so stored and incoming names agree.
func Name(s string) string { return strings.TrimSpace(s) }

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
