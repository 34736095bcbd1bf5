// Package normalizers provides the key normalization used for storage and matching
package normalizers

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("ncompany", NormalizeCompanyName)
	Register("ndomain", NormalizeDomain)
	Register("nsocial", NormalizeSocialURL)
	Register("ntitle", NormalizeTitle)
	Register("website_host", WebsiteHost)
	Register("strip_legal_suffix", StripLegalSuffix)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "mailto:")
	return s
}

// EmailDomain returns the normalized domain part of an email.
func EmailDomain(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeDomain(email[at+1:])
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// collapse lowercases s, drops everything but letters, digits and spaces, and
// collapses whitespace runs.
func collapse(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '/' || r == '_':
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove punctuation, collapse whitespace
// - Remove common suffixes (Jr., Sr., III, etc.)
func NormalizeName(s string) string {
	s = collapse(s)

	suffixes := []string{" jr", " sr", " iii", " ii", " iv", " phd", " md", " dds", " cpa", " esq"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
		}
	}

	return s
}

// NormalizeCompanyName lowercases, strips punctuation and collapses whitespace.
// "ACME CORP." and "Acme Corp" both become "acme corp".
func NormalizeCompanyName(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")
	return collapse(s)
}

var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "llp": true, "lp": true,
	"ltd": true, "limited": true, "corp": true, "corporation": true, "co": true,
	"company": true, "plc": true, "gmbh": true, "ag": true, "sa": true, "pllc": true,
	"holdings": true, "group": true,
}

// StripLegalSuffix removes trailing legal-form tokens from a normalized company name.
func StripLegalSuffix(s string) string {
	tokens := strings.Fields(NormalizeCompanyName(s))
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// IsLegalSuffix reports whether token is a legal-form word such as "inc".
func IsLegalSuffix(token string) bool {
	return legalSuffixes[strings.Trim(strings.ToLower(token), ".,")]
}

// NormalizeTitle normalizes a job title for equality checks.
func NormalizeTitle(s string) string {
	return collapse(s)
}

// NormalizeDomain reduces a domain, host or URL to a bare lowercase host
// without scheme, "www.", port or path.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, "www.")
	if !strings.Contains(s, ".") {
		return ""
	}
	return s
}

// WebsiteHost extracts the normalized host of a website URL.
func WebsiteHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// RegistrableDomain returns the eTLD+1 of a domain ("eu.acme.co.uk" -> "acme.co.uk").
func RegistrableDomain(domain string) string {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return domain
	}
	return etld1
}

// DomainLabel returns the registrable label of a domain ("acme" for
// "eu.acme.co.uk"). Two domains sharing a label are a corroborating signal.
func DomainLabel(domain string) string {
	etld1 := RegistrableDomain(domain)
	if etld1 == "" {
		return ""
	}
	if i := strings.Index(etld1, "."); i > 0 {
		return etld1[:i]
	}
	return etld1
}

var socialHosts = map[string]string{
	"linkedin.com":   "linkedin.com",
	"twitter.com":    "x.com",
	"x.com":          "x.com",
	"github.com":     "github.com",
	"facebook.com":   "facebook.com",
	"instagram.com":  "instagram.com",
	"m.facebook.com": "facebook.com",
}

// IsSocialURL reports whether s points at a known social-profile host.
func IsSocialURL(s string) bool {
	return NormalizeSocialURL(s) != ""
}

// NormalizeSocialURL returns "host/path" for a social profile URL, with the
// scheme, "www.", country subdomains, query and trailing slash removed. Hosts
// that are not social networks return "".
func NormalizeSocialURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	canonical, ok := socialHosts[host]
	if !ok {
		// country subdomains such as uk.linkedin.com
		if i := strings.Index(host, "."); i > 0 {
			canonical, ok = socialHosts[host[i+1:]]
		}
		if !ok {
			return ""
		}
	}

	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	if path == "" {
		return ""
	}
	return canonical + path
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
