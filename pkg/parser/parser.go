// Package parser turns unstructured contact text into draft Company and Person
// fragments plus the atomic identifiers found in it.
package parser

import (
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

type Format string

const (
	FormatFreeform Format = "freeform"
	FormatVCard    Format = "vcard"
	FormatBulk     Format = "bulk"
)

// PersonFragment holds only the fields the parser extracted with confidence.
// Unknown fields stay nil.
type PersonFragment struct {
	FullName    *string `json:"full_name,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Title       *string `json:"title,omitempty"`
	SocialURL   *string `json:"social_url,omitempty"`
	CompanyName *string `json:"company_name,omitempty"`
}

type CompanyFragment struct {
	Name      *string `json:"name,omitempty"`
	Website   *string `json:"website,omitempty"`
	Domain    *string `json:"domain,omitempty"`
	SocialURL *string `json:"social_url,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// ParseResult is the normalized output of one Parse call. Atomic lists are
// deduplicated and keep first-seen order.
type ParseResult struct {
	Format     Format            `json:"format"`
	People     []PersonFragment  `json:"people"`
	Companies  []CompanyFragment `json:"companies"`
	Emails     []string          `json:"emails"`
	Phones     []string          `json:"phones"`
	URLs       []string          `json:"urls"`
	SocialURLs []string          `json:"social_urls"`
	Domains    []string          `json:"domains"`
	Raw        string            `json:"raw"`
}

// Empty reports whether nothing was extracted.
func (r *ParseResult) Empty() bool {
	return len(r.People) == 0 && len(r.Companies) == 0 && len(r.Emails) == 0 &&
		len(r.Phones) == 0 && len(r.URLs) == 0 && len(r.SocialURLs) == 0
}

// Parse never fails. Input that yields nothing returns an empty result.
func Parse(input string) *ParseResult {
	c := newCollector(input)
	format := DetectFormat(input)
	c.result.Format = format

	switch format {
	case FormatVCard:
		parseVCards(input, c)
	case FormatBulk:
		parseBulk(input, c)
	default:
		parseFreeform(input, c)
	}
	return c.finish()
}

// ParseReader reads the whole payload and parses it. Only read failures are
// returned as errors.
func ParseReader(r io.Reader) (*ParseResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read parser input")
	}
	return Parse(string(b)), nil
}

// DetectFormat classifies input by content.
func DetectFormat(input string) Format {
	if strings.Contains(strings.ToUpper(input), "BEGIN:VCARD") {
		return FormatVCard
	}
	text := normalizeNewlines(input)
	if len(splitBlocks(text)) > 1 {
		return FormatBulk
	}
	if _, ok := readCSV(text); ok {
		return FormatBulk
	}
	return FormatFreeform
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// splitBlocks splits text on blank lines and drops empty blocks.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// collector accumulates fragments and set-deduplicated atomics.
type collector struct {
	result  *ParseResult
	emails  stringSet
	phones  stringSet
	urls    stringSet
	social  stringSet
	domains stringSet
}

func newCollector(raw string) *collector {
	return &collector{
		result: &ParseResult{
			Format:     FormatFreeform,
			People:     []PersonFragment{},
			Companies:  []CompanyFragment{},
			Emails:     []string{},
			Phones:     []string{},
			URLs:       []string{},
			SocialURLs: []string{},
			Domains:    []string{},
			Raw:        raw,
		},
		emails:  newStringSet(),
		phones:  newStringSet(),
		urls:    newStringSet(),
		social:  newStringSet(),
		domains: newStringSet(),
	}
}

func (c *collector) addEmail(email string) {
	email = normalizers.NormalizeEmail(email)
	if email == "" {
		return
	}
	c.emails.add(email)
	if domain := normalizers.EmailDomain(email); domain != "" && !IsFreeMailDomain(domain) {
		c.domains.add(domain)
	}
}

func (c *collector) addPhone(phone string) {
	if digits := normalizers.NormalizePhone(phone); validPhone(digits) {
		c.phones.add(digits)
	}
}

func (c *collector) addURL(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if social := normalizers.NormalizeSocialURL(raw); social != "" {
		c.social.add(social)
		return
	}
	c.urls.add(raw)
	if host := normalizers.WebsiteHost(raw); host != "" && !IsFreeMailDomain(host) {
		c.domains.add(host)
	}
}

func (c *collector) addPerson(p PersonFragment) {
	if p.FullName == nil && p.Email == nil && p.SocialURL == nil {
		return
	}
	c.result.People = append(c.result.People, p)
}

func (c *collector) addCompany(co CompanyFragment) {
	if co.Name == nil && co.Website == nil && co.SocialURL == nil {
		return
	}
	c.result.Companies = append(c.result.Companies, co)
}

func (c *collector) finish() *ParseResult {
	c.result.Emails = c.emails.values()
	c.result.Phones = c.phones.values()
	c.result.URLs = c.urls.values()
	c.result.SocialURLs = c.social.values()
	c.result.Domains = c.domains.values()
	return c.result
}

type stringSet struct {
	seen  map[string]bool
	items []string
}

func newStringSet() stringSet {
	return stringSet{seen: map[string]bool{}, items: []string{}}
}

func (s *stringSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func (s *stringSet) values() []string {
	return s.items
}

var freeMailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "live.com": true, "msn.com": true, "aol.com": true,
	"icloud.com": true, "me.com": true, "mac.com": true, "protonmail.com": true,
	"proton.me": true, "gmx.com": true, "mail.com": true, "yandex.com": true,
	"zoho.com": true, "fastmail.com": true,
}

// IsFreeMailDomain reports whether domain belongs to a consumer mail provider.
func IsFreeMailDomain(domain string) bool {
	return freeMailDomains[normalizers.NormalizeDomain(domain)]
}

func validPhone(digits string) bool {
	return len(digits) >= 10 && len(digits) <= 15
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
