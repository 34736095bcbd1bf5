package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

var (
	emailPattern = regexp.MustCompile(`(?i)(?:mailto:)?[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d \t().\-]{7,}\d`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://[^\s<>"']+|www\.[^\s<>"']+|(?:linkedin\.com|twitter\.com|x\.com|github\.com)/[^\s<>"']+)`)
	labelPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z \-]{0,20}?)\s*:\s*(.+)$`)
	atPattern    = regexp.MustCompile(`(?i)^(.+?)\s+(?:at|@)\s+(.+)$`)
	namePart     = regexp.MustCompile(`^[A-Z][A-Za-z'’\-]*\.?$`)
)

// record holds the raw values found for one contact before they become
// fragments.
type record struct {
	name      string
	firstName string
	lastName  string
	email     string
	phone     string
	title     string
	company   string
	website   string
	social    []string
}

var labelFields = map[string]string{
	"name": "name", "full name": "name", "contact": "name", "contact name": "name",
	"first name": "first", "given name": "first",
	"last name": "last", "surname": "last", "family name": "last",
	"company": "company", "company name": "company", "organization": "company",
	"organisation": "company", "org": "company", "employer": "company", "account": "company",
	"title": "title", "job title": "title", "position": "title", "role": "title",
	"email": "email", "e-mail": "email", "e mail": "email", "email address": "email",
	"phone": "phone", "tel": "phone", "telephone": "phone", "mobile": "phone", "cell": "phone", "phone number": "phone",
	"website": "website", "web": "website", "url": "website", "site": "website", "domain": "website",
	"linkedin": "social", "twitter": "social", "github": "social", "social": "social", "social url": "social",
}

// set assigns a labelled value. First value wins for scalar fields.
func (r *record) set(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch field {
	case "social":
		r.social = append(r.social, value)
	case "name":
		setOnce(&r.name, value)
	case "first":
		setOnce(&r.firstName, value)
	case "last":
		setOnce(&r.lastName, value)
	case "company":
		setOnce(&r.company, value)
	case "title":
		setOnce(&r.title, value)
	case "email":
		setOnce(&r.email, value)
	case "phone":
		setOnce(&r.phone, value)
	case "website":
		setOnce(&r.website, value)
	}
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func parseFreeform(text string, c *collector) {
	c.emit(extractRecord(normalizeNewlines(text), c))
}

// extractRecord reads one freeform block. Every atomic found is added to c;
// the record keeps the first of each.
func extractRecord(text string, c *collector) *record {
	rec := &record{}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := labelPattern.FindStringSubmatch(line); m != nil {
			if field, ok := labelFields[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
				value := strings.TrimSpace(m[2])
				rest := extractAtomics(value, rec, c)
				switch field {
				case "email", "phone", "social":
					if rest != "" && rest == value {
						rec.set(field, value)
					}
				case "website":
					// bare hosts such as acme.com carry no scheme
					if rest != "" && rest == value && strings.Contains(value, ".") {
						rec.set(field, value)
					}
				default:
					rec.set(field, value)
				}
				continue
			}
		}

		rest := extractAtomics(line, rec, c)
		classifyLine(rest, rec)
	}

	return rec
}

// extractAtomics records emails, URLs and phones found in line and returns
// what remains of it.
func extractAtomics(line string, rec *record, c *collector) string {
	for _, email := range emailPattern.FindAllString(line, -1) {
		c.addEmail(email)
		rec.set("email", normalizers.NormalizeEmail(email))
	}
	line = emailPattern.ReplaceAllString(line, " ")

	for _, u := range urlPattern.FindAllString(line, -1) {
		u = strings.TrimRight(u, ".,;:)]>")
		c.addURL(u)
		if normalizers.IsSocialURL(u) {
			rec.set("social", u)
		} else {
			rec.set("website", u)
		}
	}
	line = urlPattern.ReplaceAllString(line, " ")

	for _, phone := range phonePattern.FindAllString(line, -1) {
		if digits := normalizers.NormalizePhone(phone); validPhone(digits) {
			c.addPhone(digits)
			rec.set("phone", digits)
			line = strings.Replace(line, phone, " ", 1)
		}
	}

	return strings.Trim(strings.TrimSpace(line), "|,;•·-–— \t")
}

// classifyLine decides whether a leftover line is a name, a company, a title
// or a title/company pair.
func classifyLine(line string, rec *record) {
	if line == "" {
		return
	}

	if m := atPattern.FindStringSubmatch(line); m != nil && rec.company == "" {
		left, right := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		// "Jane Doe, CEO at Acme"
		if name, title, ok := strings.Cut(left, ","); ok && looksLikeName(strings.TrimSpace(name)) {
			rec.set("name", strings.TrimSpace(name))
			left = strings.TrimSpace(title)
		}
		if looksLikeTitle(left) && startsUpper(right) {
			rec.set("title", left)
			rec.set("company", right)
			return
		}
	}

	if parts := strings.Split(line, ","); len(parts) == 2 {
		left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch {
		case looksLikeName(left) && looksLikeTitle(right):
			rec.set("name", left)
			rec.set("title", right)
			return
		case looksLikeTitle(left) && startsUpper(right) && !normalizers.IsLegalSuffix(normalizers.NormalizeCompanyName(right)):
			rec.set("title", left)
			rec.set("company", right)
			return
		}
	}

	switch {
	case hasLegalSuffix(line):
		rec.set("company", line)
	case looksLikeName(line):
		rec.set("name", line)
	case looksLikeTitle(line):
		rec.set("title", line)
	}
}

var titleWords = map[string]bool{
	"ceo": true, "cto": true, "cfo": true, "coo": true, "cmo": true, "cio": true,
	"founder": true, "cofounder": true, "co-founder": true, "president": true,
	"director": true, "manager": true, "vp": true, "svp": true, "evp": true,
	"head": true, "partner": true, "owner": true, "principal": true, "chief": true,
	"officer": true, "lead": true, "engineer": true, "analyst": true, "associate": true,
	"consultant": true, "chair": true, "chairman": true, "chairwoman": true,
	"advisor": true, "adviser": true, "counsel": true, "controller": true,
	"treasurer": true, "secretary": true, "executive": true, "broker": true,
}

func looksLikeTitle(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 6 || strings.ContainsAny(s, "0123456789@") {
		return false
	}
	for _, w := range words {
		if titleWords[strings.ToLower(strings.Trim(w, ".,&/()"))] {
			return true
		}
	}
	return false
}

// looksLikeName accepts two or three capitalised name-shaped words.
func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if !namePart.MatchString(w) {
			return false
		}
	}
	return !looksLikeTitle(s) && !hasLegalSuffix(s)
}

func hasLegalSuffix(s string) bool {
	tokens := strings.Fields(normalizers.NormalizeCompanyName(s))
	return len(tokens) > 1 && normalizers.IsLegalSuffix(tokens[len(tokens)-1])
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}
	return false
}

// emit turns a record into fragments.
func (c *collector) emit(rec *record) {
	if rec == nil {
		return
	}

	if emailPattern.MatchString(rec.email) {
		c.addEmail(rec.email)
	}
	if rec.phone != "" {
		c.addPhone(rec.phone)
	}
	if rec.website != "" {
		c.addURL(rec.website)
	}

	var personSocial, companySocial string
	for _, s := range rec.social {
		c.addURL(s)
		normalized := normalizers.NormalizeSocialURL(s)
		switch {
		case normalized == "":
		case strings.HasPrefix(normalized, "linkedin.com/company/"):
			setOnce(&companySocial, normalized)
		default:
			setOnce(&personSocial, normalized)
		}
	}

	company := CompanyFragment{
		Name:      optional(rec.company),
		SocialURL: optional(companySocial),
	}
	if rec.website != "" && !normalizers.IsSocialURL(rec.website) {
		if host := normalizers.WebsiteHost(rec.website); host != "" && !IsFreeMailDomain(host) {
			company.Website = optional(rec.website)
			company.Domain = optional(host)
		}
	}

	person := PersonFragment{
		Title:       optional(rec.title),
		SocialURL:   optional(personSocial),
		CompanyName: company.Name,
	}
	if email := normalizers.NormalizeEmail(rec.email); strings.Contains(email, "@") {
		person.Email = optional(email)
	}

	fullName := strings.TrimSpace(rec.name)
	if fullName == "" {
		fullName = strings.TrimSpace(rec.firstName + " " + rec.lastName)
	}
	if fullName != "" {
		person.FullName = optional(fullName)
		first, last := rec.firstName, rec.lastName
		if first == "" && last == "" {
			first, last = splitName(fullName)
		}
		person.FirstName = optional(first)
		person.LastName = optional(last)
	}

	phone := normalizers.NormalizePhone(rec.phone)
	if validPhone(phone) {
		if person.FullName != nil || person.Email != nil {
			person.Phone = optional(phone)
		} else if company.Name != nil || company.Website != nil {
			company.Phone = optional(phone)
		}
	}

	c.addCompany(company)
	c.addPerson(person)
}

// splitName treats the first word as the given name and the last as the
// family name.
func splitName(full string) (string, string) {
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return words[0], ""
	default:
		return words[0], words[len(words)-1]
	}
}
