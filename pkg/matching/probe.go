package matching

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// CompanyProbe is a partial company identity. ExcludeIDs are never returned,
// which lets callers match a stored record against its peers.
type CompanyProbe struct {
	Name       string   `json:"name,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Website    string   `json:"website,omitempty"`
	SocialURL  string   `json:"social_url,omitempty"`
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
}

type companyKeys struct {
	name           string
	normalizedName string
	domain         string
	social         string
}

func (p CompanyProbe) keys() companyKeys {
	domain := normalizers.NormalizeDomain(p.Domain)
	if domain == "" {
		domain = normalizers.WebsiteHost(p.Website)
	}
	return companyKeys{
		name:           strings.TrimSpace(p.Name),
		normalizedName: normalizers.NormalizeCompanyName(p.Name),
		domain:         domain,
		social:         normalizers.NormalizeSocialURL(p.SocialURL),
	}
}

func (p CompanyProbe) empty() bool {
	k := p.keys()
	return k.normalizedName == "" && k.domain == "" && k.social == ""
}

// PersonProbe is a partial person identity. EmployerID, when known, is
// compared with the stored employer link; EmployerName with its name.
type PersonProbe struct {
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	FullName     string   `json:"full_name,omitempty"`
	Email        string   `json:"email,omitempty" validate:"omitempty,email"`
	SocialURL    string   `json:"social_url,omitempty"`
	EmployerName string   `json:"employer_name,omitempty"`
	EmployerID   string   `json:"employer_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	ExcludeIDs   []string `json:"exclude_ids,omitempty"`
}

type personKeys struct {
	normalizedName string
	email          string
	social         string
	title          string
}

func (p PersonProbe) fullName() string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p PersonProbe) keys() personKeys {
	return personKeys{
		normalizedName: normalizers.NormalizeName(p.fullName()),
		email:          normalizers.NormalizeEmail(p.Email),
		social:         normalizers.NormalizeSocialURL(p.SocialURL),
		title:          normalizers.NormalizeTitle(p.Title),
	}
}

func (p PersonProbe) empty() bool {
	k := p.keys()
	return k.normalizedName == "" && k.email == "" && k.social == ""
}

// CompanyBlockKeys lists every key through which FindCompanyMatches can reach
// a stored record: the strong keys, the normalized name, its blocking prefix
// and the registrable domain label. Two probes that share none of them never
// match each other.
func (e *Engine) CompanyBlockKeys(probe CompanyProbe) []string {
	k := probe.keys()
	var keys []string
	if k.domain != "" {
		keys = append(keys, "company-domain:"+k.domain)
		if label := normalizers.DomainLabel(k.domain); label != "" {
			keys = append(keys, "company-label:"+label)
		}
	}
	if k.social != "" {
		keys = append(keys, "company-social:"+k.social)
	}
	if k.normalizedName != "" {
		keys = append(keys, "company-name:"+k.normalizedName)
	}
	if prefix := namePrefix(k.normalizedName, e.config.PrefixLength); prefix != "" {
		keys = append(keys, "company-prefix:"+prefix)
	}
	return keys
}

// PersonBlockKeys is CompanyBlockKeys for FindPersonMatches.
func (e *Engine) PersonBlockKeys(probe PersonProbe) []string {
	k := probe.keys()
	var keys []string
	if k.email != "" {
		keys = append(keys, "person-email:"+k.email)
	}
	if k.social != "" {
		keys = append(keys, "person-social:"+k.social)
	}
	if k.normalizedName != "" {
		keys = append(keys, "person-name:"+k.normalizedName)
	}
	if prefix := namePrefix(k.normalizedName, e.config.PrefixLength); prefix != "" {
		keys = append(keys, "person-prefix:"+prefix)
	}
	return keys
}
