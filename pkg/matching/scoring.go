package matching

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Signals explain why a candidate was returned.
const (
	SignalEmailExact         = "email_exact"
	SignalDomainExact        = "domain_exact"
	SignalSocialURLExact     = "social_url_exact"
	SignalNameExact          = "name_exact"
	SignalNameSuffixStripped = "name_suffix_stripped"
	SignalNameNearExact      = "name_near_exact"
	SignalDomainLabel        = "shared_domain_label"
	SignalSharedEmployer     = "shared_employer"
	SignalTitleExact         = "title_exact"
)

// Score contributions of the fuzzy tier.
const (
	scoreNameExact          = 0.60
	scoreNameSuffixStripped = 0.55
	scoreNameNearExact      = 0.50
	scoreDomainLabel        = 0.30
	scoreSharedEmployer     = 0.30
	scoreTitleExact         = 0.10
	scoreStrongKey          = 1.0
)

// Scorer compares normalized names.
type Scorer struct {
	nearExact float64
}

func NewScorer(nearExactThreshold float64) *Scorer {
	return &Scorer{nearExact: nearExactThreshold}
}

// CompanyName scores two company names by the best applicable rule. Both
// inputs are raw display names.
func (s *Scorer) CompanyName(a, b string) (float64, string) {
	na, nb := normalizers.NormalizeCompanyName(a), normalizers.NormalizeCompanyName(b)
	if na == "" || nb == "" {
		return 0, ""
	}
	if na == nb {
		return scoreNameExact, SignalNameExact
	}
	if normalizers.StripLegalSuffix(na) == normalizers.StripLegalSuffix(nb) {
		return scoreNameSuffixStripped, SignalNameSuffixStripped
	}
	if s.JaroWinkler(na, nb) >= s.nearExact {
		return scoreNameNearExact, SignalNameNearExact
	}
	return 0, ""
}

// PersonName scores two normalized full names. Name suffixes such as Jr. are
// already removed by normalization, so only exact and near-exact apply.
func (s *Scorer) PersonName(na, nb string) (float64, string) {
	if na == "" || nb == "" {
		return 0, ""
	}
	if na == nb {
		return scoreNameExact, SignalNameExact
	}
	if s.JaroWinkler(na, nb) >= s.nearExact {
		return scoreNameNearExact, SignalNameNearExact
	}
	return 0, ""
}

// SameEmployer reports whether two company names denote the same employer.
func SameEmployer(a, b string) bool {
	na, nb := normalizers.NormalizeCompanyName(a), normalizers.NormalizeCompanyName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || normalizers.StripLegalSuffix(na) == normalizers.StripLegalSuffix(nb)
}

// JaroWinkler returns the Jaro similarity boosted by up to four characters of
// common prefix. It works on runes.
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	jaro := jaro(ra, rb)

	prefix := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0

	for i := range a {
		start := max(0, i-window)
		end := min(len(b), i+window+1)
		for j := start; j < end; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3
}

// namePrefix returns the first n runes of a normalized name, used to block
// fuzzy candidates.
func namePrefix(name string, n int) string {
	name = strings.TrimSpace(name)
	r := []rune(name)
	if len(r) < n {
		return ""
	}
	return string(r[:n])
}
