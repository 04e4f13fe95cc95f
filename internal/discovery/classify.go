package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/helix-research/pipeline-cli/internal/model"
)

// guessDomain derives a likely domain label from a company name:
// "Acme Pharmaceuticals, Inc." -> "acmepharmainc".
func guessDomain(company string) string {
	clean := strings.ToLower(company)
	clean = strings.NewReplacer(" ", "", ",", "", ".", "").Replace(clean)
	// Companies named "X Pharmaceuticals" near-universally register xpharma.
	clean = strings.ReplaceAll(clean, "pharmaceuticals", "pharma")
	return clean
}

// probeBases returns the base URLs to probe. A known site URL pins probing
// to its origin; otherwise both www and bare forms of the guessed domain are
// tried.
func probeBases(company, siteURL string) []string {
	if siteURL != "" {
		if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
			return []string{u.Scheme + "://" + u.Host}
		}
	}
	domain := guessDomain(company)
	return []string{
		"https://www." + domain + ".com",
		"https://" + domain + ".com",
	}
}

var (
	// pipeline01 and /pipeline are overview pages; pipeline02+ are per-drug.
	overviewURLRe = regexp.MustCompile(`(/pipeline01|/pipeline\.html|/pipeline/?$|/rnd|/r-d)`)
	drugURLRe     = regexp.MustCompile(`/pipeline0[2-9]|/pipeline[1-9]\d`)
)

var newsPathMarkers = []string{
	"/news", "/press", "/media", "news_view", "/hire", "/career", "/recruit",
}

var assetPathMarkers = []string{"/product", "/drug", "/candidate", "/program"}

var thirdPartyDatabases = []string{"patsnap", "cortellis", "evaluate", "adisinsight"}

var newsOutlets = []string{"news", "press", "fiercebiotech", "biospace", "reuters"}

// Classify scores a search result for company without any model call. The
// company's own pipeline pages rank highest; news and job pages are
// deprioritized even on the company's site.
func Classify(rawURL, title, snippet, company string) (model.URLType, float64) {
	urlLower := strings.ToLower(rawURL)
	textLower := strings.ToLower(title) + strings.ToLower(snippet)
	slug := guessDomain(company)

	isCompanySite := strings.Contains(
		strings.NewReplacer(".", "", "-", "").Replace(urlLower), slug)
	isNewsPath := containsAny(urlLower, newsPathMarkers)

	switch {
	case isCompanySite && !isNewsPath && overviewURLRe.MatchString(urlLower):
		return model.URLOverview, 1.0
	case isCompanySite && !isNewsPath && drugURLRe.MatchString(urlLower):
		return model.URLDrugSpecific, 0.8
	case isCompanySite && !isNewsPath && strings.Contains(textLower, "pipeline"):
		return model.URLOverview, 0.9
	case isCompanySite && !isNewsPath && containsAny(urlLower, assetPathMarkers):
		return model.URLDrugSpecific, 0.7
	case isCompanySite && isNewsPath:
		return model.URLNews, 0.4
	case isCompanySite:
		return model.URLDrugSpecific, 0.5
	case containsAny(urlLower, thirdPartyDatabases):
		return model.URLOverview, 0.6
	case containsAny(urlLower, newsOutlets):
		return model.URLNews, 0.4
	case strings.Contains(strings.ToLower(snippet), "pipeline"):
		return model.URLOverview, 0.5
	default:
		return model.URLIrrelevant, 0.2
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
